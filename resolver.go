// resolver.go: Declarative handler resolution and parameter binding
//
// Handlers declare an ordered list of parameter kinds from a fixed
// vocabulary. Validation happens once, at registration time; unknown kinds
// fail fast and disable only the offending handler. At dispatch time the
// resolver assembles the declared values, invokes the handler with panic
// isolation and converts its result into the chain's running bytes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gohotload

import (
	"fmt"
)

// HandlerResolver validates handler descriptors and performs invocation-time
// parameter binding. The resolver is stateless apart from its logger and is
// safe for concurrent use from multiple load threads.
type HandlerResolver struct {
	logger Logger
}

// NewHandlerResolver creates a resolver logging through the given sink.
func NewHandlerResolver(logger any) *HandlerResolver {
	return &HandlerResolver{logger: NewLogger(logger)}
}

// ValidateDescriptor checks a descriptor against the fixed vocabulary.
// The returned error is a registration error scoped to this one handler;
// other handlers of the same plugin are unaffected.
func (r *HandlerResolver) ValidateDescriptor(desc HandlerDescriptor) error {
	if desc.Name == "" {
		return NewInvalidDescriptorError(desc.Name, "handler name is required")
	}
	if desc.Fn == nil {
		return NewInvalidDescriptorError(desc.Name, "handler function is required")
	}

	for _, kind := range desc.Params {
		if !kind.known() {
			return NewUnsupportedParamKindError(desc.Name, kind)
		}
		if desc.Kind == HandlerInit && kind != ParamLoadingContext && kind != ParamDeferredExecutor {
			return NewInvalidDescriptorError(desc.Name,
				fmt.Sprintf("init handlers cannot declare the %s parameter kind", kind))
		}
	}

	switch desc.Kind {
	case HandlerInit:
		// no pattern or gating applies
	case HandlerTransform:
		if desc.Pattern == "" {
			return NewInvalidDescriptorError(desc.Name, "transform handlers require a pattern")
		}
		if !desc.OnDefine && !desc.OnReload {
			return NewInvalidDescriptorError(desc.Name, "transform handlers must enable onDefine, onReload or both")
		}
	default:
		return NewInvalidDescriptorError(desc.Name, fmt.Sprintf("unknown handler kind %d", desc.Kind))
	}

	return nil
}

// dispatchCall carries the per-invocation values a handler may bind.
type dispatchCall struct {
	loadCtx  *LoadingContext
	unitName string
	existing *CodeUnit
	scope    *ProtectionScope
	bytes    []byte
}

// InvokeTransform binds the declared parameters, calls the handler and
// converts its result. The returned bytes are nil when the handler left the
// unit unchanged. Errors are invocation errors the dispatcher logs and treats
// as no-ops; they never reach the host.
//
// If an editable-unit handle was constructed it is released on every exit
// path exactly once, including handler panics.
func (r *HandlerResolver) InvokeTransform(desc HandlerDescriptor, call dispatchCall) (result []byte, err error) {
	var editable *EditableUnit
	defer func() {
		if editable != nil {
			editable.Release()
		}
	}()

	args := make([]any, 0, len(desc.Params))
	for _, kind := range desc.Params {
		switch kind {
		case ParamLoadingContext:
			args = append(args, call.loadCtx)
		case ParamUnitName:
			args = append(args, call.unitName)
		case ParamRedefinedUnit:
			args = append(args, call.existing)
		case ParamProtectionScope:
			args = append(args, call.scope)
		case ParamRawBytes:
			args = append(args, call.bytes)
		case ParamEditableUnit:
			if editable == nil {
				editable = NewEditableUnit(call.unitName, call.bytes)
			}
			args = append(args, editable)
		case ParamDeferredExecutor:
			args = append(args, NewDeferredExecutor(call.loadCtx, r.logger))
		default:
			// validated at registration; reaching here means descriptor
			// mutation after registration
			return nil, NewUnsupportedParamKindError(desc.Name, kind)
		}
	}

	var raw any
	callErr := safeCall(func() error {
		var fnErr error
		raw, fnErr = desc.Fn(args)
		return fnErr
	})
	if callErr != nil {
		return nil, NewInvocationFailureError(desc.Name, call.unitName, callErr)
	}

	return r.convertResult(desc, call, raw, editable)
}

// convertResult maps a handler's return value onto the chain's byte form.
func (r *HandlerResolver) convertResult(desc HandlerDescriptor, call dispatchCall, raw any, editable *EditableUnit) ([]byte, error) {
	switch out := raw.(type) {
	case nil:
		// A mutated handle with a nil return still counts as a result; an
		// untouched handle leaves the unit unchanged.
		if editable != nil && editable.Modified() {
			b, err := editable.serialize()
			if err != nil {
				return nil, NewInvocationFailureError(desc.Name, call.unitName, err)
			}
			return b, nil
		}
		return nil, nil

	case []byte:
		return out, nil

	case *EditableUnit:
		b, err := out.serialize()
		if err != nil {
			return nil, NewInvocationFailureError(desc.Name, call.unitName, err)
		}
		// a handler-returned handle distinct from ours is released by
		// serialize; ours is covered by the deferred release
		return b, nil

	default:
		return nil, NewInvocationFailureError(desc.Name, call.unitName,
			fmt.Errorf("unsupported transform result type %T", raw))
	}
}

// InvokeInit binds the restricted init vocabulary and calls the handler.
// Init handlers have no result; an error or panic is reported to the caller
// so initialization failures can be logged with plugin context.
func (r *HandlerResolver) InvokeInit(desc HandlerDescriptor, loadCtx *LoadingContext) error {
	args := make([]any, 0, len(desc.Params))
	for _, kind := range desc.Params {
		switch kind {
		case ParamLoadingContext:
			args = append(args, loadCtx)
		case ParamDeferredExecutor:
			args = append(args, NewDeferredExecutor(loadCtx, r.logger))
		default:
			return NewUnsupportedParamKindError(desc.Name, kind)
		}
	}

	callErr := safeCall(func() error {
		_, fnErr := desc.Fn(args)
		return fnErr
	})
	if callErr != nil {
		return NewInvocationFailureError(desc.Name, "", callErr)
	}
	return nil
}
