// Package gohotload provides a live code-transformation and plugin-extension
// framework for long-running host processes. It intercepts every code unit as
// it is defined or re-defined, threads its binary representation through
// pattern-matched transformation handlers contributed by plugins, and notifies
// plugins through declaratively-registered lifecycle hooks. A recursive
// filesystem watcher correlates file changes to interested listeners and
// drives redefinition cycles.
//
// Key Features:
//   - Ordered, regex-matched transformation chains with define/reload gating
//   - One plugin instance per (plugin type, loading context), created lazily
//   - Declarative handler descriptors with a fixed parameter-kind vocabulary
//   - Recursive filesystem watching with prefix-based event correlation
//   - Failure isolation: a broken plugin never breaks the host's load path
//   - Circuit breaking for repeatedly failing transformers
//   - Hot-reloadable agent configuration with audit trail
//
// Basic Usage:
//
//	agent, err := gohotload.NewAgent(gohotload.DefaultAgentConfig(), logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Contribute a plugin
//	err = agent.RegisterPlugin("my-integration", func() gohotload.Plugin {
//		return &MyIntegration{}
//	})
//
//	// Wire the single host hook into the runtime's load path
//	out := agent.OnLoad(loadCtx, "com.example.Service", nil, scope, bytes)
//
// Failure Policy:
// Transformation handlers execute on host-owned load threads. Any handler
// error or panic is recovered and logged; the handler's contribution is
// treated as unchanged bytes and dispatch continues. Only registration-time
// problems (invalid pattern, unknown parameter kind) are surfaced as errors,
// and each rejects only the offending registration.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package gohotload
