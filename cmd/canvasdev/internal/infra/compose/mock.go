// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"sync"
)

// MockComposeExecutor is a test double for ComposeExecutor.
//
// # Description
//
// Each method delegates to its *Func field when set and otherwise succeeds.
// Every call is recorded, in order, in Calls as "Method" or
// "Method:detail" so tests can assert on step sequences.
//
// # Example
//
//	mock := &MockComposeExecutor{
//	    BuildFunc: func(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
//	        return &BuildResult{Skipped: !opts.Force}, nil
//	    },
//	}
type MockComposeExecutor struct {
	BuildFunc   func(context.Context, BuildOptions) (*BuildResult, error)
	UpFunc      func(context.Context, ServiceSet) (*ComposeResult, error)
	StopFunc    func(context.Context, StopOptions) (*ComposeResult, error)
	RestartFunc func(context.Context, ServiceSet) (*ComposeResult, error)
	StatusFunc  func(context.Context) (*ComposeStatus, error)
	LogsFunc    func(context.Context, LogsOptions) (string, error)
	ExecFunc    func(context.Context, ExecOptions) (*ExecResult, error)
	RunFunc     func(context.Context, RunOptions) (*ExecResult, error)

	Calls        []string
	BuildCalls   []BuildOptions
	StopCalls    []StopOptions
	RestartCalls []ServiceSet
	ExecCalls    []ExecOptions
	RunCalls     []RunOptions
	mu           sync.Mutex
}

func (m *MockComposeExecutor) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// GetCalls returns a copy of the recorded call names.
func (m *MockComposeExecutor) GetCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// Build implements ComposeExecutor.
func (m *MockComposeExecutor) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	m.mu.Lock()
	m.BuildCalls = append(m.BuildCalls, opts)
	m.mu.Unlock()
	if opts.Force {
		m.record("Build:force")
	} else {
		m.record("Build")
	}
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, opts)
	}
	return &BuildResult{Result: &ComposeResult{Success: true}}, nil
}

// Up implements ComposeExecutor.
func (m *MockComposeExecutor) Up(ctx context.Context, services ServiceSet) (*ComposeResult, error) {
	m.record("Up")
	if m.UpFunc != nil {
		return m.UpFunc(ctx, services)
	}
	return &ComposeResult{Success: true}, nil
}

// Stop implements ComposeExecutor.
func (m *MockComposeExecutor) Stop(ctx context.Context, opts StopOptions) (*ComposeResult, error) {
	m.mu.Lock()
	m.StopCalls = append(m.StopCalls, opts)
	m.mu.Unlock()
	m.record("Stop:" + opts.Policy.String())
	if m.StopFunc != nil {
		return m.StopFunc(ctx, opts)
	}
	return &ComposeResult{Success: true}, nil
}

// Restart implements ComposeExecutor.
func (m *MockComposeExecutor) Restart(ctx context.Context, services ServiceSet) (*ComposeResult, error) {
	m.mu.Lock()
	m.RestartCalls = append(m.RestartCalls, services)
	m.mu.Unlock()
	m.record("Restart")
	if m.RestartFunc != nil {
		return m.RestartFunc(ctx, services)
	}
	return &ComposeResult{Success: true}, nil
}

// Status implements ComposeExecutor.
func (m *MockComposeExecutor) Status(ctx context.Context) (*ComposeStatus, error) {
	m.record("Status")
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}
	return &ComposeStatus{}, nil
}

// Logs implements ComposeExecutor.
func (m *MockComposeExecutor) Logs(ctx context.Context, opts LogsOptions) (string, error) {
	m.record("Logs:" + opts.Service)
	if m.LogsFunc != nil {
		return m.LogsFunc(ctx, opts)
	}
	return "", nil
}

// Exec implements ComposeExecutor.
func (m *MockComposeExecutor) Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error) {
	m.mu.Lock()
	m.ExecCalls = append(m.ExecCalls, opts)
	m.mu.Unlock()
	m.record("Exec:" + opts.Service)
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, opts)
	}
	return &ExecResult{}, nil
}

// Run implements ComposeExecutor.
func (m *MockComposeExecutor) Run(ctx context.Context, opts RunOptions) (*ExecResult, error) {
	m.mu.Lock()
	m.RunCalls = append(m.RunCalls, opts)
	m.mu.Unlock()
	m.record("Run:" + opts.Service)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, opts)
	}
	return &ExecResult{}, nil
}

var _ ComposeExecutor = (*MockComposeExecutor)(nil)
