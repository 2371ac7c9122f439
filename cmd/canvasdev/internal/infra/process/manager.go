// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const waitDelay = 2 * time.Second

// -----------------------------------------------------------------------------
// Interface Definition
// -----------------------------------------------------------------------------

// Manager handles external process operations.
//
// # Description
//
// Abstracts os/exec so that callers can be tested with MockManager.
// All methods accept a context; cancelling it kills the child process.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Manager interface {
	// RunInDir executes a command in dir and captures its output.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - dir: Working directory ("" means the current directory)
	//   - env: Extra KEY=VALUE entries appended to the parent environment
	//   - name: Executable name or path
	//   - args: Command arguments
	//
	// # Outputs
	//
	//   - string: Captured stdout
	//   - string: Captured stderr
	//   - int: Exit code (-1 if the process never ran)
	//   - error: Non-nil only if the process could not be started or ctx ended
	RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)

	// Stream executes a command in dir, copying its output to the writers
	// as it is produced.
	//
	// # Description
	//
	// Used for long-running mutating commands (image builds, bundle install)
	// where the operator needs to see progress. stdout and stderr may be the
	// same writer.
	//
	// # Outputs
	//
	//   - int: Exit code (-1 if the process never ran)
	//   - error: Non-nil only if the process could not be started or ctx ended
	Stream(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, name string, args ...string) (int, error)
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultManager implements Manager using os/exec.
type DefaultManager struct{}

// NewDefaultManager creates a Manager that executes real processes.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

// RunInDir executes a command and captures stdout and stderr separately.
func (pm *DefaultManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	var stdout, stderr bytes.Buffer
	code, err := pm.run(ctx, dir, env, &stdout, &stderr, name, args...)
	return stdout.String(), strings.TrimSpace(stderr.String()), code, err
}

// Stream executes a command, forwarding its output to the given writers.
func (pm *DefaultManager) Stream(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, name string, args ...string) (int, error) {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return pm.run(ctx, dir, env, stdout, stderr, name, args...)
}

func (pm *DefaultManager) run(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Grandchildren holding the pipes open must not outlive a cancelled run.
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	// The context error wins over the exit status of a killed child.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to run %s: %w", name, err)
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockManager is a test double for Manager.
//
// # Description
//
// Each method delegates to its function field. A nil RunInDirFunc returns
// empty output with exit code 0. A nil StreamFunc falls back to RunInDirFunc
// and writes its stdout/stderr to the writers, so tests only need one hook.
// Every invocation is recorded in Calls.
//
// # Examples
//
//	mock := &MockManager{
//	    RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
//	        if name == "docker" && args[0] == "info" {
//	            return "", "Cannot connect to the Docker daemon", 1, nil
//	        }
//	        return "", "", 0, nil
//	    },
//	}
type MockManager struct {
	RunInDirFunc func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error)
	StreamFunc   func(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, name string, args ...string) (int, error)

	Calls []Call
	mu    sync.Mutex
}

// Call records a single invocation on MockManager.
type Call struct {
	Method string
	Dir    string
	Env    []string
	Name   string
	Args   []string
}

// CommandLine returns the call as a single space-joined string.
func (c Call) CommandLine() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// RunInDir implements Manager.
func (m *MockManager) RunInDir(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	m.record("RunInDir", dir, env, name, args)
	if m.RunInDirFunc != nil {
		return m.RunInDirFunc(ctx, dir, env, name, args...)
	}
	return "", "", 0, nil
}

// Stream implements Manager.
func (m *MockManager) Stream(ctx context.Context, dir string, env []string, stdout, stderr io.Writer, name string, args ...string) (int, error) {
	m.record("Stream", dir, env, name, args)
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, dir, env, stdout, stderr, name, args...)
	}
	if m.RunInDirFunc == nil {
		return 0, nil
	}
	out, errOut, code, err := m.RunInDirFunc(ctx, dir, env, name, args...)
	if stdout != nil {
		_, _ = io.WriteString(stdout, out)
	}
	if stderr != nil {
		_, _ = io.WriteString(stderr, errOut)
	}
	return code, err
}

func (m *MockManager) record(method, dir string, env []string, name string, args []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{
		Method: method,
		Dir:    dir,
		Env:    append([]string(nil), env...),
		Name:   name,
		Args:   append([]string(nil), args...),
	})
}

// GetCalls returns a copy of all recorded calls.
func (m *MockManager) GetCalls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Call, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// CommandLines returns every recorded call rendered with Call.CommandLine.
func (m *MockManager) CommandLines() []string {
	calls := m.GetCalls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, c.CommandLine())
	}
	return lines
}

// Reset clears all recorded calls.
func (m *MockManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
