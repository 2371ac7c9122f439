// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"strings"
)

// maxStderrLines bounds how much collaborator output is kept on an error.
const maxStderrLines = 20

// =============================================================================
// Command Error Type
// =============================================================================

// CommandError wraps a subprocess failure with the context an operator needs.
//
// # Description
//
// Records the command line that failed, its exit code, and the tail of its
// standard error output. The orchestration layers attach a CommandError to
// every failed docker, git or compose invocation so that the final report
// can show what the collaborator said.
//
// # Example
//
//	err := NewCommandError("docker compose build", 1, "no space left on device", nil)
//	fmt.Println(err) // "docker compose build (exit 1): no space left on device"
//
// # Limitations
//
//   - Only the last 20 lines of stderr are retained
type CommandError struct {
	// Command is the command line that was executed.
	Command string

	// ExitCode is the process exit code (-1 if the process never ran).
	ExitCode int

	// Stderr is the trimmed tail of standard error.
	Stderr string

	// Wrapped is the underlying error (may be nil).
	Wrapped error
}

// Error returns "<command> (exit N): <stderr or wrapped error>".
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr reports whether stderr output was captured.
func (e *CommandError) HasStderr() bool {
	return e.Stderr != ""
}

var _ error = (*CommandError)(nil)

// =============================================================================
// Constructors
// =============================================================================

// NewCommandError creates a CommandError.
//
// # Description
//
// stderr is trimmed and cut down to its last lines. The command is stored
// as given; callers pass an already redacted command line.
//
// # Inputs
//
//   - cmd: Command line that was executed
//   - exitCode: Process exit code (-1 if unknown)
//   - stderr: Raw standard error output
//   - wrapped: Underlying error, may be nil
//
// # Outputs
//
//   - *CommandError: Never nil
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   tailLines(strings.TrimSpace(stderr), maxStderrLines),
		Wrapped:  wrapped,
	}
}

// WrapCommandError wraps err into a CommandError unless it already is one.
// Returns nil for a nil err.
func WrapCommandError(err error, cmd string, exitCode int, stderr string) *CommandError {
	if err == nil {
		return nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	return NewCommandError(cmd, exitCode, stderr, err)
}

// ExtractStderr returns the stderr of the first CommandError in err's chain
// that has any, or "".
func ExtractStderr(err error) string {
	for err != nil {
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) {
			return ""
		}
		if cmdErr.HasStderr() {
			return cmdErr.Stderr
		}
		err = cmdErr.Wrapped
	}
	return ""
}

func tailLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
