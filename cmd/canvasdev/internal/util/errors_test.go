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
	"testing"
)

func TestCommandError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			name: "stderr wins",
			err:  &CommandError{Command: "docker compose build", ExitCode: 1, Stderr: "disk full", Wrapped: errors.New("exit status 1")},
			want: "docker compose build (exit 1): disk full",
		},
		{
			name: "wrapped only",
			err:  &CommandError{Command: "git pull", ExitCode: -1, Wrapped: errors.New("executable not found")},
			want: "git pull (exit -1): executable not found",
		},
		{
			name: "minimal",
			err:  &CommandError{Command: "docker info", ExitCode: 2},
			want: "docker info (exit 2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewCommandError_TrimsAndTailsStderr(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}

	err := NewCommandError("bundle install", 5, "\n"+b.String()+"\n", nil)

	lines := strings.Split(err.Stderr, "\n")
	if len(lines) != maxStderrLines {
		t.Fatalf("kept %d lines, want %d", len(lines), maxStderrLines)
	}
	if lines[0] != "line 10" || lines[len(lines)-1] != "line 29" {
		t.Errorf("kept lines %q .. %q", lines[0], lines[len(lines)-1])
	}
}

func TestCommandError_ErrorsIsAndAs(t *testing.T) {
	original := errors.New("connection refused")
	wrapped := fmt.Errorf("start services: %w", NewCommandError("docker compose up -d", 1, "", original))

	if !errors.Is(wrapped, original) {
		t.Error("errors.Is should find the original error")
	}
	var cmdErr *CommandError
	if !errors.As(wrapped, &cmdErr) {
		t.Fatal("errors.As should find the CommandError")
	}
	if cmdErr.Command != "docker compose up -d" {
		t.Errorf("Command = %q", cmdErr.Command)
	}
}

func TestWrapCommandError(t *testing.T) {
	if WrapCommandError(nil, "x", 0, "") != nil {
		t.Error("nil error should stay nil")
	}

	existing := NewCommandError("docker info", 1, "daemon down", nil)
	if got := WrapCommandError(fmt.Errorf("check: %w", existing), "other", 9, "ignored"); got != existing {
		t.Error("an existing CommandError should not be double-wrapped")
	}

	plain := errors.New("boom")
	got := WrapCommandError(plain, "git pull", 128, "fatal: not a git repository")
	if got.ExitCode != 128 || !errors.Is(got, plain) {
		t.Errorf("WrapCommandError() = %+v", got)
	}
}

func TestExtractStderr(t *testing.T) {
	inner := NewCommandError("inner", 1, "inner stderr", nil)
	outer := NewCommandError("outer", 1, "", inner)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("x"), ""},
		{"direct", inner, "inner stderr"},
		{"through wrapping", fmt.Errorf("step: %w", inner), "inner stderr"},
		{"skips empty stderr", outer, "inner stderr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractStderr(tt.err); got != tt.want {
				t.Errorf("ExtractStderr() = %q, want %q", got, tt.want)
			}
		})
	}
}
