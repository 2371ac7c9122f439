// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package failure defines the error taxonomy reported by canvasdev.
//
// Every failure a run can end with is one of the typed errors below,
// usually wrapped in a StepError naming the step that produced it. The
// typed errors carry a short Label for the report and a Remediation that
// tells the operator what to do next.
package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Exit codes returned by the canvasdev binary.
const (
	ExitOK        = 0
	ExitFatal     = 1
	ExitUsage     = 2
	ExitCancelled = 130
)

// ErrCancelled is returned when the operator interrupts a run.
var ErrCancelled = errors.New("run cancelled")

// Labeled is implemented by every typed error in this package.
type Labeled interface {
	error

	// Label is a short, stable category for the report ("missing configuration").
	Label() string

	// Remediation tells the operator how to fix the problem. May be empty.
	Remediation() string
}

// =============================================================================
// Checker-phase errors
// =============================================================================

// UsageError reports an invalid invocation. Nothing has been mutated.
type UsageError struct {
	Message  string
	Accepted []string
}

func (e *UsageError) Error() string {
	if len(e.Accepted) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (accepted: %s)", e.Message, strings.Join(e.Accepted, ", "))
}

func (e *UsageError) Label() string { return "usage error" }

func (e *UsageError) Remediation() string {
	return "run 'canvasdev --help' to see the accepted modes"
}

// EnvironmentNotReadyError reports that a host prerequisite is missing or
// unreachable: the container runtime, the compose tool, or the database.
type EnvironmentNotReadyError struct {
	// Component names the unreachable prerequisite ("docker", "docker compose", "database").
	Component string

	// Detail is what was observed.
	Detail string

	// Hint is the remediation text.
	Hint string

	// Err is the underlying cause, may be nil.
	Err error
}

func (e *EnvironmentNotReadyError) Error() string {
	msg := e.Component + " is not ready"
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EnvironmentNotReadyError) Unwrap() error       { return e.Err }
func (e *EnvironmentNotReadyError) Label() string       { return "environment not ready" }
func (e *EnvironmentNotReadyError) Remediation() string { return e.Hint }

// WrongDirectoryError reports that canvasdev was not started from the
// project root.
type WrongDirectoryError struct {
	Dir    string
	Marker string
	Reason string
}

func (e *WrongDirectoryError) Error() string {
	return fmt.Sprintf("%s does not look like the canvas-lms project root: %s %s", e.Dir, e.Marker, e.Reason)
}

func (e *WrongDirectoryError) Label() string { return "wrong directory" }

func (e *WrongDirectoryError) Remediation() string {
	return "cd into the root of your canvas-lms checkout and run canvasdev again"
}

// MissingConfigError lists every missing configuration artifact at once.
//
// # Description
//
// Missing holds artifact paths in declaration order. UndeclaredServices is
// set instead when the artifacts exist but the compose project does not
// declare a service canvasdev manages. Err is set when the compose files
// could not be loaded at all.
type MissingConfigError struct {
	Missing            []string
	UndeclaredServices []string
	SetupDoc           string
	Section            string
	Err                error
}

func (e *MissingConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("%d configuration file(s) missing: %s",
			len(e.Missing), strings.Join(e.Missing, ", ")))
	}
	if len(e.UndeclaredServices) > 0 {
		parts = append(parts, fmt.Sprintf("compose project does not declare service(s): %s",
			strings.Join(e.UndeclaredServices, ", ")))
	}
	if e.Err != nil {
		parts = append(parts, "compose project could not be loaded: "+e.Err.Error())
	}
	if len(parts) == 0 {
		return "configuration incomplete"
	}
	return strings.Join(parts, "; ")
}

func (e *MissingConfigError) Unwrap() error { return e.Err }
func (e *MissingConfigError) Label() string { return "missing configuration" }

func (e *MissingConfigError) Remediation() string {
	if e.SetupDoc == "" {
		return ""
	}
	if e.Section == "" {
		return "see " + e.SetupDoc
	}
	return fmt.Sprintf("see %s, section %q", e.SetupDoc, e.Section)
}

// =============================================================================
// Controller-phase errors
// =============================================================================

// ReadinessTimeoutError reports that a fatal readiness target exhausted its
// attempt budget.
type ReadinessTimeoutError struct {
	Target string

	// Service is the compose service behind the target.
	Service  string
	Attempts int
	Elapsed  time.Duration
	LastErr  error
}

func (e *ReadinessTimeoutError) Error() string {
	msg := fmt.Sprintf("%s not ready after %d attempts (%s)", e.Target, e.Attempts, e.Elapsed.Round(time.Second))
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *ReadinessTimeoutError) Unwrap() error { return e.LastErr }
func (e *ReadinessTimeoutError) Label() string { return "readiness timeout" }

func (e *ReadinessTimeoutError) Remediation() string {
	service := e.Service
	if service == "" {
		service = e.Target
	}
	return fmt.Sprintf("inspect 'docker compose logs %s'; the readiness budget is configurable under readiness", service)
}

// DatabaseInitError reports a failed create, seed or migrate command.
// It is never repaired automatically.
type DatabaseInitError struct {
	// Operation is "create" or "migrate".
	Operation string
	Err       error
}

func (e *DatabaseInitError) Error() string {
	return fmt.Sprintf("database %s failed: %v", e.Operation, e.Err)
}

func (e *DatabaseInitError) Unwrap() error { return e.Err }
func (e *DatabaseInitError) Label() string { return "database initialization failed" }

func (e *DatabaseInitError) Remediation() string {
	return "fix the error above, then rerun; 'canvasdev --update' only migrates"
}

// DependencyInstallError reports a failed bundle or yarn install.
type DependencyInstallError struct {
	// Ecosystem is "backend" or "frontend".
	Ecosystem string
	Err       error
}

func (e *DependencyInstallError) Error() string {
	return fmt.Sprintf("%s dependency install failed: %v", e.Ecosystem, e.Err)
}

func (e *DependencyInstallError) Unwrap() error { return e.Err }
func (e *DependencyInstallError) Label() string { return "dependency install failed" }

func (e *DependencyInstallError) Remediation() string {
	return "check the lockfiles and network access, then rerun 'canvasdev --rebuild'"
}

// =============================================================================
// Step attribution
// =============================================================================

// StepError attaches the name of the failing step to an error.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// AtStep wraps err with the step name. A nil err stays nil and an error
// already attributed to a step keeps its original step.
func AtStep(step string, err error) error {
	if err == nil {
		return nil
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return err
	}
	if errors.Is(err, context.Canceled) && !errors.Is(err, ErrCancelled) {
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return &StepError{Step: step, Err: err}
}

// FailedStep returns the step name recorded in err's chain, or "".
func FailedStep(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}

// =============================================================================
// Classification
// =============================================================================

// Describe returns the label and remediation of the first Labeled error in
// err's chain. Unclassified errors get the label "error".
func Describe(err error) (label, remediation string) {
	if IsCancelled(err) {
		return "cancelled", "rerun canvasdev when ready"
	}
	var labeled Labeled
	if errors.As(err, &labeled) {
		return labeled.Label(), labeled.Remediation()
	}
	return "error", ""
}

// IsCancelled reports whether err is an operator interruption.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// ExitCode maps a run result to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if IsCancelled(err) {
		return ExitCancelled
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUsage
	}
	return ExitFatal
}

var (
	_ Labeled = (*UsageError)(nil)
	_ Labeled = (*EnvironmentNotReadyError)(nil)
	_ Labeled = (*WrongDirectoryError)(nil)
	_ Labeled = (*MissingConfigError)(nil)
	_ Labeled = (*ReadinessTimeoutError)(nil)
	_ Labeled = (*DatabaseInitError)(nil)
	_ Labeled = (*DependencyInstallError)(nil)
)
