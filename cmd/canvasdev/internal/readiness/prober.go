// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package readiness polls a service until it is usable or a bounded
// attempt budget runs out.
//
// # Overview
//
// A Target pairs a predicate with a budget. Prober.Probe evaluates the
// predicate up to MaxAttempts times, sleeping Interval between attempts.
// The result is a value: a timeout is an Outcome, not an error, so the
// caller decides whether it is fatal (database) or a warning (asset
// compiler).
//
//	result := prober.Probe(ctx, readiness.DatabaseTarget(exec, pinger, cfg))
//	switch result.Outcome {
//	case readiness.Ready:
//	case readiness.TimedOut:
//	    return result.TimeoutError()
//	case readiness.Cancelled:
//	    return ctx.Err()
//	}
package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/failure"
	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
)

// =============================================================================
// TYPES
// =============================================================================

// Predicate reports whether a target is usable right now.
//
// An error always means not ready, whatever the boolean says.
type Predicate func(ctx context.Context) (bool, error)

// Target describes one readiness wait.
type Target struct {
	// Name is the human label used in output ("database").
	Name string

	// Service is the compose service being waited on.
	Service string

	Predicate   Predicate
	MaxAttempts int
	Interval    time.Duration

	// Timeout bounds each predicate evaluation. An evaluation that runs
	// past it counts as a failed attempt. Zero means no per-attempt bound.
	Timeout time.Duration

	// Fatal marks a target whose timeout must stop the run.
	Fatal bool

	// Observe, when set, is called before each attempt.
	Observe func(attempt, maxAttempts int)
}

// Outcome is how a probe ended.
type Outcome int

const (
	Ready Outcome = iota
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed out"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes a finished probe.
type Result struct {
	Target   string
	Service  string
	Outcome  Outcome
	Attempts int

	// LastErr is the error from the last failed evaluation, if any.
	LastErr error
	Elapsed time.Duration
}

// TimeoutError converts a TimedOut result into the error the run reports.
func (r Result) TimeoutError() error {
	return &failure.ReadinessTimeoutError{
		Target:   r.Target,
		Service:  r.Service,
		Attempts: r.Attempts,
		Elapsed:  r.Elapsed,
		LastErr:  r.LastErr,
	}
}

// =============================================================================
// PROBER
// =============================================================================

// Prober runs bounded readiness loops.
type Prober struct {
	logger *logging.Logger

	// sleep waits for d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewProber creates a Prober that sleeps on the wall clock.
func NewProber(logger *logging.Logger) *Prober {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Prober{
		logger: logger,
		sleep:  sleepWithContext,
		now:    time.Now,
	}
}

// Probe polls target until it is ready, its budget is spent or ctx ends.
//
// # Description
//
// Evaluates the predicate at most MaxAttempts times, each under its own
// Timeout deadline. There is no sleep after the final attempt. The predicate is evaluated fresh every time;
// no earlier answer is reused.
//
// # Inputs
//
//   - ctx: Cancellation during a predicate or a sleep returns Cancelled
//     immediately
//   - target: MaxAttempts below 1 is treated as 1
//
// # Outputs
//
//   - Result: Outcome, attempt count, last predicate error and elapsed time
func (p *Prober) Probe(ctx context.Context, target Target) Result {
	start := p.now()
	maxAttempts := max(target.MaxAttempts, 1)
	result := Result{Target: target.Name, Service: target.Service}

	log := p.logger.With("target", target.Name, "service", target.Service)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return p.finish(result, Cancelled, start)
		}

		result.Attempts = attempt
		if target.Observe != nil {
			target.Observe(attempt, maxAttempts)
		}
		ready, err := evaluate(ctx, target)
		if ctx.Err() != nil {
			return p.finish(result, Cancelled, start)
		}
		if err != nil {
			result.LastErr = err
			log.Debug("readiness attempt failed", "attempt", attempt, "error", err)
		} else if ready {
			log.Info("target ready", "attempts", attempt)
			return p.finish(result, Ready, start)
		} else {
			log.Debug("target not ready", "attempt", attempt)
		}

		if attempt == maxAttempts {
			break
		}
		if err := p.sleep(ctx, target.Interval); err != nil {
			return p.finish(result, Cancelled, start)
		}
	}

	log.Warn("readiness budget exhausted", "attempts", result.Attempts, "last_error", result.LastErr)
	return p.finish(result, TimedOut, start)
}

// evaluate runs the predicate under the target's per-attempt deadline.
func evaluate(ctx context.Context, target Target) (bool, error) {
	if target.Timeout <= 0 {
		return target.Predicate(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, target.Timeout)
	defer cancel()

	ready, err := target.Predicate(attemptCtx)
	if err == nil && attemptCtx.Err() != nil {
		err = fmt.Errorf("attempt exceeded %s: %w", target.Timeout, attemptCtx.Err())
	}
	if err != nil {
		return false, err
	}
	return ready, nil
}

func (p *Prober) finish(r Result, outcome Outcome, start time.Time) Result {
	r.Outcome = outcome
	r.Elapsed = p.now().Sub(start)
	return r
}

// sleepWithContext sleeps for d or until ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
