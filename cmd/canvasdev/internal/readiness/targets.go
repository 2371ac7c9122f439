// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package readiness

import (
	"context"
	"fmt"
	"strings"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/config"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/compose"
)

// Pinger answers whether the database accepts connections.
// *pgprobe.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseTarget waits for postgres to accept connections.
//
// # Description
//
// With a Pinger the predicate connects directly. Otherwise it runs
// `pg_isready` inside the database container. The target is fatal.
//
// # Inputs
//
//   - exec: Used when pinger is nil
//   - pinger: Optional direct strategy
//   - cfg: Service names, database user and the probe budget
func DatabaseTarget(exec compose.ComposeExecutor, pinger Pinger, cfg config.CanvasDevConfig) Target {
	service := cfg.Services.Postgres

	var predicate Predicate
	if pinger != nil {
		predicate = func(ctx context.Context) (bool, error) {
			if err := pinger.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		}
	} else {
		predicate = func(ctx context.Context) (bool, error) {
			res, err := exec.Exec(ctx, compose.ExecOptions{
				Service: service,
				Command: []string{"pg_isready", "-U", cfg.Database.User},
			})
			if err != nil {
				return false, err
			}
			if !res.Succeeded() {
				return false, res.Err()
			}
			return true, nil
		}
	}

	return Target{
		Name:        "database",
		Service:     service,
		Predicate:   predicate,
		MaxAttempts: cfg.Readiness.Database.MaxAttempts,
		Interval:    cfg.Readiness.Database.Interval,
		Timeout:     cfg.Readiness.Database.AttemptTimeout,
		Fatal:       true,
	}
}

// CompilerTarget waits for the asset compiler's success line in its logs.
// A failing logs command counts as not ready even if its output happens
// to contain the marker. The target is not fatal.
func CompilerTarget(exec compose.ComposeExecutor, cfg config.CanvasDevConfig) Target {
	service := cfg.Services.Webpack
	marker := cfg.Readiness.CompilerMarker
	tail := cfg.Readiness.CompilerLogTail

	return Target{
		Name:    "asset compiler",
		Service: service,
		Predicate: func(ctx context.Context) (bool, error) {
			out, err := exec.Logs(ctx, compose.LogsOptions{Service: service, Tail: tail})
			if err != nil {
				return false, err
			}
			if !strings.Contains(out, marker) {
				return false, nil
			}
			return true, nil
		},
		MaxAttempts: cfg.Readiness.Compiler.MaxAttempts,
		Interval:    cfg.Readiness.Compiler.Interval,
		Timeout:     cfg.Readiness.Compiler.AttemptTimeout,
		Fatal:       false,
	}
}

// Describe renders a one-line summary of a result for the report.
func Describe(r Result) string {
	switch r.Outcome {
	case Ready:
		return fmt.Sprintf("ready after %d attempt%s", r.Attempts, plural(r.Attempts))
	case TimedOut:
		return fmt.Sprintf("not ready after %d attempt%s", r.Attempts, plural(r.Attempts))
	default:
		return fmt.Sprintf("cancelled after %d attempt%s", r.Attempts, plural(r.Attempts))
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
