// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package initializer

import (
	"context"
	"errors"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/failure"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/compose"
	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
)

// =============================================================================
// INTERFACE
// =============================================================================

// DatabaseInitializer decides between first-time setup and migration.
type DatabaseInitializer interface {
	// Detect probes the live database for the application schema.
	//
	// # Outputs
	//
	//   - BootstrapState: Absent or Present
	//   - error: failure.EnvironmentNotReadyError when the database cannot
	//     be reached; a context error when cancelled
	Detect(ctx context.Context) (BootstrapState, error)

	// Initialize creates and seeds an absent database, or migrates a
	// present one. Exactly one of the two runs per call.
	Initialize(ctx context.Context) (Action, error)

	// Migrate applies pending migrations without detecting first.
	// It never creates or seeds.
	Migrate(ctx context.Context) error
}

// =============================================================================
// IMPLEMENTATION
// =============================================================================

// DefaultDatabaseInitializer implements DatabaseInitializer with compose.
type DefaultDatabaseInitializer struct {
	config Config
	exec   compose.ComposeExecutor
	schema SchemaProber
	logger *logging.Logger
}

// NewDatabaseInitializer creates a DatabaseInitializer.
//
// # Inputs
//
//   - cfg: Services and commands
//   - exec: Runs every command
//   - schema: Optional direct detection strategy; nil uses DetectCommand
//   - logger: nil discards logs
//
// # Outputs
//
//   - error: ErrNoExecutor, ErrNoDatabaseProbe or ErrEmptyCommand
func NewDatabaseInitializer(cfg Config, exec compose.ComposeExecutor, schema SchemaProber, logger *logging.Logger) (*DefaultDatabaseInitializer, error) {
	if exec == nil {
		return nil, ErrNoExecutor
	}
	if schema == nil && len(cfg.DetectCommand) == 0 {
		return nil, ErrNoDatabaseProbe
	}
	if len(cfg.CreateCommand) == 0 || len(cfg.MigrateCommand) == 0 {
		return nil, ErrEmptyCommand
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &DefaultDatabaseInitializer{
		config: cfg,
		exec:   exec,
		schema: schema,
		logger: logger,
	}, nil
}

// Detect implements DatabaseInitializer.
func (d *DefaultDatabaseInitializer) Detect(ctx context.Context) (BootstrapState, error) {
	if d.schema != nil {
		return d.detectDirect(ctx)
	}
	return d.detectExec(ctx)
}

func (d *DefaultDatabaseInitializer) detectDirect(ctx context.Context) (BootstrapState, error) {
	present, err := d.schema.SchemaPresent(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Absent, ctx.Err()
		}
		return Absent, &failure.EnvironmentNotReadyError{
			Component: "database",
			Detail:    "the schema probe failed",
			Hint:      "check database.url and that the " + d.config.DatabaseService + " service is running",
			Err:       err,
		}
	}
	return d.state(present, "direct"), nil
}

func (d *DefaultDatabaseInitializer) detectExec(ctx context.Context) (BootstrapState, error) {
	if err := d.checkReachable(ctx); err != nil {
		return Absent, err
	}

	res, err := d.runDetect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Absent, ctx.Err()
		}
		return Absent, &failure.EnvironmentNotReadyError{
			Component: d.config.AppService,
			Detail:    "could not run the schema probe",
			Hint:      "check that the " + d.config.AppService + " image builds and starts",
			Err:       err,
		}
	}
	if !res.Succeeded() {
		d.logger.Debug("schema probe exited non-zero", "exit_code", res.ExitCode, "stderr", res.Stderr)
	}
	return d.state(res.Succeeded(), "exec"), nil
}

// runDetect runs the detect command inside the running application
// container. A stopped container falls back to a one-off container.
func (d *DefaultDatabaseInitializer) runDetect(ctx context.Context) (*compose.ExecResult, error) {
	res, err := d.exec.Exec(ctx, compose.ExecOptions{
		Service: d.config.AppService,
		Command: d.config.DetectCommand,
		Timeout: d.config.DetectTimeout,
	})
	if !errors.Is(err, compose.ErrContainerNotRunning) {
		return res, err
	}
	d.logger.Debug("application container not running, detecting in a one-off container", "service", d.config.AppService)
	return d.exec.Run(ctx, compose.RunOptions{
		Service: d.config.AppService,
		Command: d.config.DetectCommand,
	})
}

// checkReachable asks the database container whether it accepts
// connections. A probe that cannot reach the database says nothing about
// whether the schema exists.
func (d *DefaultDatabaseInitializer) checkReachable(ctx context.Context) error {
	res, err := d.exec.Exec(ctx, compose.ExecOptions{
		Service: d.config.DatabaseService,
		Command: []string{"pg_isready", "-U", d.config.DatabaseUser},
	})
	if err == nil {
		err = res.Err()
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	hint := "start the stack with 'canvasdev' and wait for the database"
	if errors.Is(err, compose.ErrContainerNotRunning) {
		hint = "the " + d.config.DatabaseService + " container is not running; start it with 'canvasdev --start'"
	}
	return &failure.EnvironmentNotReadyError{
		Component: "database",
		Detail:    "the database is not accepting connections",
		Hint:      hint,
		Err:       err,
	}
}

func (d *DefaultDatabaseInitializer) state(present bool, strategy string) BootstrapState {
	state := Absent
	if present {
		state = Present
	}
	d.logger.Info("bootstrap state detected", "state", state.String(), "strategy", strategy)
	return state
}

// Initialize implements DatabaseInitializer.
func (d *DefaultDatabaseInitializer) Initialize(ctx context.Context) (Action, error) {
	state, err := d.Detect(ctx)
	if err != nil {
		return 0, err
	}

	if state == Absent {
		if err := d.run(ctx, "create", d.config.CreateCommand); err != nil {
			return 0, err
		}
		return Created, nil
	}

	if err := d.run(ctx, "migrate", d.config.MigrateCommand); err != nil {
		return 0, err
	}
	return Migrated, nil
}

// Migrate implements DatabaseInitializer.
func (d *DefaultDatabaseInitializer) Migrate(ctx context.Context) error {
	return d.run(ctx, "migrate", d.config.MigrateCommand)
}

func (d *DefaultDatabaseInitializer) run(ctx context.Context, operation string, command []string) error {
	d.logger.Info("running database command", "operation", operation, "service", d.config.AppService)

	res, err := d.exec.Run(ctx, compose.RunOptions{
		Service: d.config.AppService,
		Command: command,
		Stream:  true,
	})
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &failure.DatabaseInitError{Operation: operation, Err: err}
	}
	return nil
}

var _ DatabaseInitializer = (*DefaultDatabaseInitializer)(nil)
