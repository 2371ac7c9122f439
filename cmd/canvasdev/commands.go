// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/config"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/failure"
	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
	"github.com/pankajkumar3021/canvas-lms/pkg/ux"
)

const longHelp = `canvasdev prepares and starts the canvas-lms docker-compose development
environment. Run it from the root of a canvas-lms checkout.

With no flag it checks the host, builds images if they are missing, starts
every service, waits for the database, creates or migrates the database and
waits for the asset compiler.

Exit codes: 0 success, 1 failure, 2 usage error, 130 interrupted.

Configuration is read from .canvasdev.yaml in the checkout when present and
from CANVASDEV_* environment variables.`

// app holds what one invocation of the CLI needs. Tests replace the
// factory and the config loader.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	factory StackFactory

	loadConfig func(opts config.LoadOptions) (config.CanvasDevConfig, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:     stdout,
		stderr:     stderr,
		factory:    NewDefaultStackFactory(),
		loadConfig: config.Load,
	}
}

// newRootCmd builds the command. The selected mode is written to *mode
// and RunE is left to the caller.
func newRootCmd(mode *RunMode) *cobra.Command {
	var start, update, rebuild bool

	cmd := &cobra.Command{
		Use:   "canvasdev [--start | --update | --rebuild]",
		Short: "Bootstrap and start the canvas-lms development environment",
		Long:  longHelp,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &failure.UsageError{Message: fmt.Sprintf("unexpected argument %q", args[0]), Accepted: acceptedModes()}
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case start:
				*mode = ModeStart
			case update:
				*mode = ModeUpdate
			case rebuild:
				*mode = ModeRebuild
			default:
				*mode = ModeFull
			}
			return nil
		},
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	flags := cmd.Flags()
	flags.BoolVar(&start, "start", false, "start existing containers and wait for the asset compiler")
	flags.BoolVar(&update, "update", false, "pull the latest code, run migrations and restart web and jobs")
	flags.BoolVar(&rebuild, "rebuild", false, "stop, rebuild images, reinstall dependencies and start again (data is kept)")
	cmd.MarkFlagsMutuallyExclusive("start", "update", "rebuild")

	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &failure.UsageError{Message: err.Error(), Accepted: acceptedModes()}
	})
	return cmd
}

// execute parses args, runs the selected mode and returns the exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	var mode RunMode
	entered := false
	var runErr error

	cmd := newRootCmd(&mode)
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		entered = true
		runErr = a.run(ctx, mode)
		return runErr
	}

	err := cmd.Execute()
	if entered {
		return failure.ExitCode(runErr)
	}
	if err == nil {
		// --help
		return failure.ExitOK
	}

	var usage *failure.UsageError
	if !errors.As(err, &usage) {
		usage = &failure.UsageError{Message: err.Error(), Accepted: acceptedModes()}
	}
	fmt.Fprintf(a.stderr, "canvasdev: %s\n\n", usage.Error())
	fmt.Fprint(a.stderr, cmd.UsageString())
	return failure.ExitCode(usage)
}

// run loads configuration, wires the stack and runs mode.
func (a *app) run(ctx context.Context, mode RunMode) error {
	cfg, err := a.loadConfig(config.LoadOptions{})
	if err != nil {
		fmt.Fprintf(a.stderr, "canvasdev: invalid configuration: %v\n", err)
		return err
	}

	console := ux.NewConsole(a.stdout, a.stderr, detectLevel(cfg.Output, a.stdout))
	logger := newLogger(cfg.Logging, a.stderr)
	defer logger.Close()

	if path := logger.FilePath(); path != "" {
		console.Muted("log file: " + path)
	}

	mgr, err := a.factory.CreateStackManager(cfg, console, logger)
	if err != nil {
		console.ErrorBox("setup failed", err.Error())
		return err
	}

	_, err = mgr.Run(ctx, mode)
	return err
}

// detectLevel picks the console level for w. Writers that are not files
// are never terminals.
func detectLevel(override string, w io.Writer) ux.PersonalityLevel {
	f, _ := w.(*os.File)
	return ux.DetectPersonality(override, f)
}

// newLogger builds the run logger. Structured entries go to the log file
// when one is configured; stderr only carries them at debug level or in
// JSON mode, since the console already shows progress.
func newLogger(cfg config.LoggingConfig, stderr io.Writer) *logging.Logger {
	level, ok := logging.ParseLevel(cfg.Level)
	if !ok {
		level = logging.LevelInfo
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "canvasdev",
		JSON:    cfg.JSON,
		Quiet:   !cfg.JSON && level != logging.LevelDebug,
		Output:  stderr,
	})
}
