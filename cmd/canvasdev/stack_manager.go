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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/config"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/deps"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/failure"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/compose"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/process"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/initializer"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/readiness"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/util"
	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
	"github.com/pankajkumar3021/canvas-lms/pkg/ux"
)

// ErrNilDependency is returned when a required component is missing.
var ErrNilDependency = errors.New("required dependency is nil")

// =============================================================================
// INTERFACE
// =============================================================================

// StackManager runs one mode's step sequence against the dev environment.
type StackManager interface {
	// Run executes mode's steps in order and prints the final report.
	//
	// # Description
	//
	// Steps run strictly one after another. The first failing step stops
	// the run; completed steps are not undone. Every decision (image
	// present, database bootstrapped, service ready) is made from a live
	// query during this call.
	//
	// # Inputs
	//
	//   - ctx: Cancelling it stops the current step and the run
	//   - mode: One of allModes
	//
	// # Outputs
	//
	//   - *RunReport: Per-step outcomes, also on failure
	//   - error: A *failure.StepError naming the failed step, or nil
	Run(ctx context.Context, mode RunMode) (*RunReport, error)
}

// =============================================================================
// IMPLEMENTATION
// =============================================================================

// StackComponents are the collaborators DefaultStackManager drives.
// Pinger may be nil; everything else is required.
type StackComponents struct {
	Checker    infra.SystemChecker
	Compose    compose.ComposeExecutor
	Prober     *readiness.Prober
	Database   initializer.DatabaseInitializer
	Installer  deps.Installer
	Process    process.Manager
	Pinger     readiness.Pinger
	Config     config.CanvasDevConfig
	Logger     *logging.Logger
	Console    *ux.Console
	PullOutput io.Writer
}

// modeHandler runs one mode. Handlers call step for each named step.
type modeHandler func(s *DefaultStackManager, ctx context.Context, run *runState) error

// runState is what one invocation learns as it goes.
type runState struct {
	report *RunReport
	logger *logging.Logger
	check  *infra.CheckReport

	// current is the step being executed.
	current string
}

// DefaultStackManager implements StackManager.
type DefaultStackManager struct {
	checker   infra.SystemChecker
	compose   compose.ComposeExecutor
	prober    *readiness.Prober
	database  initializer.DatabaseInitializer
	installer deps.Installer
	proc      process.Manager
	pinger    readiness.Pinger
	config    config.CanvasDevConfig
	logger    *logging.Logger
	console   *ux.Console

	// pullOutput receives the output of the pull command.
	pullOutput io.Writer

	handlers map[RunMode]modeHandler
	newRunID func() string
}

// NewDefaultStackManager creates a StackManager.
//
// # Outputs
//
//   - error: Wraps ErrNilDependency naming the missing component
func NewDefaultStackManager(c StackComponents) (*DefaultStackManager, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"SystemChecker", c.Checker == nil},
		{"ComposeExecutor", c.Compose == nil},
		{"Prober", c.Prober == nil},
		{"DatabaseInitializer", c.Database == nil},
		{"Installer", c.Installer == nil},
		{"ProcessManager", c.Process == nil},
		{"Console", c.Console == nil},
	}
	for _, r := range required {
		if r.missing {
			return nil, fmt.Errorf("%w: %s", ErrNilDependency, r.name)
		}
	}

	logger := c.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	pullOutput := c.PullOutput
	if pullOutput == nil {
		pullOutput = c.Console.Out
	}

	return &DefaultStackManager{
		checker:    c.Checker,
		compose:    c.Compose,
		prober:     c.Prober,
		database:   c.Database,
		installer:  c.Installer,
		proc:       c.Process,
		pinger:     c.Pinger,
		config:     c.Config,
		logger:     logger,
		console:    c.Console,
		pullOutput: pullOutput,
		handlers: map[RunMode]modeHandler{
			ModeFull:    (*DefaultStackManager).runFull,
			ModeStart:   (*DefaultStackManager).runStart,
			ModeUpdate:  (*DefaultStackManager).runUpdate,
			ModeRebuild: (*DefaultStackManager).runRebuild,
		},
		newRunID: func() string { return uuid.NewString() },
	}, nil
}

// Run implements StackManager.
func (s *DefaultStackManager) Run(ctx context.Context, mode RunMode) (report *RunReport, err error) {
	report = &RunReport{
		RunID:   s.newRunID(),
		Mode:    mode,
		Planned: modeSteps[mode],
		Started: time.Now(),
	}
	run := &runState{
		report: report,
		logger: s.logger.With("run_id", report.RunID, "mode", mode.String()),
	}

	defer func() {
		recoverPanic(recover(), &err)
		report.Err = err
		report.Finished = time.Now()
		if err != nil {
			run.logger.Error("run failed", "step", failure.FailedStep(err), "error", err)
		} else {
			run.logger.Info("run complete", "duration", report.Finished.Sub(report.Started))
		}
		printReport(s.console, report)
	}()

	handler, ok := s.handlers[mode]
	if !ok {
		return report, &failure.UsageError{Message: "unknown mode " + mode.String(), Accepted: acceptedModes()}
	}

	run.logger.Info("run started", "project_dir", s.config.ProjectDir)
	s.console.Title("canvasdev " + mode.String())
	return report, handler(s, ctx, run)
}

// =============================================================================
// MODE HANDLERS
// =============================================================================

func (s *DefaultStackManager) runFull(ctx context.Context, run *runState) error {
	if err := s.step(ctx, run, StepPreconditionCheck, s.checkPreconditions); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepBuild, s.buildIfMissing); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepStart, s.startServices); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepWaitDatabase, s.waitDatabase); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepInitDatabase, s.initDatabase); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepWaitAssetCompiler, s.waitCompiler); err != nil {
		return err
	}
	return s.step(ctx, run, StepReport, s.finishReport)
}

func (s *DefaultStackManager) runStart(ctx context.Context, run *runState) error {
	if err := s.step(ctx, run, StepPreconditionCheck, s.checkPreconditions); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepStart, s.startServices); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepWaitAssetCompiler, s.waitCompiler); err != nil {
		return err
	}
	return s.step(ctx, run, StepReport, s.finishReport)
}

func (s *DefaultStackManager) runUpdate(ctx context.Context, run *runState) error {
	if err := s.step(ctx, run, StepPull, s.pull); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepMigrate, s.migrate); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepRestart, s.restartApp); err != nil {
		return err
	}
	return s.step(ctx, run, StepReport, s.finishReport)
}

func (s *DefaultStackManager) runRebuild(ctx context.Context, run *runState) error {
	if err := s.step(ctx, run, StepStop, s.stopServices); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepBuild, s.forceBuild); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepInstallBackendDeps, s.installBackend); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepInstallFrontendDeps, s.installFrontend); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepStart, s.startServices); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepWaitDatabase, s.waitDatabase); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepMigrate, s.migrate); err != nil {
		return err
	}
	if err := s.step(ctx, run, StepWaitAssetCompiler, s.waitCompiler); err != nil {
		return err
	}
	return s.step(ctx, run, StepReport, s.finishReport)
}

// =============================================================================
// STEP EXECUTION
// =============================================================================

// stepFunc performs one step and describes how it went.
type stepFunc func(ctx context.Context, run *runState) (StepStatus, string, error)

// step runs fn, records the outcome and attributes any error to name.
func (s *DefaultStackManager) step(ctx context.Context, run *runState, name string, fn stepFunc) error {
	if err := ctx.Err(); err != nil {
		run.report.record(StepRecord{Name: name, Status: StepFailed, Detail: "cancelled"})
		return failure.AtStep(name, err)
	}

	run.current = name
	log := run.logger.With("step", name)
	if name != StepReport {
		s.console.Step(name, stepDescriptions[name])
	}
	log.Debug("step started")

	start := time.Now()
	status, detail, err := fn(ctx, run)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		run.report.record(StepRecord{Name: name, Status: StepFailed, Detail: err.Error(), Duration: duration})
		log.Error("step failed", "duration", duration, "error", err)
		return failure.AtStep(name, err)
	}

	run.report.record(StepRecord{Name: name, Status: status, Detail: detail, Duration: duration})
	log.Info("step finished", "status", status.String(), "duration", duration)
	return nil
}

var stepDescriptions = map[string]string{
	StepPreconditionCheck:   "checking docker, the checkout and configuration files",
	StepBuild:               "building images",
	StepStart:               "starting services",
	StepWaitDatabase:        "waiting for the database",
	StepInitDatabase:        "initializing the database",
	StepWaitAssetCompiler:   "waiting for the asset compiler",
	StepPull:                "pulling the latest code",
	StepMigrate:             "running migrations",
	StepRestart:             "restarting the application",
	StepStop:                "stopping services (data is kept)",
	StepInstallBackendDeps:  "installing backend dependencies",
	StepInstallFrontendDeps: "installing frontend dependencies",
}

// =============================================================================
// STEPS
// =============================================================================

func (s *DefaultStackManager) checkPreconditions(ctx context.Context, run *runState) (StepStatus, string, error) {
	report, err := s.checker.Check(ctx)
	if err != nil {
		return 0, "", err
	}
	run.check = report
	if report.MarkerImage != "" {
		s.console.Info("marker image " + report.MarkerImage)
	}
	return StepOK, fmt.Sprintf("docker %s, compose %s", report.RuntimeVersion, report.ComposeVersion), nil
}

func (s *DefaultStackManager) buildIfMissing(ctx context.Context, run *runState) (StepStatus, string, error) {
	marker := ""
	if run.check != nil {
		marker = run.check.MarkerImage
	}
	res, err := s.compose.Build(ctx, compose.BuildOptions{MarkerImage: marker})
	if err != nil {
		return 0, "", err
	}
	if res.Skipped {
		return StepSkipped, "image " + res.MarkerImage + " already exists", nil
	}
	return StepOK, "images built", nil
}

func (s *DefaultStackManager) forceBuild(ctx context.Context, run *runState) (StepStatus, string, error) {
	if _, err := s.compose.Build(ctx, compose.BuildOptions{Force: true}); err != nil {
		return 0, "", err
	}
	return StepOK, "images rebuilt", nil
}

func (s *DefaultStackManager) startServices(ctx context.Context, run *runState) (StepStatus, string, error) {
	services := compose.ServiceSet(s.config.Services.All())
	if _, err := s.compose.Up(ctx, services); err != nil {
		return 0, "", err
	}
	detail := services.String() + " started"

	// ps is informational only; readiness is decided by the probes.
	status, err := s.compose.Status(ctx)
	if err != nil {
		run.logger.Debug("compose ps failed", "error", err)
		return StepOK, detail, nil
	}
	detail += fmt.Sprintf(" (%d/%d running)", status.Running, len(status.Services))
	if status.Unhealthy > 0 {
		detail += fmt.Sprintf(", %d unhealthy", status.Unhealthy)
	}
	return StepOK, detail, nil
}

func (s *DefaultStackManager) stopServices(ctx context.Context, run *runState) (StepStatus, string, error) {
	if _, err := s.compose.Stop(ctx, compose.StopOptions{Policy: compose.PreserveData}); err != nil {
		return 0, "", err
	}
	return StepOK, "services stopped, volumes kept", nil
}

func (s *DefaultStackManager) restartApp(ctx context.Context, run *runState) (StepStatus, string, error) {
	services := compose.ServiceSet{s.config.Services.Web, s.config.Services.Jobs}
	if _, err := s.compose.Restart(ctx, services); err != nil {
		return 0, "", err
	}
	return StepOK, services.String() + " restarted", nil
}

func (s *DefaultStackManager) waitDatabase(ctx context.Context, run *runState) (StepStatus, string, error) {
	return s.wait(ctx, run, readiness.DatabaseTarget(s.compose, s.pinger, s.config))
}

func (s *DefaultStackManager) waitCompiler(ctx context.Context, run *runState) (StepStatus, string, error) {
	return s.wait(ctx, run, readiness.CompilerTarget(s.compose, s.config))
}

// wait probes target. A timeout fails the step only for fatal targets;
// otherwise it becomes a warning in the report.
func (s *DefaultStackManager) wait(ctx context.Context, run *runState, target readiness.Target) (StepStatus, string, error) {
	spin := s.console.Spinner(stepDescriptions[run.current])
	target.Observe = spin.Attempt
	spin.Start()
	res := s.prober.Probe(ctx, target)
	spin.Stop()
	run.report.Probes = append(run.report.Probes, res)

	switch res.Outcome {
	case readiness.Ready:
		s.console.Success(target.Name + " " + readiness.Describe(res))
		return StepOK, readiness.Describe(res), nil
	case readiness.Cancelled:
		if err := ctx.Err(); err != nil {
			return 0, "", err
		}
		return 0, "", context.Canceled
	}

	if target.Fatal {
		return 0, "", res.TimeoutError()
	}
	warning := fmt.Sprintf("%s %s; check 'docker compose logs %s'", target.Name, readiness.Describe(res), target.Service)
	run.report.Warnings = append(run.report.Warnings, warning)
	s.console.Warning(warning)
	run.logger.Warn("non-fatal readiness timeout", "target", target.Name, "attempts", res.Attempts)
	return StepWarning, readiness.Describe(res), nil
}

func (s *DefaultStackManager) initDatabase(ctx context.Context, run *runState) (StepStatus, string, error) {
	action, err := s.database.Initialize(ctx)
	if err != nil {
		return 0, "", err
	}
	return StepOK, "database " + action.String(), nil
}

func (s *DefaultStackManager) migrate(ctx context.Context, run *runState) (StepStatus, string, error) {
	if err := s.database.Migrate(ctx); err != nil {
		return 0, "", err
	}
	return StepOK, "migrations applied", nil
}

func (s *DefaultStackManager) installBackend(ctx context.Context, run *runState) (StepStatus, string, error) {
	if err := s.installer.InstallBackendDeps(ctx); err != nil {
		return 0, "", err
	}
	return StepOK, "backend packages installed", nil
}

func (s *DefaultStackManager) installFrontend(ctx context.Context, run *runState) (StepStatus, string, error) {
	if err := s.installer.InstallFrontendDeps(ctx); err != nil {
		return 0, "", err
	}
	return StepOK, "frontend packages installed", nil
}

// pull runs the configured pull command on the host in the checkout.
func (s *DefaultStackManager) pull(ctx context.Context, run *runState) (StepStatus, string, error) {
	command := s.config.Update.PullCommand
	if len(command) == 0 {
		return StepSkipped, "no pull command configured", nil
	}
	var errBuf bytes.Buffer
	code, err := s.proc.Stream(ctx, s.config.ProjectDir, nil, s.pullOutput, io.MultiWriter(s.pullOutput, &errBuf), command[0], command[1:]...)
	if ctx.Err() != nil {
		return 0, "", ctx.Err()
	}
	cmdLine := strings.Join(command, " ")
	if err != nil {
		return 0, "", util.WrapCommandError(err, cmdLine, code, errBuf.String())
	}
	if code != 0 {
		return 0, "", util.NewCommandError(cmdLine, code, errBuf.String(), nil)
	}
	return StepOK, "code updated", nil
}

func (s *DefaultStackManager) finishReport(ctx context.Context, run *runState) (StepStatus, string, error) {
	if len(run.report.Warnings) > 0 {
		return StepWarning, fmt.Sprintf("%d warning(s)", len(run.report.Warnings)), nil
	}
	return StepOK, "", nil
}

// =============================================================================
// HELPERS
// =============================================================================

func acceptedModes() []string {
	out := []string{"(no flag) full"}
	for _, m := range allModes[1:] {
		out = append(out, m.Flag())
	}
	return out
}

// recoverPanic converts a panic into an error so the report still prints.
func recoverPanic(r interface{}, errPtr *error) {
	if r == nil {
		return
	}
	*errPtr = fmt.Errorf("internal error: %v", r)
}

var _ StackManager = (*DefaultStackManager)(nil)
