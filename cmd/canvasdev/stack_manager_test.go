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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// =============================================================================
// Simulated environment
// =============================================================================

// fakeEnv simulates the docker host, the database and the asset compiler
// behind a MockComposeExecutor.
type fakeEnv struct {
	imageExists    bool
	dbReachable    bool
	dbPresent      bool
	compilerReady  bool
	compilerOnLogs func(call int) // hook for cancellation tests
	logsCalls      int
	execCalls      int
	checkErr       error
	checkCalls     int
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{dbReachable: true, compilerReady: true}
}

func (e *fakeEnv) executor() *compose.MockComposeExecutor {
	return &compose.MockComposeExecutor{
		BuildFunc: func(ctx context.Context, opts compose.BuildOptions) (*compose.BuildResult, error) {
			if !opts.Force && e.imageExists {
				return &compose.BuildResult{Skipped: true, MarkerImage: opts.MarkerImage}, nil
			}
			e.imageExists = true
			return &compose.BuildResult{MarkerImage: opts.MarkerImage, Result: &compose.ComposeResult{Success: true}}, nil
		},
		ExecFunc: func(ctx context.Context, opts compose.ExecOptions) (*compose.ExecResult, error) {
			if strings.Contains(strings.Join(opts.Command, " "), "rails runner") {
				if !e.dbPresent {
					return &compose.ExecResult{ExitCode: 1}, nil
				}
				return &compose.ExecResult{}, nil
			}
			e.execCalls++
			if !e.dbReachable {
				return &compose.ExecResult{ExitCode: 2, Command: "pg_isready", Stderr: "no response"}, nil
			}
			return &compose.ExecResult{}, nil
		},
		RunFunc: func(ctx context.Context, opts compose.RunOptions) (*compose.ExecResult, error) {
			cmd := strings.Join(opts.Command, " ")
			if strings.Contains(cmd, "db:create") {
				e.dbPresent = true
			}
			return &compose.ExecResult{Command: cmd}, nil
		},
		LogsFunc: func(ctx context.Context, opts compose.LogsOptions) (string, error) {
			e.logsCalls++
			if e.compilerOnLogs != nil {
				e.compilerOnLogs(e.logsCalls)
			}
			if e.compilerReady {
				return "webpack compiled successfully in 9000 ms\n", nil
			}
			return "webpack: building...\n", nil
		},
	}
}

// Check implements infra.SystemChecker.
func (e *fakeEnv) Check(ctx context.Context) (*infra.CheckReport, error) {
	e.checkCalls++
	if e.checkErr != nil {
		return nil, e.checkErr
	}
	return &infra.CheckReport{RuntimeVersion: "27.3.1", ComposeVersion: "2.29.7", MarkerImage: "canvas-lms-web"}, nil
}

type testStack struct {
	mgr     *DefaultStackManager
	compose *compose.MockComposeExecutor
	proc    *process.MockManager
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	cfg     config.CanvasDevConfig
}

func testConfig(t *testing.T) config.CanvasDevConfig {
	cfg := config.DefaultConfig()
	cfg.ProjectDir = t.TempDir()
	cfg.Readiness.Database.Interval = 0
	cfg.Readiness.Compiler.Interval = 0
	cfg.Readiness.Compiler.MaxAttempts = 3
	return cfg
}

func newTestStack(t *testing.T, env *fakeEnv, checker infra.SystemChecker, cfg config.CanvasDevConfig) *testStack {
	t.Helper()
	exec := env.executor()
	proc := &process.MockManager{}
	if checker == nil {
		checker = env
	}

	database, err := initializer.NewDatabaseInitializer(initializer.ConfigFrom(cfg), exec, nil, nil)
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	mgr, err := NewDefaultStackManager(StackComponents{
		Checker:   checker,
		Compose:   exec,
		Prober:    readiness.NewProber(nil),
		Database:  database,
		Installer: deps.NewInstaller(deps.ConfigFrom(cfg), exec, nil),
		Process:   proc,
		Config:    cfg,
		Console:   ux.NewConsole(&stdout, &stderr, ux.PersonalityMachine),
	})
	require.NoError(t, err)
	mgr.newRunID = func() string { return "run-test" }

	return &testStack{mgr: mgr, compose: exec, proc: proc, stdout: &stdout, stderr: &stderr, cfg: cfg}
}

func runCommands(m *compose.MockComposeExecutor) []string {
	var out []string
	for _, r := range m.RunCalls {
		out = append(out, strings.Join(r.Command, " "))
	}
	return out
}

func containsCall(calls []string, prefix string) bool {
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	return lines[len(lines)-1]
}

// =============================================================================
// Scenarios
// =============================================================================

func TestRun_ScenarioA_FullFreshEnvironment(t *testing.T) {
	env := newFakeEnv()
	ts := newTestStack(t, env, nil, testConfig(t))

	report, err := ts.mgr.Run(context.Background(), ModeFull)
	require.NoError(t, err)
	assert.Equal(t, failure.ExitOK, failure.ExitCode(err))

	assert.Equal(t, modeSteps[ModeFull], report.StepNames())
	assert.Equal(t, 1, env.checkCalls)

	require.Len(t, ts.compose.BuildCalls, 1)
	assert.False(t, ts.compose.BuildCalls[0].Force)
	assert.Equal(t, "canvas-lms-web", ts.compose.BuildCalls[0].MarkerImage)
	build, _ := report.Step(StepBuild)
	assert.Equal(t, StepOK, build.Status)

	cmds := runCommands(ts.compose)
	assert.True(t, containsCall(cmds, "bundle exec rake db:create db:initial_setup"))
	assert.False(t, containsCall(cmds, "bundle exec rake db:migrate"), "fresh database is created, not migrated")

	init, _ := report.Step(StepInitDatabase)
	assert.Equal(t, "database created and seeded", init.Detail)
	assert.True(t, env.dbPresent)
}

func TestRun_Full_ExistingImageAndDatabase(t *testing.T) {
	env := newFakeEnv()
	env.imageExists = true
	env.dbPresent = true
	ts := newTestStack(t, env, nil, testConfig(t))

	report, err := ts.mgr.Run(context.Background(), ModeFull)
	require.NoError(t, err)

	build, _ := report.Step(StepBuild)
	assert.Equal(t, StepSkipped, build.Status)
	assert.Contains(t, build.Detail, "canvas-lms-web")

	cmds := runCommands(ts.compose)
	assert.True(t, containsCall(cmds, "bundle exec rake db:migrate"))
	assert.False(t, containsCall(cmds, "bundle exec rake db:create"))
}

func TestRun_Full_CompilerTimeoutIsWarning(t *testing.T) {
	env := newFakeEnv()
	env.compilerReady = false
	ts := newTestStack(t, env, nil, testConfig(t))

	report, err := ts.mgr.Run(context.Background(), ModeFull)
	require.NoError(t, err)
	assert.Equal(t, failure.ExitOK, failure.ExitCode(err))

	assert.Equal(t, 3, env.logsCalls)
	step, _ := report.Step(StepWaitAssetCompiler)
	assert.Equal(t, StepWarning, step.Status)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "asset compiler")
	assert.Contains(t, ts.stderr.String(), "WARN Warnings")
}

func TestRun_ScenarioB_Start(t *testing.T) {
	for _, ready := range []bool{true, false} {
		env := newFakeEnv()
		env.dbPresent = true
		env.compilerReady = ready
		ts := newTestStack(t, env, nil, testConfig(t))

		report, err := ts.mgr.Run(context.Background(), ModeStart)
		require.NoError(t, err, "compiler ready=%v", ready)

		assert.Equal(t, modeSteps[ModeStart], report.StepNames())
		assert.Empty(t, ts.compose.BuildCalls, "start never builds")
		assert.Empty(t, ts.compose.RunCalls, "start never touches the database")
		assert.Contains(t, ts.compose.GetCalls(), "Up")
		require.Len(t, report.Probes, 1)
	}
}

func TestRun_ScenarioC_Update(t *testing.T) {
	env := newFakeEnv()
	env.dbPresent = true
	ts := newTestStack(t, env, nil, testConfig(t))

	report, err := ts.mgr.Run(context.Background(), ModeUpdate)
	require.NoError(t, err)
	assert.Equal(t, modeSteps[ModeUpdate], report.StepNames())

	calls := ts.proc.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "git pull", calls[0].CommandLine())
	assert.Equal(t, ts.cfg.ProjectDir, calls[0].Dir)

	assert.Equal(t, []string{"bundle exec rake db:migrate"}, runCommands(ts.compose))
	require.Len(t, ts.compose.RestartCalls, 1)
	assert.Equal(t, compose.ServiceSet{"web", "jobs"}, ts.compose.RestartCalls[0])

	assert.Empty(t, ts.compose.BuildCalls)
	assert.Empty(t, ts.compose.StopCalls)
	assert.Zero(t, env.checkCalls)
}

func TestRun_Update_PullFails(t *testing.T) {
	env := newFakeEnv()
	ts := newTestStack(t, env, nil, testConfig(t))
	ts.proc.RunInDirFunc = func(ctx context.Context, dir string, envv []string, name string, args ...string) (string, string, int, error) {
		return "", "fatal: not a git repository", 128, nil
	}

	report, err := ts.mgr.Run(context.Background(), ModeUpdate)
	require.Error(t, err)
	assert.Equal(t, StepPull, failure.FailedStep(err))
	assert.Equal(t, []string{StepPull}, report.StepNames())
	assert.Empty(t, ts.compose.RunCalls)
	assert.Equal(t, `canvasdev: failed at step "pull"`, lastLine(ts.stderr.String()))
	assert.Equal(t, "fatal: not a git repository", util.ExtractStderr(err))
}

func TestRun_ScenarioD_Rebuild(t *testing.T) {
	env := newFakeEnv()
	env.imageExists = true
	env.dbPresent = false
	ts := newTestStack(t, env, nil, testConfig(t))

	report, err := ts.mgr.Run(context.Background(), ModeRebuild)
	require.NoError(t, err)
	assert.Equal(t, modeSteps[ModeRebuild], report.StepNames())

	require.Len(t, ts.compose.StopCalls, 1)
	assert.Equal(t, compose.PreserveData, ts.compose.StopCalls[0].Policy)
	assert.False(t, ts.compose.StopCalls[0].ConfirmPurge)

	require.Len(t, ts.compose.BuildCalls, 1)
	assert.True(t, ts.compose.BuildCalls[0].Force, "rebuild forces the build even when the image exists")

	assert.Equal(t, []string{
		"bundle install",
		"yarn install --pure-lockfile",
		"bundle exec rake db:migrate",
	}, runCommands(ts.compose), "rebuild migrates and never creates, even on an absent database")
	assert.Zero(t, env.checkCalls)
}

// =============================================================================
// Failures
// =============================================================================

func TestRun_MissingConfig_TwoOfFive(t *testing.T) {
	cfg := testConfig(t)
	dir := cfg.ProjectDir
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name": "canvas-lms"}`), 0o644))
	for i, a := range cfg.Artifacts {
		if i == 1 || i == 3 {
			continue
		}
		path := filepath.Join(dir, a.Path)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	runtime := &process.MockManager{
		RunInDirFunc: func(ctx context.Context, d string, e []string, name string, args ...string) (string, string, int, error) {
			if args[0] == "info" {
				return "27.3.1", "", 0, nil
			}
			return "2.29.7", "", 0, nil
		},
	}
	checker := infra.NewDefaultSystemChecker(infra.CheckerConfigFrom(cfg), runtime, nil)

	env := newFakeEnv()
	ts := newTestStack(t, env, checker, cfg)

	_, err := ts.mgr.Run(context.Background(), ModeFull)
	require.Error(t, err)
	assert.Equal(t, failure.ExitFatal, failure.ExitCode(err))

	var mcErr *failure.MissingConfigError
	require.ErrorAs(t, err, &mcErr)
	assert.Equal(t, []string{"config/database.yml", "config/security.yml"}, mcErr.Missing)

	out := ts.stderr.String()
	assert.Contains(t, out, "config/database.yml")
	assert.Contains(t, out, "config/security.yml")
	for _, present := range []string{"config/domain.yml", "config/redis.yml", "docker-compose.override.yml"} {
		assert.NotContains(t, out, present)
	}
	assert.Contains(t, out, "doc/docker/README.md")
	assert.Equal(t, `canvasdev: failed at step "precondition-check"`, lastLine(out))
	assert.Empty(t, ts.compose.GetCalls(), "nothing may be mutated after a checker failure")
}

func TestRun_DatabaseTimeoutIsFatal(t *testing.T) {
	env := newFakeEnv()
	env.dbReachable = false
	cfg := testConfig(t)
	cfg.Readiness.Database.MaxAttempts = 4
	ts := newTestStack(t, env, nil, cfg)

	report, err := ts.mgr.Run(context.Background(), ModeFull)
	require.Error(t, err)

	var rtErr *failure.ReadinessTimeoutError
	require.ErrorAs(t, err, &rtErr)
	assert.Equal(t, 4, rtErr.Attempts)
	assert.Equal(t, 4, env.execCalls)
	assert.Equal(t, "postgres", rtErr.Service)
	assert.Contains(t, ts.stderr.String(), "docker compose logs postgres")
	assert.Equal(t, StepWaitDatabase, failure.FailedStep(err))
	assert.Equal(t, failure.ExitFatal, failure.ExitCode(err))

	_, ran := report.Step(StepInitDatabase)
	assert.False(t, ran)
	assert.Empty(t, ts.compose.RunCalls)
	assert.Contains(t, ts.stdout.String(), "PENDING\tinit-database\tnot run")
}

func TestRun_CancelledDuringCompilerProbe(t *testing.T) {
	env := newFakeEnv()
	env.dbPresent = true
	env.compilerReady = false
	ctx, cancel := context.WithCancel(context.Background())
	env.compilerOnLogs = func(call int) {
		if call == 2 {
			cancel()
		}
	}
	cfg := testConfig(t)
	cfg.Readiness.Compiler.MaxAttempts = 10
	ts := newTestStack(t, env, nil, cfg)

	report, err := ts.mgr.Run(ctx, ModeStart)
	require.Error(t, err)
	assert.True(t, failure.IsCancelled(err))
	assert.Equal(t, failure.ExitCancelled, failure.ExitCode(err))
	assert.Equal(t, StepWaitAssetCompiler, failure.FailedStep(err))

	var rtErr *failure.ReadinessTimeoutError
	assert.False(t, errors.As(err, &rtErr), "cancellation is not a timeout")
	require.Len(t, report.Probes, 1)
	assert.Equal(t, readiness.Cancelled, report.Probes[0].Outcome)
	assert.Equal(t, 2, env.logsCalls)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	env := newFakeEnv()
	ts := newTestStack(t, env, nil, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ts.mgr.Run(ctx, ModeFull)
	assert.Equal(t, failure.ExitCancelled, failure.ExitCode(err))
	assert.Zero(t, env.checkCalls)
	assert.Empty(t, ts.compose.GetCalls())
}

func TestRun_UnknownMode(t *testing.T) {
	ts := newTestStack(t, newFakeEnv(), nil, testConfig(t))

	_, err := ts.mgr.Run(context.Background(), RunMode(42))

	var usage *failure.UsageError
	require.ErrorAs(t, err, &usage)
	assert.Equal(t, failure.ExitUsage, failure.ExitCode(err))
	assert.Empty(t, ts.compose.GetCalls())
}

func TestRun_StepFailureStopsSequence(t *testing.T) {
	env := newFakeEnv()
	ts := newTestStack(t, env, nil, testConfig(t))
	ts.compose.UpFunc = func(ctx context.Context, services compose.ServiceSet) (*compose.ComposeResult, error) {
		return nil, errors.New("port 5432 already in use")
	}

	report, err := ts.mgr.Run(context.Background(), ModeFull)
	require.Error(t, err)
	assert.Equal(t, StepStart, failure.FailedStep(err))
	assert.Equal(t, []string{StepPreconditionCheck, StepBuild, StepStart}, report.StepNames())
	assert.Zero(t, env.execCalls)
}

func TestNewDefaultStackManager_NilDependency(t *testing.T) {
	_, err := NewDefaultStackManager(StackComponents{})
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestModeHandlers_CoverAllModes(t *testing.T) {
	ts := newTestStack(t, newFakeEnv(), nil, testConfig(t))
	for _, m := range allModes {
		_, ok := ts.mgr.handlers[m]
		assert.True(t, ok, "mode %s has no handler", m)
		assert.NotEmpty(t, modeSteps[m], "mode %s has no steps", m)
		assert.Equal(t, StepReport, modeSteps[m][len(modeSteps[m])-1])
	}
}

func TestRun_StartDetailReportsComposeStatus(t *testing.T) {
	env := newFakeEnv()
	env.dbPresent = true
	ts := newTestStack(t, env, nil, testConfig(t))
	ts.compose.StatusFunc = func(ctx context.Context) (*compose.ComposeStatus, error) {
		return &compose.ComposeStatus{
			Services:  []compose.ServiceStatus{{Service: "web"}, {Service: "jobs"}, {Service: "postgres"}},
			Running:   2,
			Unhealthy: 1,
		}, nil
	}

	report, err := ts.mgr.Run(context.Background(), ModeStart)
	require.NoError(t, err)

	step, ok := report.Step(StepStart)
	require.True(t, ok)
	assert.Contains(t, step.Detail, "(2/3 running), 1 unhealthy")
}

func TestRun_StartIgnoresStatusFailure(t *testing.T) {
	env := newFakeEnv()
	env.dbPresent = true
	ts := newTestStack(t, env, nil, testConfig(t))
	ts.compose.StatusFunc = func(ctx context.Context) (*compose.ComposeStatus, error) {
		return nil, errors.New("ps failed")
	}

	report, err := ts.mgr.Run(context.Background(), ModeStart)
	require.NoError(t, err)

	step, _ := report.Step(StepStart)
	assert.Equal(t, StepOK, step.Status)
	assert.NotContains(t, step.Detail, "running")
}

func TestRun_CompilerTimeoutWarnsWhenItHappens(t *testing.T) {
	env := newFakeEnv()
	env.compilerReady = false
	env.dbPresent = true
	ts := newTestStack(t, env, nil, testConfig(t))

	_, err := ts.mgr.Run(context.Background(), ModeFull)
	require.NoError(t, err)

	out := ts.stderr.String()
	immediate := strings.Index(out, "WARN: asset compiler not ready after 3 attempts")
	summary := strings.Index(out, "WARN Warnings")
	require.GreaterOrEqual(t, immediate, 0, out)
	assert.Less(t, immediate, summary, "the warning is printed before the final report")
	assert.Contains(t, ts.stdout.String(), "OK: database ready")
}

func TestRun_FailedStepLineComesAfterLogRecords(t *testing.T) {
	env := newFakeEnv()
	ts := newTestStack(t, env, nil, testConfig(t))
	ts.mgr.logger = logging.New(logging.Config{Level: logging.LevelDebug, JSON: true, Output: ts.stderr})
	ts.proc.RunInDirFunc = func(ctx context.Context, dir string, envv []string, name string, args ...string) (string, string, int, error) {
		return "", "fatal: not a git repository", 128, nil
	}

	_, err := ts.mgr.Run(context.Background(), ModeUpdate)
	require.Error(t, err)

	out := ts.stderr.String()
	assert.Contains(t, out, `"msg":"run failed"`)
	assert.Equal(t, `canvasdev: failed at step "pull"`, lastLine(out))
}
