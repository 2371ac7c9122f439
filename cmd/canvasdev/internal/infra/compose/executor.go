// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/process"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/util"
	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrInvalidConfig is returned when ExecutorConfig is invalid.
	ErrInvalidConfig = errors.New("invalid compose configuration")

	// ErrContainerNotRunning is returned by Exec when the target service has
	// no running container.
	ErrContainerNotRunning = errors.New("container not running")

	// ErrPurgeNotConfirmed is returned when PurgeData is requested without
	// StopOptions.ConfirmPurge.
	ErrPurgeNotConfirmed = errors.New("purging data volumes requires explicit confirmation")

	// ErrNoImageInspector is returned by a non-forced Build when the executor
	// has no way to check for the marker image.
	ErrNoImageInspector = errors.New("no image inspector configured")

	// ErrNoMarkerImage is returned by a non-forced Build without a marker image.
	ErrNoMarkerImage = errors.New("no marker image to decide whether to build")
)

// DefaultQueryTimeout bounds short compose queries (ps, logs, exec).
const DefaultQueryTimeout = 30 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// ComposeExecutor drives docker compose for the canvas-lms stack.
//
// # Description
//
// Every mutating operation is a thin wrapper over one compose invocation.
// None of them remember anything between calls: the skip decision in Build
// is taken from a live image query each time.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use, but callers run steps
// sequentially.
type ComposeExecutor interface {
	// Build builds images for the service set.
	//
	// # Description
	//
	// Unless opts.Force is set, the marker image is inspected first and the
	// build is skipped when it exists. With Force, `compose build` always
	// runs.
	//
	// # Outputs
	//
	//   - *BuildResult: Skipped is true when nothing was built
	//   - error: Image query or build failure
	Build(ctx context.Context, opts BuildOptions) (*BuildResult, error)

	// Up runs `compose up -d` for the set. It returns after compose reports
	// the containers started; it does not wait for readiness.
	Up(ctx context.Context, services ServiceSet) (*ComposeResult, error)

	// Stop stops services. PreserveData keeps volumes; PurgeData removes
	// them and additionally requires opts.ConfirmPurge.
	Stop(ctx context.Context, opts StopOptions) (*ComposeResult, error)

	// Restart runs `compose restart` for the set.
	Restart(ctx context.Context, services ServiceSet) (*ComposeResult, error)

	// Status lists containers of the project with `compose ps --format json`.
	Status(ctx context.Context) (*ComposeStatus, error)

	// Logs returns recent log output of one service.
	//
	// # Outputs
	//
	//   - string: Combined log output (no colors)
	//   - error: Non-nil when the logs command failed; output is then not
	//     meaningful
	Logs(ctx context.Context, opts LogsOptions) (string, error)

	// Exec runs a command in the running container of a service with
	// `compose exec -T`, bounded by QueryTimeout or opts.Timeout. A
	// non-zero exit is reported in ExecResult, not as an error.
	Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error)

	// Run runs a command in a one-off container with `compose run --rm`.
	// A non-zero exit is reported in ExecResult, not as an error.
	Run(ctx context.Context, opts RunOptions) (*ExecResult, error)
}

// ImageInspector reports whether an image exists locally.
type ImageInspector interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
}

// =============================================================================
// Supporting Types
// =============================================================================

// ServiceSet is an ordered list of compose service names. An empty set means
// every service of the project.
type ServiceSet []string

// String returns the names joined by commas, or "all services".
func (s ServiceSet) String() string {
	if len(s) == 0 {
		return "all services"
	}
	return strings.Join(s, ", ")
}

// DataPolicy says what happens to named volumes when services stop.
type DataPolicy int

const (
	// PreserveData keeps volumes (database contents survive).
	PreserveData DataPolicy = iota

	// PurgeData removes volumes. No run mode uses it.
	PurgeData
)

func (p DataPolicy) String() string {
	if p == PurgeData {
		return "purge"
	}
	return "preserve"
}

// ExecutorConfig configures DefaultComposeExecutor.
type ExecutorConfig struct {
	// ProjectDir is the directory compose runs in. Required.
	ProjectDir string

	// Command is the compose invocation, e.g. ["docker", "compose"]. Required.
	Command []string

	// ProjectName is passed as -p when set.
	ProjectName string

	// Files are passed as -f in order when set.
	Files []string

	// Env is appended to the environment of every invocation.
	Env map[string]string

	// QueryTimeout bounds ps, logs and exec. Default: DefaultQueryTimeout.
	QueryTimeout time.Duration
}

type BuildOptions struct {
	Services ServiceSet
	Force    bool

	// MarkerImage is the image whose presence means "already built".
	// Required unless Force is set.
	MarkerImage string
}

type BuildResult struct {
	// Skipped is true when the marker image existed and nothing was built.
	Skipped bool

	// MarkerImage is the image that was inspected.
	MarkerImage string

	// Result is the build invocation, nil when skipped.
	Result *ComposeResult
}

type StopOptions struct {
	Services ServiceSet
	Policy   DataPolicy

	// ConfirmPurge must be true for PurgeData to proceed.
	ConfirmPurge bool
}

type LogsOptions struct {
	Service string

	// Tail limits output to the last N lines. Zero means all.
	Tail int
}

type ExecOptions struct {
	Service string
	Command []string
	Env     map[string]string

	// Timeout replaces QueryTimeout for this call when positive.
	Timeout time.Duration
}

type RunOptions struct {
	Service string
	Command []string
	Env     map[string]string

	// Stream copies output to the executor's output writer while the
	// command runs.
	Stream bool
}

// ComposeResult describes one compose invocation.
type ComposeResult struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	// Command is the executed command line (for logs and errors).
	Command string
}

// ExecResult is the outcome of Exec or Run.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Command  string
	Duration time.Duration
}

// Succeeded reports a zero exit code.
func (r *ExecResult) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// Err returns a CommandError for a non-zero exit, nil otherwise.
func (r *ExecResult) Err() error {
	if r == nil {
		return errors.New("command did not run")
	}
	if r.ExitCode == 0 {
		return nil
	}
	return util.NewCommandError(r.Command, r.ExitCode, r.Stderr, nil)
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultComposeExecutor implements ComposeExecutor on top of process.Manager.
type DefaultComposeExecutor struct {
	config    ExecutorConfig
	env       []string
	proc      process.Manager
	inspector ImageInspector
	output    io.Writer
	logger    *logging.Logger
	mu        sync.Mutex
}

// NewDefaultComposeExecutor creates an executor.
//
// # Description
//
// Validates the configuration, including the extra environment, and
// applies defaults. inspector may be nil, in which case only forced builds
// are possible. output receives streamed build/up output; nil discards it.
//
// # Inputs
//
//   - cfg: Executor configuration
//   - proc: Process manager used for every invocation
//   - inspector: Image lookup for the build skip decision
//   - output: Progress writer
//   - logger: Structured logger; nil disables logging
//
// # Outputs
//
//   - *DefaultComposeExecutor: Ready to use
//   - error: Wraps ErrInvalidConfig
func NewDefaultComposeExecutor(cfg ExecutorConfig, proc process.Manager, inspector ImageInspector, output io.Writer, logger *logging.Logger) (*DefaultComposeExecutor, error) {
	if cfg.ProjectDir == "" {
		return nil, fmt.Errorf("%w: project directory is required", ErrInvalidConfig)
	}
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, fmt.Errorf("%w: compose command is required", ErrInvalidConfig)
	}
	if proc == nil {
		return nil, fmt.Errorf("%w: process manager is required", ErrInvalidConfig)
	}
	env := util.EnvFromMap(cfg.Env)
	if err := util.ValidateEnv(env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if output == nil {
		output = io.Discard
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &DefaultComposeExecutor{
		config:    cfg,
		env:       env,
		proc:      proc,
		inspector: inspector,
		output:    output,
		logger:    logger,
	}, nil
}

// Build implements ComposeExecutor.
func (e *DefaultComposeExecutor) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	result := &BuildResult{MarkerImage: opts.MarkerImage}

	if !opts.Force {
		if opts.MarkerImage == "" {
			return nil, ErrNoMarkerImage
		}
		if e.inspector == nil {
			return nil, ErrNoImageInspector
		}
		exists, err := e.inspector.ImageExists(ctx, opts.MarkerImage)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect image %s: %w", opts.MarkerImage, err)
		}
		if exists {
			e.logger.Info("build skipped, marker image present", "image", opts.MarkerImage)
			result.Skipped = true
			return result, nil
		}
	}

	args := append([]string{"build"}, opts.Services...)
	res, err := e.runCompose(ctx, args, nil, true)
	result.Result = res
	return result, err
}

// Up implements ComposeExecutor.
func (e *DefaultComposeExecutor) Up(ctx context.Context, services ServiceSet) (*ComposeResult, error) {
	args := append([]string{"up", "-d"}, services...)
	return e.runCompose(ctx, args, nil, true)
}

// Stop implements ComposeExecutor.
//
// PreserveData on the whole project runs `down`, which removes containers
// and networks but keeps volumes. On a subset it runs `stop` so the other
// services keep running.
func (e *DefaultComposeExecutor) Stop(ctx context.Context, opts StopOptions) (*ComposeResult, error) {
	var args []string
	switch opts.Policy {
	case PreserveData:
		if len(opts.Services) == 0 {
			args = []string{"down"}
		} else {
			args = append([]string{"stop"}, opts.Services...)
		}
	case PurgeData:
		if !opts.ConfirmPurge {
			return nil, ErrPurgeNotConfirmed
		}
		if len(opts.Services) > 0 {
			return nil, fmt.Errorf("%w: purge applies to the whole project, not %s", ErrInvalidConfig, opts.Services)
		}
		e.logger.Warn("purging compose volumes", "project_dir", e.config.ProjectDir)
		args = []string{"down", "-v"}
	default:
		return nil, fmt.Errorf("%w: unknown data policy %d", ErrInvalidConfig, opts.Policy)
	}
	return e.runCompose(ctx, args, nil, true)
}

// Restart implements ComposeExecutor.
func (e *DefaultComposeExecutor) Restart(ctx context.Context, services ServiceSet) (*ComposeResult, error) {
	args := append([]string{"restart"}, services...)
	return e.runCompose(ctx, args, nil, true)
}

// Status implements ComposeExecutor.
func (e *DefaultComposeExecutor) Status(ctx context.Context) (*ComposeStatus, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout)
	defer cancel()

	res, err := e.runCompose(queryCtx, []string{"ps", "--all", "--format", "json"}, nil, false)
	if err != nil {
		return nil, err
	}
	return ParseStatus(res.Stdout)
}

// Logs implements ComposeExecutor.
func (e *DefaultComposeExecutor) Logs(ctx context.Context, opts LogsOptions) (string, error) {
	if opts.Service == "" {
		return "", fmt.Errorf("%w: logs needs a service", ErrInvalidConfig)
	}
	queryCtx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout)
	defer cancel()

	args := []string{"logs", "--no-color"}
	if opts.Tail > 0 {
		args = append(args, "--tail", fmt.Sprintf("%d", opts.Tail))
	}
	args = append(args, opts.Service)

	res, err := e.runCompose(queryCtx, args, nil, false)
	if err != nil {
		return "", err
	}
	// compose interleaves container output on both streams.
	return res.Stdout + res.Stderr, nil
}

// Exec implements ComposeExecutor.
func (e *DefaultComposeExecutor) Exec(ctx context.Context, opts ExecOptions) (*ExecResult, error) {
	if opts.Service == "" || len(opts.Command) == 0 {
		return nil, fmt.Errorf("%w: exec needs a service and a command", ErrInvalidConfig)
	}
	timeout := e.config.QueryTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"exec", "-T"}
	args = append(args, envFlags(opts.Env)...)
	args = append(args, opts.Service)
	args = append(args, opts.Command...)

	res, err := e.runCompose(queryCtx, args, opts.Env, false)
	if res == nil {
		return nil, err
	}
	execRes := toExecResult(res)
	if isContainerNotRunning(res.Stderr) {
		return execRes, fmt.Errorf("%w: %s", ErrContainerNotRunning, opts.Service)
	}
	return execRes, startFailure(err)
}

// Run implements ComposeExecutor.
func (e *DefaultComposeExecutor) Run(ctx context.Context, opts RunOptions) (*ExecResult, error) {
	if opts.Service == "" || len(opts.Command) == 0 {
		return nil, fmt.Errorf("%w: run needs a service and a command", ErrInvalidConfig)
	}
	args := []string{"run", "--rm", "-T"}
	args = append(args, envFlags(opts.Env)...)
	args = append(args, opts.Service)
	args = append(args, opts.Command...)

	res, err := e.runCompose(ctx, args, opts.Env, opts.Stream)
	if res == nil {
		return nil, err
	}
	return toExecResult(res), startFailure(err)
}

// =============================================================================
// Command execution
// =============================================================================

// composeArgs prefixes subcommand args with the compose command and the
// global -p/-f flags.
func (e *DefaultComposeExecutor) composeArgs(args []string) (string, []string) {
	full := append([]string{}, e.config.Command[1:]...)
	if e.config.ProjectName != "" {
		full = append(full, "-p", e.config.ProjectName)
	}
	for _, f := range e.config.Files {
		full = append(full, "-f", f)
	}
	full = append(full, args...)
	return e.config.Command[0], full
}

// runCompose executes one compose invocation.
//
// # Description
//
// With stream set, output is copied to the progress writer as it is
// produced and stderr is also captured for error reporting. Otherwise both
// streams are captured.
//
// A non-zero exit returns the result together with a *util.CommandError.
// A start failure or context end returns the result (ExitCode -1) and the
// underlying error.
//
// # Inputs
//
//   - ctx: Cancelling it kills the compose process
//   - args: Subcommand and its arguments
//   - cmdEnv: Values for the -e flags, used only for redacted logging
//   - stream: Whether to forward output live
func (e *DefaultComposeExecutor) runCompose(ctx context.Context, args []string, cmdEnv map[string]string, stream bool) (*ComposeResult, error) {
	name, full := e.composeArgs(args)
	cmdStr := redactCommand(name, full)
	e.logger.Debug("executing compose command",
		"command", cmdStr,
		"dir", e.config.ProjectDir,
		"env", util.RedactEnv(append(util.EnvFromMap(cmdEnv), e.env...)))

	start := time.Now()
	var (
		stdout, stderr string
		exitCode       int
		err            error
	)
	if stream {
		var errBuf bytes.Buffer
		e.mu.Lock()
		exitCode, err = e.proc.Stream(ctx, e.config.ProjectDir, e.env, e.output, io.MultiWriter(e.output, &errBuf), name, full...)
		e.mu.Unlock()
		stderr = errBuf.String()
	} else {
		stdout, stderr, exitCode, err = e.proc.RunInDir(ctx, e.config.ProjectDir, e.env, name, full...)
	}

	result := &ComposeResult{
		Success:  exitCode == 0 && err == nil,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   strings.TrimSpace(stderr),
		Duration: time.Since(start),
		Command:  cmdStr,
	}
	e.logger.Debug("compose command finished",
		"command", cmdStr,
		"exit_code", exitCode,
		"duration", result.Duration)

	if err != nil {
		return result, util.NewCommandError(cmdStr, exitCode, stderr, err)
	}
	if exitCode != 0 {
		return result, util.NewCommandError(cmdStr, exitCode, stderr, nil)
	}
	return result, nil
}

// startFailure keeps only errors that mean the process did not complete;
// a plain non-zero exit is carried by ExecResult.
func startFailure(err error) error {
	var cmdErr *util.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Wrapped == nil {
		return nil
	}
	return err
}

func toExecResult(res *ComposeResult) *ExecResult {
	return &ExecResult{
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Command:  res.Command,
		Duration: res.Duration,
	}
}

// envFlags renders -e KEY=VALUE pairs in sorted key order.
func envFlags(env map[string]string) []string {
	var flags []string
	for _, entry := range util.EnvFromMap(env) {
		flags = append(flags, "-e", entry)
	}
	return flags
}

// redactCommand joins a command line, hiding sensitive -e values.
func redactCommand(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for i, a := range args {
		if i > 0 && args[i-1] == "-e" {
			a = util.RedactEnv([]string{a})[0]
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

func isContainerNotRunning(stderr string) bool {
	return strings.Contains(stderr, "is not running") ||
		strings.Contains(stderr, "No such container") ||
		strings.Contains(stderr, "no container found")
}

var _ ComposeExecutor = (*DefaultComposeExecutor)(nil)
