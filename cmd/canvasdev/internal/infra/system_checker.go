// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package infra holds the host-facing checks canvasdev runs before it
// touches any container.
//
// # Overview
//
// SystemChecker verifies, in order:
//
//  1. the container runtime answers and the compose tool is recent enough
//  2. the working directory is the canvas-lms checkout
//  3. every configuration artifact exists
//  4. the compose project loads and declares every managed service
//
// All checks are read-only. The two runtime probes in step 1 run
// concurrently and are joined before step 2 starts.
//
// # Failure Modes
//
//	Runtime not answering    -> failure.EnvironmentNotReadyError
//	Compose too old/missing  -> failure.EnvironmentNotReadyError
//	Marker file wrong        -> failure.WrongDirectoryError
//	Artifacts missing        -> failure.MissingConfigError (all paths at once)
//	Compose services missing -> failure.MissingConfigError
package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-spec/compose-go/v2/types"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/config"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/failure"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/compose"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/process"
	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
)

// -----------------------------------------------------------------------------
// Interfaces
// -----------------------------------------------------------------------------

// SystemChecker runs the precondition checks.
type SystemChecker interface {
	// Check runs every check and returns the first failing category.
	//
	// # Outputs
	//
	//   - *CheckReport: What was found; nil on failure
	//   - error: One of the failure package's checker-phase errors, or a
	//     context error
	Check(ctx context.Context) (*CheckReport, error)
}

// CheckReport describes a host that passed every check.
type CheckReport struct {
	RuntimeVersion string
	ComposeVersion string

	// Project is the loaded compose project.
	Project *types.Project

	// MarkerImage is the image the web service builds.
	MarkerImage string
}

// CheckerConfig configures DefaultSystemChecker.
type CheckerConfig struct {
	ProjectDir string

	RuntimeBinary     string
	ComposeCommand    []string
	MinComposeVersion string

	MarkerFile    string
	MarkerContent string

	Artifacts    []config.Artifact
	SetupDoc     string
	SetupSection string

	ComposeFiles []string
	ProjectName  string

	// Services are the compose services that must be declared.
	Services []string

	// MarkerService is the service whose image decides whether to build.
	MarkerService string
}

// CheckerConfigFrom derives a CheckerConfig from the run configuration.
func CheckerConfigFrom(cfg config.CanvasDevConfig) CheckerConfig {
	return CheckerConfig{
		ProjectDir:        cfg.ProjectDir,
		RuntimeBinary:     cfg.Runtime.Binary,
		ComposeCommand:    cfg.Compose.Command,
		MinComposeVersion: cfg.Runtime.MinComposeVersion,
		MarkerFile:        cfg.Project.MarkerFile,
		MarkerContent:     cfg.Project.MarkerContent,
		Artifacts:         cfg.Artifacts,
		SetupDoc:          cfg.Project.SetupDoc,
		SetupSection:      cfg.Project.SetupSection,
		ComposeFiles:      cfg.Compose.Files,
		ProjectName:       cfg.Compose.ProjectName,
		Services:          cfg.Services.All(),
		MarkerService:     cfg.Services.Web,
	}
}

// -----------------------------------------------------------------------------
// Implementation
// -----------------------------------------------------------------------------

// DefaultSystemChecker implements SystemChecker.
type DefaultSystemChecker struct {
	config CheckerConfig
	proc   process.Manager
	logger *logging.Logger

	// loadProject is swappable for tests.
	loadProject func(ctx context.Context, opts compose.ProjectOptions) (*types.Project, error)
}

// NewDefaultSystemChecker creates a SystemChecker.
func NewDefaultSystemChecker(cfg CheckerConfig, proc process.Manager, logger *logging.Logger) *DefaultSystemChecker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DefaultSystemChecker{
		config:      cfg,
		proc:        proc,
		logger:      logger,
		loadProject: compose.LoadProject,
	}
}

// Check implements SystemChecker.
//
// # Description
//
// Runs the runtime probes concurrently, then the directory, artifact and
// compose project checks in that order. Stops at the first failing
// category. Nothing on disk or in the runtime is modified.
//
// # Inputs
//
//   - ctx: Cancelling it aborts the runtime probes
//
// # Outputs
//
//   - *CheckReport: Versions, the loaded project and the marker image
//   - error: EnvironmentNotReadyError, WrongDirectoryError,
//     MissingConfigError or a context error
func (c *DefaultSystemChecker) Check(ctx context.Context) (*CheckReport, error) {
	report := &CheckReport{}

	if err := c.checkRuntime(ctx, report); err != nil {
		return nil, err
	}
	if err := c.checkDirectory(); err != nil {
		return nil, err
	}
	if err := c.checkArtifacts(); err != nil {
		return nil, err
	}
	if err := c.checkProject(ctx, report); err != nil {
		return nil, err
	}

	c.logger.Info("preconditions satisfied",
		"runtime_version", report.RuntimeVersion,
		"compose_version", report.ComposeVersion,
		"project", report.Project.Name,
		"marker_image", report.MarkerImage)
	return report, nil
}

// checkRuntime probes the runtime daemon and the compose version together.
// Both results are inspected after the join so the reported failure does
// not depend on which probe finished first.
func (c *DefaultSystemChecker) checkRuntime(ctx context.Context, report *CheckReport) error {
	var runtimeErr, composeErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.RuntimeVersion, runtimeErr = c.probeRuntime(gctx)
		return nil
	})
	g.Go(func() error {
		report.ComposeVersion, composeErr = c.probeCompose(gctx)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if runtimeErr != nil {
		return runtimeErr
	}
	return composeErr
}

func (c *DefaultSystemChecker) probeRuntime(ctx context.Context) (string, error) {
	bin := c.config.RuntimeBinary
	stdout, stderr, code, err := c.proc.RunInDir(ctx, "", nil, bin, "info", "--format", "{{.ServerVersion}}")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &failure.EnvironmentNotReadyError{
			Component: bin,
			Detail:    "could not run '" + bin + " info'",
			Hint:      "install Docker Desktop (or the docker engine) and make sure '" + bin + "' is on your PATH",
			Err:       err,
		}
	}
	if code != 0 {
		return "", &failure.EnvironmentNotReadyError{
			Component: bin,
			Detail:    fmt.Sprintf("'%s info' exited %d: %s", bin, code, firstLine(stderr)),
			Hint:      "start Docker Desktop or the docker daemon, then rerun",
		}
	}
	return strings.TrimSpace(stdout), nil
}

func (c *DefaultSystemChecker) probeCompose(ctx context.Context) (string, error) {
	cmd := c.config.ComposeCommand
	display := strings.Join(cmd, " ")
	args := append(append([]string{}, cmd[1:]...), "version", "--short")

	stdout, stderr, code, err := c.proc.RunInDir(ctx, "", nil, cmd[0], args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &failure.EnvironmentNotReadyError{
			Component: display,
			Detail:    "could not run '" + display + " version'",
			Hint:      "install the docker compose plugin (v" + c.config.MinComposeVersion + " or newer)",
			Err:       err,
		}
	}
	if code != 0 {
		return "", &failure.EnvironmentNotReadyError{
			Component: display,
			Detail:    fmt.Sprintf("'%s version' exited %d: %s", display, code, firstLine(stderr)),
			Hint:      "install the docker compose plugin (v" + c.config.MinComposeVersion + " or newer)",
		}
	}

	version := strings.TrimSpace(stdout)
	ok, err := versionAtLeast(version, c.config.MinComposeVersion)
	if err != nil {
		return "", &failure.EnvironmentNotReadyError{
			Component: display,
			Detail:    err.Error(),
			Hint:      "install the docker compose plugin (v" + c.config.MinComposeVersion + " or newer)",
		}
	}
	if !ok {
		return "", &failure.EnvironmentNotReadyError{
			Component: display,
			Detail:    fmt.Sprintf("version %s is older than the required %s", version, c.config.MinComposeVersion),
			Hint:      "upgrade Docker Desktop or the docker compose plugin",
		}
	}
	return version, nil
}

// versionAtLeast compares two dotted versions with or without a leading v.
func versionAtLeast(have, want string) (bool, error) {
	h := canonical(have)
	if h == "" {
		return false, fmt.Errorf("unrecognized compose version %q", have)
	}
	w := canonical(want)
	if w == "" {
		return false, fmt.Errorf("unrecognized minimum compose version %q", want)
	}
	return semver.Compare(h, w) >= 0, nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	// Desktop builds report e.g. "2.27.1-desktop.1".
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

func (c *DefaultSystemChecker) checkDirectory() error {
	dir := c.config.ProjectDir
	marker := c.config.MarkerFile

	data, err := os.ReadFile(filepath.Join(dir, marker))
	if err != nil {
		reason := "could not be read"
		if errors.Is(err, os.ErrNotExist) {
			reason = "was not found"
		}
		return &failure.WrongDirectoryError{Dir: dir, Marker: marker, Reason: reason}
	}
	if c.config.MarkerContent != "" && !strings.Contains(squash(string(data)), squash(c.config.MarkerContent)) {
		return &failure.WrongDirectoryError{
			Dir:    dir,
			Marker: marker,
			Reason: fmt.Sprintf("does not contain %s", c.config.MarkerContent),
		}
	}
	return nil
}

// squash drops all whitespace so formatting differences in the marker file
// do not matter.
func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func (c *DefaultSystemChecker) checkArtifacts() error {
	var missing []string
	for _, a := range c.config.Artifacts {
		if _, err := os.Stat(filepath.Join(c.config.ProjectDir, a.Path)); err != nil {
			c.logger.Debug("configuration artifact missing", "artifact", a.Name, "path", a.Path)
			missing = append(missing, a.Path)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &failure.MissingConfigError{
		Missing:  missing,
		SetupDoc: c.config.SetupDoc,
		Section:  c.config.SetupSection,
	}
}

func (c *DefaultSystemChecker) checkProject(ctx context.Context, report *CheckReport) error {
	project, err := c.loadProject(ctx, compose.ProjectOptions{
		Dir:   c.config.ProjectDir,
		Files: c.config.ComposeFiles,
		Name:  c.config.ProjectName,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &failure.MissingConfigError{
			SetupDoc: c.config.SetupDoc,
			Section:  c.config.SetupSection,
			Err:      err,
		}
	}

	if undeclared := compose.MissingServices(project, c.config.Services); len(undeclared) > 0 {
		return &failure.MissingConfigError{
			UndeclaredServices: undeclared,
			SetupDoc:           c.config.SetupDoc,
			Section:            c.config.SetupSection,
		}
	}

	marker, err := compose.MarkerImage(project, c.config.MarkerService)
	if err != nil {
		return &failure.MissingConfigError{UndeclaredServices: []string{c.config.MarkerService}}
	}

	report.Project = project
	report.MarkerImage = marker
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var _ SystemChecker = (*DefaultSystemChecker)(nil)
