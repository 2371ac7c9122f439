// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package deps installs the application's backend and frontend packages
// inside the application container.
package deps

import (
	"context"
	"errors"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/config"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/failure"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/compose"
	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
)

// ErrNoCommand is returned when an install command is not configured.
var ErrNoCommand = errors.New("install command is not configured")

// Installer runs the package managers. Each install is idempotent at the
// package-manager level and is never retried here.
type Installer interface {
	InstallBackendDeps(ctx context.Context) error
	InstallFrontendDeps(ctx context.Context) error
}

// Config names the service and commands used for installs.
type Config struct {
	Service         string
	BackendCommand  []string
	FrontendCommand []string
}

// ConfigFrom derives Config from the run configuration.
func ConfigFrom(cfg config.CanvasDevConfig) Config {
	return Config{
		Service:         cfg.Services.Web,
		BackendCommand:  cfg.Deps.BackendCommand,
		FrontendCommand: cfg.Deps.FrontendCommand,
	}
}

// DefaultInstaller implements Installer with one-off compose containers.
type DefaultInstaller struct {
	config Config
	exec   compose.ComposeExecutor
	logger *logging.Logger
}

// NewInstaller creates an Installer.
func NewInstaller(cfg Config, exec compose.ComposeExecutor, logger *logging.Logger) *DefaultInstaller {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DefaultInstaller{config: cfg, exec: exec, logger: logger}
}

// InstallBackendDeps runs the bundler install.
func (i *DefaultInstaller) InstallBackendDeps(ctx context.Context) error {
	return i.install(ctx, "backend", i.config.BackendCommand)
}

// InstallFrontendDeps runs the yarn install.
func (i *DefaultInstaller) InstallFrontendDeps(ctx context.Context) error {
	return i.install(ctx, "frontend", i.config.FrontendCommand)
}

func (i *DefaultInstaller) install(ctx context.Context, ecosystem string, command []string) error {
	if len(command) == 0 {
		return &failure.DependencyInstallError{Ecosystem: ecosystem, Err: ErrNoCommand}
	}
	i.logger.Info("installing dependencies", "ecosystem", ecosystem, "service", i.config.Service)

	res, err := i.exec.Run(ctx, compose.RunOptions{
		Service: i.config.Service,
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
		return &failure.DependencyInstallError{Ecosystem: ecosystem, Err: err}
	}
	i.logger.Info("dependencies installed", "ecosystem", ecosystem, "duration", res.Duration)
	return nil
}

var _ Installer = (*DefaultInstaller)(nil)
