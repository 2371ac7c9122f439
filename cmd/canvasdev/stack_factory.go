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
	"fmt"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/config"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/deps"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/compose"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/pgprobe"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/process"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/initializer"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/readiness"
	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
	"github.com/pankajkumar3021/canvas-lms/pkg/ux"
)

// StackFactory creates StackManager instances.
type StackFactory interface {
	// CreateStackManager wires every component for one run.
	//
	// # Inputs
	//
	//   - cfg: The loaded configuration
	//   - console: Operator output
	//   - logger: Structured log sink
	//
	// # Outputs
	//
	//   - StackManager: Ready to Run
	//   - error: Non-nil if a component could not be built
	CreateStackManager(cfg config.CanvasDevConfig, console *ux.Console, logger *logging.Logger) (StackManager, error)
}

// DefaultStackFactory wires the real docker, compose and postgres clients.
type DefaultStackFactory struct{}

func NewDefaultStackFactory() *DefaultStackFactory {
	return &DefaultStackFactory{}
}

// CreateStackManager implements StackFactory.
func (f *DefaultStackFactory) CreateStackManager(cfg config.CanvasDevConfig, console *ux.Console, logger *logging.Logger) (StackManager, error) {
	proc := process.NewDefaultManager()
	images := infra.NewDefaultImageChecker(cfg.Runtime.Binary, proc, logger)

	composeMgr, err := compose.NewDefaultComposeExecutor(compose.ExecutorConfig{
		ProjectDir:  cfg.ProjectDir,
		Command:     cfg.Compose.Command,
		ProjectName: cfg.Compose.ProjectName,
		Files:       cfg.Compose.Files,
		Env:         cfg.Compose.Env,
	}, proc, images, console.Out, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create compose executor: %w", err)
	}

	// The direct postgres strategy is only used when a URL is configured.
	var (
		pinger readiness.Pinger
		schema initializer.SchemaProber
	)
	if cfg.Database.URL != "" {
		client := pgprobe.NewClient(cfg.Database.URL, cfg.Database.ConnectTimeout, nil, logger)
		pinger = client
		schema = client
	}

	database, err := initializer.NewDatabaseInitializer(initializer.ConfigFrom(cfg), composeMgr, schema, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create database initializer: %w", err)
	}

	stackMgr, err := NewDefaultStackManager(StackComponents{
		Checker:   infra.NewDefaultSystemChecker(infra.CheckerConfigFrom(cfg), proc, logger),
		Compose:   composeMgr,
		Prober:    readiness.NewProber(logger),
		Database:  database,
		Installer: deps.NewInstaller(deps.ConfigFrom(cfg), composeMgr, logger),
		Process:   proc,
		Pinger:    pinger,
		Config:    cfg,
		Logger:    logger,
		Console:   console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stack manager: %w", err)
	}
	return stackMgr, nil
}

var _ StackFactory = (*DefaultStackFactory)(nil)
