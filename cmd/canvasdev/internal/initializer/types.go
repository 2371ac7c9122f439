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
	"fmt"
	"time"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/config"
)

// BootstrapState is whether the application schema exists.
type BootstrapState int

const (
	Absent BootstrapState = iota
	Present
)

func (s BootstrapState) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Action is what Initialize did.
type Action int

const (
	// Created means the database was created and seeded.
	Created Action = iota + 1
	// Migrated means pending migrations were applied.
	Migrated
)

func (a Action) String() string {
	switch a {
	case Created:
		return "created and seeded"
	case Migrated:
		return "migrated"
	default:
		return "none"
	}
}

// SchemaProber is the direct detection strategy. *pgprobe.Client
// satisfies it.
type SchemaProber interface {
	SchemaPresent(ctx context.Context) (bool, error)
}

// Config holds the services and commands the initializer uses.
//
// # Fields
//
//   - AppService: Service the rake/rails commands run in
//   - DatabaseService: Service checked with pg_isready
//   - DatabaseUser: Role passed to pg_isready
//   - DetectCommand: Exits 0 when the schema exists
//   - DetectTimeout: Bound on one run of DetectCommand
//   - CreateCommand: Creates and seeds the database
//   - MigrateCommand: Applies pending migrations
type Config struct {
	AppService      string
	DatabaseService string
	DatabaseUser    string

	DetectCommand  []string
	DetectTimeout  time.Duration
	CreateCommand  []string
	MigrateCommand []string
}

// ConfigFrom derives Config from the run configuration.
func ConfigFrom(cfg config.CanvasDevConfig) Config {
	return Config{
		AppService:      cfg.Services.Web,
		DatabaseService: cfg.Services.Postgres,
		DatabaseUser:    cfg.Database.User,
		DetectCommand:   cfg.Database.DetectCommand,
		DetectTimeout:   cfg.Database.DetectTimeout,
		CreateCommand:   cfg.Database.CreateCommand,
		MigrateCommand:  cfg.Database.MigrateCommand,
	}
}
