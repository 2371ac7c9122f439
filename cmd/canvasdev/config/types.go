// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"
)

// CanvasDevConfig is the full canvasdev configuration.
//
// Every field has a default in DefaultConfig, so an empty or absent
// .canvasdev.yaml is valid.
type CanvasDevConfig struct {
	// ProjectDir is the canvas-lms checkout. Resolved to an absolute path by Load.
	ProjectDir string `yaml:"project_dir"`

	Compose   ComposeConfig   `yaml:"compose"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Project   ProjectConfig   `yaml:"project"`
	Artifacts []Artifact      `yaml:"artifacts" validate:"required,min=1,dive"`
	Services  ServicesConfig  `yaml:"services"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Database  DatabaseConfig  `yaml:"database"`
	Deps      DepsConfig      `yaml:"deps"`
	Update    UpdateConfig    `yaml:"update"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Output forces a personality level: full, standard, minimal or machine.
	// Empty means detect from the terminal.
	Output string `yaml:"output" validate:"omitempty,oneof=full standard minimal machine"`
}

// ComposeConfig describes how docker compose is invoked.
type ComposeConfig struct {
	Command     []string          `yaml:"command" validate:"required,min=1,dive,required"` // e.g. ["docker", "compose"]
	Files       []string          `yaml:"files"`                                           // extra -f files; empty means compose defaults
	ProjectName string            `yaml:"project_name"`                                    // -p; empty means directory name
	Env         map[string]string `yaml:"env"`                                             // extra environment for every invocation
}

type RuntimeConfig struct {
	Binary            string `yaml:"binary" validate:"required"`
	MinComposeVersion string `yaml:"min_compose_version" validate:"required"`
}

// ProjectConfig identifies the project root and the setup documentation.
type ProjectConfig struct {
	MarkerFile    string `yaml:"marker_file" validate:"required"`
	MarkerContent string `yaml:"marker_content"`
	SetupDoc      string `yaml:"setup_doc"`
	SetupSection  string `yaml:"setup_section"`
}

// Artifact is one configuration file that must exist before services start.
// Only existence is checked.
type Artifact struct {
	Name string `yaml:"name" validate:"required"`
	Path string `yaml:"path" validate:"required"`
}

// ServicesConfig maps logical roles to compose service names.
type ServicesConfig struct {
	Web      string `yaml:"web" validate:"required"`
	Jobs     string `yaml:"jobs" validate:"required"`
	Webpack  string `yaml:"webpack" validate:"required"`
	Postgres string `yaml:"postgres" validate:"required"`
	Redis    string `yaml:"redis" validate:"required"`
}

// All returns every managed service in start order.
func (s ServicesConfig) All() []string {
	return []string{s.Postgres, s.Redis, s.Web, s.Jobs, s.Webpack}
}

// ProbeBudget bounds one readiness loop.
type ProbeBudget struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"gt=0"`
	Interval    time.Duration `yaml:"interval" validate:"gte=0"`

	// AttemptTimeout bounds a single predicate evaluation.
	AttemptTimeout time.Duration `yaml:"attempt_timeout" validate:"gt=0"`
}

type ReadinessConfig struct {
	Database ProbeBudget `yaml:"database"`
	Compiler ProbeBudget `yaml:"compiler"`

	// CompilerMarker is the log text that means the asset compiler is done.
	CompilerMarker string `yaml:"compiler_marker" validate:"required"`

	// CompilerLogTail is how many log lines are searched for the marker.
	CompilerLogTail int `yaml:"compiler_log_tail" validate:"gt=0"`
}

// DatabaseConfig selects the database probe strategy and the commands run
// inside the web service.
//
// When URL is set the database is probed directly with pgx; otherwise
// through docker compose.
type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	User           string        `yaml:"user" validate:"required"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" validate:"gt=0"`
	DetectCommand  []string      `yaml:"detect_command" validate:"required,min=1"`
	DetectTimeout  time.Duration `yaml:"detect_timeout" validate:"gt=0"`
	CreateCommand  []string      `yaml:"create_command" validate:"required,min=1"`
	MigrateCommand []string      `yaml:"migrate_command" validate:"required,min=1"`
}

type DepsConfig struct {
	BackendCommand  []string `yaml:"backend_command" validate:"required,min=1"`
	FrontendCommand []string `yaml:"frontend_command" validate:"required,min=1"`
}

type UpdateConfig struct {
	PullCommand []string `yaml:"pull_command" validate:"required,min=1"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`  // empty disables the log file
	JSON  bool   `yaml:"json"` // JSON on stderr instead of text
}

// schemaProbeScript exits 0 when the migrations table exists.
const schemaProbeScript = "exit(ActiveRecord::Base.connection.table_exists?(:schema_migrations) ? 0 : 1)"

// DefaultArtifacts is the configuration file set a canvas-lms docker
// checkout needs.
func DefaultArtifacts() []Artifact {
	return []Artifact{
		{Name: "domain", Path: "config/domain.yml"},
		{Name: "database", Path: "config/database.yml"},
		{Name: "cache", Path: "config/redis.yml"},
		{Name: "security", Path: "config/security.yml"},
		{Name: "environment overrides", Path: "docker-compose.override.yml"},
	}
}

func DefaultConfig() CanvasDevConfig {
	return CanvasDevConfig{
		Compose: ComposeConfig{
			Command: []string{"docker", "compose"},
		},
		Runtime: RuntimeConfig{
			Binary:            "docker",
			MinComposeVersion: "2.0.0",
		},
		Project: ProjectConfig{
			MarkerFile:    "package.json",
			MarkerContent: `"name": "canvas-lms"`,
			SetupDoc:      "doc/docker/README.md",
			SetupSection:  "Configuration",
		},
		Artifacts: DefaultArtifacts(),
		Services: ServicesConfig{
			Web:      "web",
			Jobs:     "jobs",
			Webpack:  "webpack",
			Postgres: "postgres",
			Redis:    "redis",
		},
		Readiness: ReadinessConfig{
			Database:        ProbeBudget{MaxAttempts: 30, Interval: 2 * time.Second, AttemptTimeout: 10 * time.Second},
			Compiler:        ProbeBudget{MaxAttempts: 60, Interval: 5 * time.Second, AttemptTimeout: 15 * time.Second},
			CompilerMarker:  "compiled successfully",
			CompilerLogTail: 200,
		},
		Database: DatabaseConfig{
			User:           "postgres",
			ConnectTimeout: 5 * time.Second,
			DetectCommand:  []string{"bundle", "exec", "rails", "runner", schemaProbeScript},
			DetectTimeout:  3 * time.Minute,
			CreateCommand:  []string{"bundle", "exec", "rake", "db:create", "db:initial_setup"},
			MigrateCommand: []string{"bundle", "exec", "rake", "db:migrate"},
		},
		Deps: DepsConfig{
			BackendCommand:  []string{"bundle", "install"},
			FrontendCommand: []string{"yarn", "install", "--pure-lockfile"},
		},
		Update: UpdateConfig{
			PullCommand: []string{"git", "pull"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
