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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFileName is looked up in the project directory.
	DefaultFileName = ".canvasdev.yaml"

	// EnvPrefix prefixes every environment override, e.g. CANVASDEV_DATABASE_URL.
	EnvPrefix = "CANVASDEV"
)

// ErrInvalidConfig is returned when the merged configuration fails validation.
var ErrInvalidConfig = errors.New("invalid canvasdev configuration")

// envOverrides are the keys that can be set from the environment.
var envOverrides = []string{
	"project_dir",
	"config",
	"database.url",
	"logging.level",
	"logging.dir",
	"logging.json",
	"output",
	"compose.project_name",
	"runtime.binary",
}

// LoadOptions carries values given on the command line. Empty fields fall
// back to the environment and then to defaults.
type LoadOptions struct {
	ProjectDir string
	ConfigPath string
}

// Load builds the configuration for one run.
//
// # Description
//
// Starts from DefaultConfig, decodes the optional YAML file over it, then
// applies CANVASDEV_* environment overrides and validates the result.
// Loading never writes anything: a missing default file is not an error
// and is not created.
//
// # Inputs
//
//   - opts: Command-line overrides
//
// # Outputs
//
//   - CanvasDevConfig: The merged configuration with an absolute ProjectDir
//   - error: File read/decode failure, or ErrInvalidConfig
//
// # Limitations
//
//   - An explicitly named config file that does not exist is an error
func Load(opts LoadOptions) (CanvasDevConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOverrides {
		if err := v.BindEnv(key); err != nil {
			return CanvasDevConfig{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	projectDir := firstNonEmpty(opts.ProjectDir, v.GetString("project_dir"))
	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return CanvasDevConfig{}, fmt.Errorf("could not determine the working directory: %w", err)
		}
		projectDir = wd
	}
	projectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return CanvasDevConfig{}, fmt.Errorf("could not resolve project directory %s: %w", projectDir, err)
	}

	cfg := DefaultConfig()

	explicit := firstNonEmpty(opts.ConfigPath, v.GetString("config"))
	path := explicit
	if path == "" {
		path = filepath.Join(projectDir, DefaultFileName)
	}
	if err := decodeFile(path, explicit != "", &cfg); err != nil {
		return CanvasDevConfig{}, err
	}

	// The command line and environment win over project_dir in the file.
	cfg.ProjectDir = projectDir
	applyEnv(v, &cfg)

	if err := Validate(cfg); err != nil {
		return CanvasDevConfig{}, err
	}
	return cfg, nil
}

func decodeFile(path string, required bool, cfg *CanvasDevConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read the config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(v *viper.Viper, cfg *CanvasDevConfig) {
	if v.IsSet("database.url") {
		cfg.Database.URL = v.GetString("database.url")
	}
	if v.IsSet("logging.level") {
		cfg.Logging.Level = strings.ToLower(v.GetString("logging.level"))
	}
	if v.IsSet("logging.dir") {
		cfg.Logging.Dir = v.GetString("logging.dir")
	}
	if v.IsSet("logging.json") {
		cfg.Logging.JSON = v.GetBool("logging.json")
	}
	if v.IsSet("output") {
		cfg.Output = strings.ToLower(v.GetString("output"))
	}
	if v.IsSet("compose.project_name") {
		cfg.Compose.ProjectName = v.GetString("compose.project_name")
	}
	if v.IsSet("runtime.binary") {
		cfg.Runtime.Binary = v.GetString("runtime.binary")
	}
}

// Validate checks the struct tags on cfg.
//
// Field errors are joined into a single message wrapping ErrInvalidConfig,
// using the YAML key path so the operator can find the offending entry.
func Validate(cfg CanvasDevConfig) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(yamlTagName)

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	// Namespace is "CanvasDevConfig.readiness.database.max_attempts".
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", key, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s=%s", key, fe.Tag(), fe.Param())
	}
}

func yamlTagName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
