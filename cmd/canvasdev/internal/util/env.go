// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
)

// envVarKeyPattern matches POSIX environment variable names.
var envVarKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidEnvVarKey is returned when an environment entry has a bad key.
var ErrInvalidEnvVarKey = errors.New("invalid environment variable key")

// IsSensitiveKey reports whether an environment variable name looks like it
// holds a secret. It shares its rules with the log redaction.
//
// # Example
//
//	IsSensitiveKey("POSTGRES_PASSWORD") // true
//	IsSensitiveKey("COMPOSE_PROJECT_NAME") // false
func IsSensitiveKey(key string) bool {
	return logging.IsSensitiveKey(key)
}

// ValidateEnv checks that every entry is KEY=VALUE with a POSIX key.
//
// # Description
//
// Entries come from the configuration file and are appended to the
// environment of docker compose invocations. A malformed key would be
// silently ignored by the child, so it is rejected up front.
//
// # Outputs
//
//   - error: Wraps ErrInvalidEnvVarKey naming the first bad entry
func ValidateEnv(env []string) error {
	for _, entry := range env {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || !envVarKeyPattern.MatchString(key) {
			return fmt.Errorf("%w: %q", ErrInvalidEnvVarKey, redactEntry(entry))
		}
	}
	return nil
}

// RedactEnv returns a copy of env with sensitive values replaced.
func RedactEnv(env []string) []string {
	out := make([]string, len(env))
	for i, entry := range env {
		out[i] = redactEntry(entry)
	}
	return out
}

// EnvFromMap converts a map into sorted KEY=VALUE entries.
func EnvFromMap(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

func redactEntry(entry string) string {
	key, _, ok := strings.Cut(entry, "=")
	if !ok {
		return entry
	}
	if IsSensitiveKey(key) {
		return key + "=" + logging.Redacted
	}
	return entry
}
