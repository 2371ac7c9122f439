// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel defines how rich the console output is.
type PersonalityLevel string

const (
	// PersonalityFull enables colors, icons, boxes and step headers.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityStandard enables colors, icons and boxes.
	PersonalityStandard PersonalityLevel = "standard"

	// PersonalityMinimal uses icons and plain text only.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine prints prefixed plain lines for scripts and CI logs.
	PersonalityMachine PersonalityLevel = "machine"
)

// ParsePersonalityLevel converts a string to a PersonalityLevel.
// Unknown values map to PersonalityStandard.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return PersonalityFull
	case "standard", "std", "s":
		return PersonalityStandard
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityStandard
	}
}

// DetectPersonality picks the output level for a run.
//
// # Description
//
// An explicit override (from configuration or CANVASDEV_OUTPUT) wins.
// Otherwise the level is full when out is a terminal and machine when it
// is a pipe or a file, so CI logs stay free of escape codes.
//
// # Inputs
//
//   - override: Configured level, may be empty
//   - out: The stream the console writes to
func DetectPersonality(override string, out *os.File) PersonalityLevel {
	if override != "" {
		return ParsePersonalityLevel(override)
	}
	if out == nil || !IsTerminal(out) {
		return PersonalityMachine
	}
	return PersonalityFull
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
