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
	"path/filepath"
	"testing"
)

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		in   string
		want PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"STD", PersonalityStandard},
		{"m", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{" Machine ", PersonalityMachine},
		{"sparkly", PersonalityStandard},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParsePersonalityLevel(tt.in); got != tt.want {
				t.Errorf("ParsePersonalityLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDetectPersonality_OverrideWins(t *testing.T) {
	if got := DetectPersonality("minimal", nil); got != PersonalityMinimal {
		t.Errorf("DetectPersonality() = %q, want minimal", got)
	}
}

func TestDetectPersonality_FileIsMachine(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.log"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := DetectPersonality("", f); got != PersonalityMachine {
		t.Errorf("DetectPersonality(file) = %q, want machine", got)
	}
	if IsTerminal(f) {
		t.Error("a regular file is not a terminal")
	}
}

func TestDetectPersonality_NilIsMachine(t *testing.T) {
	if got := DetectPersonality("", nil); got != PersonalityMachine {
		t.Errorf("DetectPersonality(nil) = %q, want machine", got)
	}
}
