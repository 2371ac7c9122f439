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
	"bytes"
	"strings"
	"testing"
)

func newTestConsole(level PersonalityLevel) (*Console, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewConsole(&out, &errOut, level), &out, &errOut
}

// =============================================================================
// Icon Tests
// =============================================================================

func TestIcon_Render_ContainsGlyph(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconSkipped, IconArrow} {
		if !strings.Contains(icon.Render(), string(icon)) {
			t.Errorf("Render() of %q lost the glyph", icon)
		}
	}
}

func TestIcon_machineTag(t *testing.T) {
	tests := map[Icon]string{
		IconSuccess: "OK",
		IconWarning: "WARN",
		IconError:   "FAIL",
		IconSkipped: "SKIP",
		IconBullet:  "INFO",
	}
	for icon, want := range tests {
		if got := icon.machineTag(); got != want {
			t.Errorf("machineTag(%q) = %q, want %q", icon, got, want)
		}
	}
}

// =============================================================================
// Console Tests
// =============================================================================

func TestConsole_MachineSplitsStreams(t *testing.T) {
	c, out, errOut := newTestConsole(PersonalityMachine)

	c.Title("canvasdev")
	c.Success("services started")
	c.Warning("asset compiler still building")
	c.Muted("hidden")

	if got := out.String(); got != "OK: services started\n" {
		t.Errorf("stdout = %q", got)
	}
	want := "WARN: asset compiler still building\n"
	if got := errOut.String(); got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
}

func TestConsole_MachineRowsAreTabSeparated(t *testing.T) {
	c, out, _ := newTestConsole(PersonalityMachine)

	c.Row(IconSuccess, "build", "skipped (image exists)")
	c.Row(IconWarning, "wait-asset-compiler", "timed out after 60 attempts")

	want := "OK\tbuild\tskipped (image exists)\nWARN\twait-asset-compiler\ttimed out after 60 attempts\n"
	if out.String() != want {
		t.Errorf("rows = %q, want %q", out.String(), want)
	}
}

func TestConsole_MachineBoxIsOneLine(t *testing.T) {
	c, out, errOut := newTestConsole(PersonalityMachine)

	c.ErrorBox("missing configuration", "config/database.yml\nconfig/security.yml")

	if out.Len() != 0 {
		t.Errorf("stdout should be empty, got %q", out.String())
	}
	want := "ERROR missing configuration: config/database.yml; config/security.yml\n"
	if errOut.String() != want {
		t.Errorf("stderr = %q, want %q", errOut.String(), want)
	}
}

func TestConsole_MinimalIsPlain(t *testing.T) {
	c, out, errOut := newTestConsole(PersonalityMinimal)

	c.Title("ignored")
	c.Step("start", "Starting services")
	c.Warning("slow")

	got := out.String()
	if strings.Contains(got, "ignored") {
		t.Error("minimal should not print titles")
	}
	if !strings.Contains(got, "→ Starting services") || !strings.Contains(got, "⚠ slow") {
		t.Errorf("minimal output = %q", got)
	}
	if errOut.Len() != 0 {
		t.Errorf("minimal should keep warnings on stdout, stderr = %q", errOut.String())
	}
}

func TestConsole_FullShowsStepName(t *testing.T) {
	c, out, _ := newTestConsole(PersonalityFull)

	c.Step("wait-database", "Waiting for the database")

	if !strings.Contains(out.String(), "Waiting for the database") || !strings.Contains(out.String(), "[wait-database]") {
		t.Errorf("full step output = %q", out.String())
	}
}

func TestConsole_BoxContainsContent(t *testing.T) {
	c, out, _ := newTestConsole(PersonalityStandard)

	c.Box("canvasdev: ready", "http://canvas.docker")

	got := out.String()
	if !strings.Contains(got, "canvasdev: ready") || !strings.Contains(got, "http://canvas.docker") {
		t.Errorf("box output = %q", got)
	}
}

func TestNewConsole_Defaults(t *testing.T) {
	c := NewConsole(nil, nil, "")
	if c.Out == nil || c.Err == nil {
		t.Fatal("nil writers should default to stdout/stderr")
	}
	if c.Level != PersonalityStandard {
		t.Errorf("Level = %q, want standard", c.Level)
	}
}
