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
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/failure"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/util"
	"github.com/pankajkumar3021/canvas-lms/pkg/ux"
)

func TestPrintReport_Success(t *testing.T) {
	var out, errOut bytes.Buffer
	c := ux.NewConsole(&out, &errOut, ux.PersonalityMachine)
	start := time.Now()

	printReport(c, &RunReport{
		RunID:   "abc",
		Mode:    ModeStart,
		Planned: modeSteps[ModeStart],
		Steps: []StepRecord{
			{Name: StepPreconditionCheck, Status: StepOK, Detail: "docker 27.3.1", Duration: 120 * time.Millisecond},
			{Name: StepStart, Status: StepOK, Duration: 3 * time.Second},
			{Name: StepWaitAssetCompiler, Status: StepWarning, Detail: "not ready after 60 attempts"},
			{Name: StepReport, Status: StepWarning},
		},
		Warnings: []string{"asset compiler not ready after 60 attempts"},
		Started:  start,
		Finished: start.Add(5 * time.Minute),
	})

	got := out.String()
	for _, want := range []string{
		"OK\tprecondition-check\tdocker 27.3.1 (120ms)",
		"OK\tstart\t3s",
		"WARN\twait-asset-compiler\tnot ready after 60 attempts",
		"canvasdev start complete",
		"run id abc",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("stdout missing %q:\n%s", want, got)
		}
	}
	if !strings.Contains(errOut.String(), "asset compiler not ready") {
		t.Errorf("warnings not printed: %q", errOut.String())
	}
	if strings.Contains(errOut.String(), "failed at step") {
		t.Error("successful run must not print a failed step")
	}
}

func TestPrintReport_Failure(t *testing.T) {
	var out, errOut bytes.Buffer
	c := ux.NewConsole(&out, &errOut, ux.PersonalityMachine)

	err := failure.AtStep(StepInitDatabase, &failure.DatabaseInitError{Operation: "migrate", Err: errors.New("exit 1")})
	printReport(c, &RunReport{
		Mode:    ModeFull,
		Planned: modeSteps[ModeFull],
		Steps: []StepRecord{
			{Name: StepPreconditionCheck, Status: StepOK},
			{Name: StepBuild, Status: StepSkipped, Detail: "image present"},
			{Name: StepStart, Status: StepOK},
			{Name: StepWaitDatabase, Status: StepOK},
			{Name: StepInitDatabase, Status: StepFailed, Detail: err.Error()},
		},
		Err: err,
	})

	if !strings.Contains(out.String(), "SKIP\tbuild\timage present") {
		t.Errorf("skipped step not shown:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "PENDING\twait-asset-compiler\tnot run") {
		t.Errorf("unreached step not shown:\n%s", out.String())
	}

	stderr := errOut.String()
	if !strings.Contains(stderr, "ERROR database initialization failed: database migrate failed: exit 1") {
		t.Errorf("error box missing:\n%s", stderr)
	}
	lines := strings.Split(strings.TrimRight(stderr, "\n"), "\n")
	if last := lines[len(lines)-1]; last != `canvasdev: failed at step "init-database"` {
		t.Errorf("last line = %q", last)
	}
}

func TestRunReport_StepLookup(t *testing.T) {
	r := &RunReport{}
	r.record(StepRecord{Name: StepPull, Status: StepOK})

	if _, ok := r.Step(StepPull); !ok {
		t.Error("recorded step not found")
	}
	if _, ok := r.Step(StepMigrate); ok {
		t.Error("unrecorded step found")
	}
	if got := r.StepNames(); len(got) != 1 || got[0] != StepPull {
		t.Errorf("StepNames() = %v", got)
	}
}

func TestRootMessage_MovesStderrBelowHeadline(t *testing.T) {
	cmdErr := util.NewCommandError("docker compose run --rm -T web bundle exec rake db:migrate", 1,
		"rake aborted!\nPG::ConnectionBad: could not connect", nil)
	err := failure.AtStep(StepMigrate, &failure.DatabaseInitError{Operation: "migrate", Err: cmdErr})

	want := "database migrate failed: docker compose run --rm -T web bundle exec rake db:migrate (exit 1)" +
		"\n\nrake aborted!\nPG::ConnectionBad: could not connect"
	if got := rootMessage(err); got != want {
		t.Errorf("rootMessage() = %q, want %q", got, want)
	}
}

func TestRootMessage_WithoutStderr(t *testing.T) {
	err := failure.AtStep(StepPull, util.NewCommandError("git pull", 1, "", nil))
	if got := rootMessage(err); got != "git pull (exit 1)" {
		t.Errorf("rootMessage() = %q", got)
	}
}
