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
	"strings"
	"time"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/failure"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/readiness"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/util"
	"github.com/pankajkumar3021/canvas-lms/pkg/ux"
)

// StepStatus is how a step ended.
type StepStatus int

const (
	StepOK StepStatus = iota
	StepSkipped
	StepWarning
	StepFailed
)

func (s StepStatus) String() string {
	switch s {
	case StepOK:
		return "ok"
	case StepSkipped:
		return "skipped"
	case StepWarning:
		return "warning"
	case StepFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s StepStatus) icon() ux.Icon {
	switch s {
	case StepOK:
		return ux.IconSuccess
	case StepSkipped:
		return ux.IconSkipped
	case StepWarning:
		return ux.IconWarning
	default:
		return ux.IconError
	}
}

// StepRecord is one executed step.
type StepRecord struct {
	Name     string
	Status   StepStatus
	Detail   string
	Duration time.Duration
}

// RunReport summarizes one invocation.
type RunReport struct {
	RunID string
	Mode  RunMode

	// Planned is the mode's full step sequence; Steps is what actually ran.
	Planned []string
	Steps   []StepRecord

	// Probes holds every readiness result in the order they ran.
	Probes   []readiness.Result
	Warnings []string

	Started  time.Time
	Finished time.Time
	Err      error
}

func (r *RunReport) record(rec StepRecord) {
	r.Steps = append(r.Steps, rec)
}

// StepNames returns the names of the executed steps in order.
func (r *RunReport) StepNames() []string {
	names := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		names = append(names, s.Name)
	}
	return names
}

// Step returns the record for name, if it ran.
func (r *RunReport) Step(name string) (StepRecord, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepRecord{}, false
}

// printReport writes the end-of-run summary.
//
// # Description
//
// Lists every planned step with its status and duration. Steps that never
// ran because an earlier one failed are shown as not run. Warnings follow
// the table. On failure the labeled error and its remediation are printed,
// and the final line names the failing step.
func printReport(c *ux.Console, r *RunReport) {
	c.Println("")
	for _, rec := range r.Steps {
		if rec.Name == failure.FailedStep(r.Err) && rec.Status == StepFailed {
			c.Row(rec.icon(), rec.Name, "failed after "+formatDuration(rec.Duration))
			continue
		}
		c.Row(rec.icon(), rec.Name, rowDetail(rec))
	}
	for _, name := range r.Planned[min(len(r.Steps), len(r.Planned)):] {
		c.Row(ux.IconPending, name, "not run")
	}

	if len(r.Warnings) > 0 {
		c.WarningBox("Warnings", "• "+strings.Join(r.Warnings, "\n• "))
	}

	if r.Err == nil {
		c.Box("canvasdev "+r.Mode.String()+" complete",
			fmt.Sprintf("finished in %s\nrun id %s", formatDuration(r.Finished.Sub(r.Started)), r.RunID))
		return
	}

	label, remediation := failure.Describe(r.Err)
	body := rootMessage(r.Err)
	if remediation != "" {
		body += "\n\n→ " + remediation
	}
	c.ErrorBox(label, body)

	if step := failure.FailedStep(r.Err); step != "" {
		fmt.Fprintf(c.Err, "canvasdev: failed at step %q\n", step)
	} else {
		fmt.Fprintf(c.Err, "canvasdev: %s\n", label)
	}
}

func (s StepRecord) icon() ux.Icon { return s.Status.icon() }

func rowDetail(rec StepRecord) string {
	d := formatDuration(rec.Duration)
	if rec.Detail == "" {
		return d
	}
	return rec.Detail + " (" + d + ")"
}

// rootMessage strips the step prefix so the box shows the cause itself.
// Captured command stderr is moved below the headline as its own block.
func rootMessage(err error) string {
	msg := err.Error()
	if step := failure.FailedStep(err); step != "" {
		msg = strings.TrimPrefix(msg, fmt.Sprintf("step %q: ", step))
	}
	if stderr := util.ExtractStderr(err); stderr != "" {
		if head, ok := strings.CutSuffix(msg, ": "+stderr); ok {
			msg = head + "\n\n" + stderr
		}
	}
	return msg
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
