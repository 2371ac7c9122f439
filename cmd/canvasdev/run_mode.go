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

import "fmt"

// RunMode selects the step sequence for one invocation. It is chosen once
// from the command line and never changes during the run.
type RunMode int

const (
	ModeFull RunMode = iota
	ModeStart
	ModeUpdate
	ModeRebuild
)

// allModes is the closed set of modes, in help order.
var allModes = []RunMode{ModeFull, ModeStart, ModeUpdate, ModeRebuild}

func (m RunMode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeStart:
		return "start"
	case ModeUpdate:
		return "update"
	case ModeRebuild:
		return "rebuild"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Flag is the command-line flag that selects the mode. Full has none.
func (m RunMode) Flag() string {
	if m == ModeFull {
		return ""
	}
	return "--" + m.String()
}

// Step names. Every failure is attributed to one of these.
const (
	StepPreconditionCheck   = "precondition-check"
	StepBuild               = "build"
	StepStart               = "start"
	StepWaitDatabase        = "wait-database"
	StepInitDatabase        = "init-database"
	StepWaitAssetCompiler   = "wait-asset-compiler"
	StepPull                = "pull"
	StepMigrate             = "migrate"
	StepRestart             = "restart"
	StepStop                = "stop"
	StepInstallBackendDeps  = "install-backend-deps"
	StepInstallFrontendDeps = "install-frontend-deps"
	StepReport              = "report"
)

// modeSteps is the fixed step order of each mode.
var modeSteps = map[RunMode][]string{
	ModeFull: {
		StepPreconditionCheck, StepBuild, StepStart, StepWaitDatabase,
		StepInitDatabase, StepWaitAssetCompiler, StepReport,
	},
	ModeStart: {
		StepPreconditionCheck, StepStart, StepWaitAssetCompiler, StepReport,
	},
	ModeUpdate: {
		StepPull, StepMigrate, StepRestart, StepReport,
	},
	ModeRebuild: {
		StepStop, StepBuild, StepInstallBackendDeps, StepInstallFrontendDeps,
		StepStart, StepWaitDatabase, StepMigrate, StepWaitAssetCompiler, StepReport,
	},
}
