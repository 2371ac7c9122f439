// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides an abstraction over external process execution.

# Overview

Every docker, git and compose invocation made by canvasdev goes through
Manager so that the orchestration code can be exercised in unit tests
without a container runtime on the machine.

	pm := process.NewDefaultManager()
	stdout, stderr, code, err := pm.RunInDir(ctx, projectDir, nil, "docker", "info")
	if err != nil {
	    return fmt.Errorf("docker info: %w", err)
	}
	if code != 0 {
	    return fmt.Errorf("docker info exited %d: %s", code, stderr)
	}

For testing, use MockManager:

	mock := &process.MockManager{
	    RunInDirFunc: func(ctx context.Context, dir string, env []string, name string, args ...string) (string, string, int, error) {
	        return "Server Version: 27.0.1", "", 0, nil
	    },
	}

# Exit Codes

A non-zero exit code is not an error at this layer. err is reserved for
failures to start the process or for context cancellation; callers decide
what a non-zero exit means for them.

# Thread Safety

DefaultManager and MockManager are safe for concurrent use.
*/
package process
