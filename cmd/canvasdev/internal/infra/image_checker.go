// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/infra/process"
	"github.com/pankajkumar3021/canvas-lms/cmd/canvasdev/internal/util"
	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
)

// =============================================================================
// INTERFACES
// =============================================================================

// ImageChecker answers questions about locally stored container images.
//
// # Description
//
// Used by the build step to decide whether the application image already
// exists. The answer is always taken from the container runtime at call
// time; nothing is cached between runs.
//
// # Examples
//
//	checker := NewDefaultImageChecker("docker", process.NewDefaultManager(), logger)
//	exists, err := checker.ImageExists(ctx, "canvas-lms-web")
//
// # Assumptions
//
//   - The runtime CLI supports `image inspect`.
type ImageChecker interface {
	// ImageExists reports whether ref resolves to a local image.
	//
	// # Outputs
	//
	//   - bool: true if the image exists
	//   - error: Non-nil only when the runtime could not answer (daemon
	//     down, binary missing); an unknown image is (false, nil)
	ImageExists(ctx context.Context, ref string) (bool, error)
}

// =============================================================================
// IMPLEMENTATION
// =============================================================================

// DefaultImageChecker implements ImageChecker with `<runtime> image inspect`.
type DefaultImageChecker struct {
	binary string
	proc   process.Manager
	logger *logging.Logger
}

// NewDefaultImageChecker creates an ImageChecker for the given runtime binary.
func NewDefaultImageChecker(binary string, proc process.Manager, logger *logging.Logger) *DefaultImageChecker {
	if binary == "" {
		binary = "docker"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &DefaultImageChecker{binary: binary, proc: proc, logger: logger}
}

// ImageExists implements ImageChecker.
func (c *DefaultImageChecker) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, stderr, code, err := c.proc.RunInDir(ctx, "", nil, c.binary, "image", "inspect", "--format", "{{.Id}}", ref)
	cmd := fmt.Sprintf("%s image inspect %s", c.binary, ref)
	if err != nil {
		return false, util.NewCommandError(cmd, code, stderr, err)
	}
	if code == 0 {
		c.logger.Debug("image found", "image", ref)
		return true, nil
	}
	if isNoSuchImage(stderr) {
		c.logger.Debug("image not found", "image", ref)
		return false, nil
	}
	return false, util.NewCommandError(cmd, code, stderr, nil)
}

func isNoSuchImage(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "no such image") || strings.Contains(lower, "image not known")
}

var _ ImageChecker = (*DefaultImageChecker)(nil)
