// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/compose-spec/compose-go/v2/cli"
	"github.com/compose-spec/compose-go/v2/types"
)

// ErrProjectLoad is returned when the compose files cannot be loaded.
var ErrProjectLoad = errors.New("failed to load compose project")

// ProjectOptions locates the compose project on disk.
type ProjectOptions struct {
	// Dir is the working directory (the canvas-lms checkout).
	Dir string

	// Files are explicit compose files. Empty means compose's defaults
	// (docker-compose.yml plus docker-compose.override.yml).
	Files []string

	// Name overrides the project name.
	Name string
}

// LoadProject parses the compose project the same way docker compose does.
//
// # Description
//
// Uses compose-go with the OS environment and the project's .env file so
// that interpolation matches what the compose CLI will see. The project is
// only read; nothing is written.
//
// # Outputs
//
//   - *types.Project: The resolved project
//   - error: Wraps ErrProjectLoad
func LoadProject(ctx context.Context, opts ProjectOptions) (*types.Project, error) {
	fns := []cli.ProjectOptionsFn{
		cli.WithWorkingDirectory(opts.Dir),
		cli.WithOsEnv,
		cli.WithDotEnv,
	}
	if len(opts.Files) == 0 {
		fns = append(fns, cli.WithDefaultConfigPath)
	}
	if opts.Name != "" {
		fns = append(fns, cli.WithName(opts.Name))
	}

	options, err := cli.NewProjectOptions(opts.Files, fns...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProjectLoad, err)
	}
	project, err := options.LoadProject(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProjectLoad, err)
	}
	return project, nil
}

// DeclaredServices returns every service name in the project, including
// services disabled by profiles, sorted.
func DeclaredServices(project *types.Project) []string {
	names := project.ServiceNames()
	for name := range project.DisabledServices {
		names = append(names, name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// MissingServices returns the entries of want that the project does not
// declare, in the order given.
func MissingServices(project *types.Project, want []string) []string {
	declared := DeclaredServices(project)
	var missing []string
	for _, name := range want {
		if _, found := slices.BinarySearch(declared, name); !found {
			missing = append(missing, name)
		}
	}
	return missing
}

// MarkerImage returns the image compose builds for service: its explicit
// `image:` or "<project>-<service>".
func MarkerImage(project *types.Project, service string) (string, error) {
	svc, ok := project.Services[service]
	if !ok {
		svc, ok = project.DisabledServices[service]
	}
	if !ok {
		return "", fmt.Errorf("service %q is not declared in project %s", service, project.Name)
	}
	if svc.Image != "" {
		return svc.Image, nil
	}
	return project.Name + "-" + service, nil
}
