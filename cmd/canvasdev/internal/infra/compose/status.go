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
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// ComposeStatus is the state of the project's containers.
type ComposeStatus struct {
	Services []ServiceStatus

	Running   int
	Stopped   int
	Unhealthy int
}

// ServiceStatus is one container row of `compose ps`.
type ServiceStatus struct {
	Service       string
	ContainerName string
	State         string
	Health        string
	Image         string
	ExitCode      int
	Ports         []PortMapping
}

// IsRunning reports state "running".
func (s ServiceStatus) IsRunning() bool {
	return s.State == "running"
}

type PortMapping struct {
	URL           string
	TargetPort    int
	PublishedPort int
	Protocol      string
}

// Find returns the first container of a service.
func (s *ComposeStatus) Find(service string) (ServiceStatus, bool) {
	for _, svc := range s.Services {
		if svc.Service == service {
			return svc, true
		}
	}
	return ServiceStatus{}, false
}

// psRow mirrors the JSON emitted by `docker compose ps --format json`.
type psRow struct {
	Name       string `json:"Name"`
	Service    string `json:"Service"`
	State      string `json:"State"`
	Health     string `json:"Health"`
	Image      string `json:"Image"`
	ExitCode   int    `json:"ExitCode"`
	Publishers []struct {
		URL           string `json:"URL"`
		TargetPort    int    `json:"TargetPort"`
		PublishedPort int    `json:"PublishedPort"`
		Protocol      string `json:"Protocol"`
	} `json:"Publishers"`
}

// ParseStatus parses `compose ps --format json` output.
//
// # Description
//
// Compose releases before 2.21 print one JSON array; later ones print one
// JSON object per line. Both are accepted. Empty output is an empty status.
//
// # Outputs
//
//   - *ComposeStatus: Rows in output order with running/stopped counts
//   - error: Malformed JSON
func ParseStatus(output string) (*ComposeStatus, error) {
	status := &ComposeStatus{Services: []ServiceStatus{}}
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return status, nil
	}

	var rows []psRow
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
			return nil, fmt.Errorf("failed to parse compose ps output: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(strings.NewReader(trimmed))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var row psRow
			if err := json.Unmarshal([]byte(line), &row); err != nil {
				return nil, fmt.Errorf("failed to parse compose ps line %q: %w", line, err)
			}
			rows = append(rows, row)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read compose ps output: %w", err)
		}
	}

	for _, r := range rows {
		svc := ServiceStatus{
			Service:       r.Service,
			ContainerName: r.Name,
			State:         r.State,
			Health:        r.Health,
			Image:         r.Image,
			ExitCode:      r.ExitCode,
		}
		for _, p := range r.Publishers {
			svc.Ports = append(svc.Ports, PortMapping{
				URL:           p.URL,
				TargetPort:    p.TargetPort,
				PublishedPort: p.PublishedPort,
				Protocol:      p.Protocol,
			})
		}
		status.Services = append(status.Services, svc)

		if svc.IsRunning() {
			status.Running++
		} else {
			status.Stopped++
		}
		if svc.Health == "unhealthy" {
			status.Unhealthy++
		}
	}
	return status, nil
}
