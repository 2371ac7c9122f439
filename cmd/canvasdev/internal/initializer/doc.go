// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package initializer brings the development database to a usable schema.
//
// The package answers one question live on every run: does the application
// schema exist? The answer (BootstrapState) is never written anywhere.
//
//   - Absent: create the database and load the initial data, once.
//   - Present: run pending migrations only.
//
// # Strategies
//
// Detection has two strategies. The default runs a one-off command inside
// the application container and treats exit 0 as Present. When a database
// URL is configured, a direct pgx query against schema_migrations is used
// instead.
//
// In both strategies the database must be reachable before detection is
// attempted. An unreachable database is an environment problem, never a
// reason to create the schema.
//
// # Failure
//
// A failing create, seed or migrate command is returned as a
// failure.DatabaseInitError. Nothing is retried or repaired.
package initializer
