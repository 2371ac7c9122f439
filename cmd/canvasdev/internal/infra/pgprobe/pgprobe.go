// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pgprobe talks to the development database directly when a
// connection URL is configured.
//
// # Overview
//
// It answers the two questions canvasdev asks the database: does it
// accept connections, and has the application schema been created. It
// never writes.
package pgprobe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"

	"github.com/pankajkumar3021/canvas-lms/pkg/logging"
)

// ErrUnreachable is returned when the database server cannot be reached.
var ErrUnreachable = errors.New("database unreachable")

// schemaQuery succeeds once the application has run its first migration.
const schemaQuery = `SELECT count(*) FROM "schema_migrations"`

// Conn is the subset of *pgx.Conn the probe uses.
type Conn interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Close(ctx context.Context) error
}

// ConnectFunc opens a connection.
type ConnectFunc func(ctx context.Context, url string, timeout time.Duration) (Conn, error)

// Client runs read-only probes against one database URL.
type Client struct {
	url     string
	timeout time.Duration
	connect ConnectFunc
	logger  *logging.Logger
}

// NewClient creates a Client. A nil connect uses pgx.
func NewClient(url string, timeout time.Duration, connect ConnectFunc, logger *logging.Logger) *Client {
	if connect == nil {
		connect = Connect
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{url: url, timeout: timeout, connect: connect, logger: logger}
}

// Connect opens a pgx connection with the given connect timeout.
func Connect(ctx context.Context, url string, timeout time.Duration) (Conn, error) {
	cfg, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if timeout > 0 {
		cfg.ConnectTimeout = timeout
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Ping reports whether the server accepts connections.
//
// # Description
//
// A server that rejects the connection only because the application
// database does not exist yet is accepting connections, so that case is
// treated as ready.
//
// # Outputs
//
//   - error: nil when the server answered
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.connect(ctx, c.url, c.timeout)
	if err != nil {
		if hasCode(err, pgerrcode.InvalidCatalogName) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer c.close(conn)

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return nil
}

// SchemaPresent reports whether the application schema exists.
//
// # Outputs
//
//   - bool: true when the migrations table can be read
//   - error: Wraps ErrUnreachable when the server cannot be reached. A
//     missing database or missing table is (false, nil).
func (c *Client) SchemaPresent(ctx context.Context) (bool, error) {
	conn, err := c.connect(ctx, c.url, c.timeout)
	if err != nil {
		if hasCode(err, pgerrcode.InvalidCatalogName) {
			c.logger.Debug("application database does not exist")
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer c.close(conn)

	var migrations int64
	if err := conn.QueryRow(ctx, schemaQuery).Scan(&migrations); err != nil {
		if hasCode(err, pgerrcode.UndefinedTable) {
			c.logger.Debug("schema_migrations table does not exist")
			return false, nil
		}
		return false, fmt.Errorf("schema probe failed: %w", err)
	}
	c.logger.Debug("schema present", "migrations", migrations)
	return true, nil
}

func (c *Client) close(conn Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = conn.Close(ctx)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
