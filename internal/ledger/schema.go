package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// initSchema creates the schema on a fresh database or verifies the version
// of an existing one. It runs under BEGIN IMMEDIATE so two processes opening
// a new ledger at the same time do not both create it.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	return s.immediate(ctx, func(conn *sql.Conn) error {
		var tableExists int
		err := conn.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
		).Scan(&tableExists)
		if err != nil {
			return fmt.Errorf("check schema_version table: %w", err)
		}

		if tableExists == 1 {
			var version int
			err := conn.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
			switch {
			case err == nil:
				if version != schemaVersion {
					return fmt.Errorf("%w: ledger has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
				}
				return nil
			case errors.Is(err, sql.ErrNoRows):
			default:
				return fmt.Errorf("read schema version: %w", err)
			}
		}

		if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := conn.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}
