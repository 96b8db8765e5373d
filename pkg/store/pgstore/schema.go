// pkg/store/pgstore/schema.go

// Package pgstore keeps the control record and stage logs in PostgreSQL.
// Source data, partitions and availability records stay in MongoDB.
package pgstore

import (
	"context"
	"fmt"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EnsureSchema creates the control and log tables when missing
func EnsureSchema(ctx context.Context, db *sqlx.DB, controlTable, logTable string) error {
	for _, name := range []string{controlTable, logTable} {
		if !identPattern.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			run_id       TEXT NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL,
			error_detail TEXT NOT NULL DEFAULT '',
			version      BIGINT NOT NULL
		)`, controlTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id               TEXT PRIMARY KEY,
			run_id           TEXT NOT NULL,
			stage            TEXT NOT NULL,
			message          TEXT NOT NULL,
			status           TEXT NOT NULL,
			start_time       TIMESTAMPTZ NOT NULL,
			end_time         TIMESTAMPTZ,
			duration_seconds DOUBLE PRECISION
		)`, logTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_run_start ON %s (run_id, start_time)`, logTable, logTable),
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
