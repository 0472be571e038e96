package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/agronova/tracker-backend/database"
)

// BootstrapSchema applies the embedded DDL in a single transaction, in
// dependency order:
//  1. audit.sql (transactions table, referenced by every version table)
//  2. users.sql
//  3. trackers.sql
//
// SQL is embedded at build time so binaries stay self-contained. The helper is
// idempotent and intended for CLI bootstrap and tests.
func BootstrapSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("bootstrap schema: pool is required")
	}

	var statements []string
	statements = append(statements, splitStatements(sqlassets.AuditSQL)...)
	statements = append(statements, splitStatements(sqlassets.UsersSQL)...)
	statements = append(statements, splitStatements(sqlassets.TrackersSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func splitStatements(ddl string) []string {
	raw := strings.Split(ddl, ";")
	statements := make([]string, 0, len(raw))
	for _, candidate := range raw {
		stmt := strings.TrimSpace(candidate)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
