package sql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
)

//go:embed schema.sql
var Content embed.FS

// EnsureSchema applies the embedded schema. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS) so startup can run this unconditionally.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	schema, err := Content.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}
