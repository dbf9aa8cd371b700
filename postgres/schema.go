package postgres

import (
	"context"
	"fmt"
	"strconv"
)

const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS books (
        id BIGSERIAL PRIMARY KEY,
        title TEXT NOT NULL,
        author TEXT NOT NULL,
        genre TEXT,
        published_year INTEGER NOT NULL,
        price NUMERIC(10,2) NOT NULL CHECK (price > 0)
    )`,
	`CREATE TABLE IF NOT EXISTS members (
        id BIGSERIAL PRIMARY KEY,
        first_name TEXT NOT NULL,
        last_name TEXT NOT NULL,
        email TEXT NOT NULL UNIQUE,
        phone TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS transactions (
        id BIGSERIAL PRIMARY KEY,
        book_id BIGINT NOT NULL REFERENCES books(id),
        member_id BIGINT NOT NULL REFERENCES members(id),
        issue_date DATE NOT NULL,
        return_date DATE,
        fine_amount NUMERIC(10,2) CHECK (fine_amount IS NULL OR fine_amount >= 0)
    )`,
	// At most one open loan per book.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_open_book
        ON transactions(book_id) WHERE return_date IS NULL`,
	`CREATE INDEX IF NOT EXISTS ix_transactions_open_member
        ON transactions(member_id) WHERE return_date IS NULL`,
}

// EnsureSchema creates the tables and indexes when the recorded schema
// version is older than the one this package expects.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	if _, err := g.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}

	var raw string
	err := g.db.QueryRow(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if err != nil && !isNoRows(err) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current, _ := strconv.Atoi(raw); current >= schemaVersion {
		return nil
	}

	tx, err := g.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO meta(key, value) VALUES ('schema_version', $1)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value`, strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	g.logger.Info("postgres schema applied", "version", schemaVersion)
	return tx.Commit(ctx)
}
