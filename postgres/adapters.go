package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// rowScanner is a single-row query result.
type rowScanner interface {
	Scan(dest ...any) error
}

// dbRows is a multi-row query result.
type dbRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// querier is what both a connection pool and an open transaction offer.
type querier interface {
	QueryRow(ctx context.Context, query string, args ...any) rowScanner
	Query(ctx context.Context, query string, args ...any) (dbRows, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// dbAdapter hides whether the gateway runs on pgxpool or on sqlx.
type dbAdapter interface {
	querier
	Begin(ctx context.Context) (txAdapter, error)
	Close() error
}

type txAdapter interface {
	querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// pgx
// ---------------------------------------------------------------------------

type pgxAdapter struct {
	pool *pgxpool.Pool
}

func (p *pgxAdapter) QueryRow(ctx context.Context, query string, args ...any) rowScanner {
	return p.pool.QueryRow(ctx, query, args...)
}

func (p *pgxAdapter) Query(ctx context.Context, query string, args ...any) (dbRows, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (p *pgxAdapter) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *pgxAdapter) Begin(ctx context.Context) (txAdapter, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

func (p *pgxAdapter) Close() error {
	p.pool.Close()
	return nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) QueryRow(ctx context.Context, query string, args ...any) rowScanner {
	return t.tx.QueryRow(ctx, query, args...)
}

func (t *pgxTx) Query(ctx context.Context, query string, args ...any) (dbRows, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (t *pgxTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// pgxRows wraps pgx.Rows to implement dbRows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Close() error {
	r.rows.Close()
	return nil
}

// ---------------------------------------------------------------------------
// sqlx (lib/pq)
// ---------------------------------------------------------------------------

type sqlxAdapter struct {
	db *sqlx.DB
}

func (s *sqlxAdapter) QueryRow(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowxContext(ctx, query, args...)
}

func (s *sqlxAdapter) Query(ctx context.Context, query string, args ...any) (dbRows, error) {
	return s.db.QueryxContext(ctx, query, args...)
}

func (s *sqlxAdapter) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlxAdapter) Begin(ctx context.Context) (txAdapter, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	return &sqlxTx{tx: tx}, nil
}

func (s *sqlxAdapter) Close() error { return s.db.Close() }

type sqlxTx struct {
	tx *sqlx.Tx
}

func (t *sqlxTx) QueryRow(ctx context.Context, query string, args ...any) rowScanner {
	return t.tx.QueryRowxContext(ctx, query, args...)
}

func (t *sqlxTx) Query(ctx context.Context, query string, args ...any) (dbRows, error) {
	return t.tx.QueryxContext(ctx, query, args...)
}

func (t *sqlxTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqlxTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqlxTx) Rollback(context.Context) error { return t.tx.Rollback() }

// ---------------------------------------------------------------------------
// Driver error classification
// ---------------------------------------------------------------------------

const uniqueViolation = "23505"

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
