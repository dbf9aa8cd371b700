// Package postgres is the PostgreSQL backend of the library catalog. It runs
// on either a pgx connection pool or a database/sql handle opened through
// lib/pq and wrapped in sqlx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"library-ledger/library"
)

// Logger receives the SQL the gateway executes at debug level.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrNilLogger             = errors.New("logger must not be nil")
	ErrUnknownClient         = errors.New("unknown postgres client")
)

// Option configures a Gateway.
type Option func(*Gateway) error

// WithLogger routes query tracing to logger.
func WithLogger(logger Logger) Option {
	return func(g *Gateway) error {
		if logger == nil {
			return ErrNilLogger
		}
		g.logger = logger
		return nil
	}
}

// Gateway implements library.Gateway on PostgreSQL.
type Gateway struct {
	db     dbAdapter
	logger Logger
}

var _ library.Gateway = (*Gateway)(nil)

// NewGatewayFromPGXPool builds a Gateway on a pgx pool. The pool is closed by
// Gateway.Close.
func NewGatewayFromPGXPool(pool *pgxpool.Pool, opts ...Option) (*Gateway, error) {
	if pool == nil {
		return nil, ErrNilDatabaseConnection
	}
	return newGateway(&pgxAdapter{pool: pool}, opts...)
}

// NewGatewayFromSQLX builds a Gateway on an sqlx handle, typically opened with
// the "postgres" driver from lib/pq.
func NewGatewayFromSQLX(db *sqlx.DB, opts ...Option) (*Gateway, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}
	return newGateway(&sqlxAdapter{db: db}, opts...)
}

func newGateway(db dbAdapter, opts ...Option) (*Gateway, error) {
	g := &Gateway{db: db, logger: nopLogger{}}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Open connects to dsn with the named client ("pgx" or "pq"), pings the
// server and applies the schema.
func Open(ctx context.Context, dsn, client string, opts ...Option) (*Gateway, error) {
	var (
		g   *Gateway
		err error
	)

	switch client {
	case "", "pgx":
		var pool *pgxpool.Pool
		if pool, err = pgxpool.New(ctx, dsn); err != nil {
			return nil, fmt.Errorf("create pgx pool: %w", err)
		}
		if err = pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		g, err = NewGatewayFromPGXPool(pool, opts...)
		if err != nil {
			pool.Close()
			return nil, err
		}
	case "pq":
		var db *sqlx.DB
		if db, err = sqlx.ConnectContext(ctx, "postgres", dsn); err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		g, err = NewGatewayFromSQLX(db, opts...)
		if err != nil {
			db.Close()
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownClient, client)
	}

	if err := g.EnsureSchema(ctx); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

// Close releases the underlying connection pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// AddBook inserts a catalog entry. An empty genre is stored as NULL.
func (g *Gateway) AddBook(ctx context.Context, b library.NewBook) (int64, error) {
	query, args, err := buildInsertBookQuery(b)
	if err != nil {
		return 0, err
	}
	return g.insertReturningID(ctx, g.db, query, args)
}

// AddMember registers a member. A duplicate email yields ErrEmailTaken.
func (g *Gateway) AddMember(ctx context.Context, m library.NewMember) (int64, error) {
	query, args, err := buildInsertMemberQuery(m)
	if err != nil {
		return 0, err
	}
	id, err := g.insertReturningID(ctx, g.db, query, args)
	if err != nil && isUniqueViolation(err) {
		return 0, library.ErrEmailTaken.WithCause(err)
	}
	return id, err
}

func (g *Gateway) GetBook(ctx context.Context, id int64) (*library.Book, error) {
	return g.getBook(ctx, g.db, id, false)
}

func (g *Gateway) GetMember(ctx context.Context, id int64) (*library.Member, error) {
	return g.getMember(ctx, g.db, id, false)
}

func (g *Gateway) ListBooks(ctx context.Context) ([]library.Book, error) {
	query, args, err := buildListBooksQuery()
	if err != nil {
		return nil, err
	}
	return g.queryBooks(ctx, query, args)
}

// SearchBooks matches keyword as a case-insensitive substring of title or
// author.
func (g *Gateway) SearchBooks(ctx context.Context, keyword string) ([]library.Book, error) {
	query, args, err := buildSearchBooksQuery(keyword)
	if err != nil {
		return nil, err
	}
	return g.queryBooks(ctx, query, args)
}

func (g *Gateway) ListMembers(ctx context.Context) ([]library.Member, error) {
	query, args, err := buildListMembersQuery()
	if err != nil {
		return nil, err
	}
	g.trace(query, args)

	rows, err := g.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []library.Member{}
	for rows.Next() {
		var m library.Member
		if err := rows.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email, &m.Phone); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListTransactions returns the loan history, newest issue first.
func (g *Gateway) ListTransactions(ctx context.Context) ([]library.TransactionView, error) {
	query, args, err := buildListTransactionsQuery()
	if err != nil {
		return nil, err
	}
	g.trace(query, args)

	rows, err := g.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := []library.TransactionView{}
	for rows.Next() {
		var v library.TransactionView
		if err := rows.Scan(&v.ID, &v.BookTitle, &v.MemberName, &v.IssueDate, &v.ReturnDate, &v.FineAmount); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (g *Gateway) MostIssuedBooks(ctx context.Context, limit int) ([]library.BookPopularity, error) {
	query, args, err := buildMostIssuedQuery(limit)
	if err != nil {
		return nil, err
	}
	g.trace(query, args)

	rows, err := g.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ranked := []library.BookPopularity{}
	for rows.Next() {
		var p library.BookPopularity
		if err := rows.Scan(&p.Title, &p.Author, &p.TimesIssued); err != nil {
			return nil, err
		}
		ranked = append(ranked, p)
	}
	return ranked, rows.Err()
}

// ---------------------------------------------------------------------------
// Loan transactions
// ---------------------------------------------------------------------------

// InTx runs fn inside one READ COMMITTED transaction. Rows the ledger decides
// on are locked with SELECT ... FOR UPDATE / FOR SHARE.
func (g *Gateway) InTx(ctx context.Context, fn func(library.LoanStore) error) error {
	tx, err := g.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&loanStore{g: g, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type loanStore struct {
	g  *Gateway
	tx txAdapter
}

func (s *loanStore) FindBookByID(ctx context.Context, id int64) (*library.Book, error) {
	return s.g.getBook(ctx, s.tx, id, true)
}

func (s *loanStore) FindMemberByID(ctx context.Context, id int64) (*library.Member, error) {
	return s.g.getMember(ctx, s.tx, id, true)
}

func (s *loanStore) CountOpenLoans(ctx context.Context, memberID int64) (int, error) {
	query, args, err := buildCountOpenLoansQuery(memberID)
	if err != nil {
		return 0, err
	}
	return s.g.count(ctx, s.tx, query, args)
}

func (s *loanStore) HasOpenLoan(ctx context.Context, bookID int64) (bool, error) {
	query, args, err := buildHasOpenLoanQuery(bookID)
	if err != nil {
		return false, err
	}
	n, err := s.g.count(ctx, s.tx, query, args)
	return n > 0, err
}

func (s *loanStore) InsertLoan(ctx context.Context, bookID, memberID int64, issueDate library.Date) (*library.Transaction, error) {
	query, args, err := buildInsertLoanQuery(bookID, memberID, issueDate)
	if err != nil {
		return nil, err
	}
	id, err := s.g.insertReturningID(ctx, s.tx, query, args)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, library.ErrAlreadyIssued.WithCause(err)
		}
		return nil, err
	}
	return &library.Transaction{ID: id, BookID: bookID, MemberID: memberID, IssueDate: issueDate}, nil
}

func (s *loanStore) FindOpenLoan(ctx context.Context, transactionID int64) (*library.LoanDetail, error) {
	query, args, err := buildFindOpenLoanQuery(transactionID)
	if err != nil {
		return nil, err
	}
	s.g.trace(query, args)

	var loan library.LoanDetail
	err = s.tx.QueryRow(ctx, query, args...).Scan(
		&loan.ID, &loan.BookID, &loan.MemberID, &loan.IssueDate, &loan.BookTitle, &loan.MemberName)
	if isNoRows(err) {
		return nil, library.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (s *loanStore) CloseLoan(ctx context.Context, transactionID int64, returnDate library.Date) (bool, error) {
	query, args, err := buildCloseLoanQuery(transactionID, returnDate)
	if err != nil {
		return false, err
	}
	return s.g.execOne(ctx, s.tx, query, args)
}

func (s *loanStore) SetFine(ctx context.Context, transactionID int64, amount float64) (bool, error) {
	query, args, err := buildSetFineQuery(transactionID, amount)
	if err != nil {
		return false, err
	}
	return s.g.execOne(ctx, s.tx, query, args)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (g *Gateway) trace(query string, args []any) {
	g.logger.Debug("postgres query", "sql", query, "args", len(args))
}

func (g *Gateway) getBook(ctx context.Context, q querier, id int64, lock bool) (*library.Book, error) {
	query, args, err := buildSelectBookQuery(id, lock)
	if err != nil {
		return nil, err
	}
	g.trace(query, args)

	var b library.Book
	err = q.QueryRow(ctx, query, args...).Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.PublishedYear, &b.Price)
	if isNoRows(err) {
		return nil, library.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (g *Gateway) getMember(ctx context.Context, q querier, id int64, lock bool) (*library.Member, error) {
	query, args, err := buildSelectMemberQuery(id, lock)
	if err != nil {
		return nil, err
	}
	g.trace(query, args)

	var m library.Member
	err = q.QueryRow(ctx, query, args...).Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email, &m.Phone)
	if isNoRows(err) {
		return nil, library.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (g *Gateway) queryBooks(ctx context.Context, query string, args []any) ([]library.Book, error) {
	g.trace(query, args)

	rows, err := g.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []library.Book{}
	for rows.Next() {
		var b library.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.PublishedYear, &b.Price); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (g *Gateway) insertReturningID(ctx context.Context, q querier, query string, args []any) (int64, error) {
	g.trace(query, args)

	var id int64
	if err := q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (g *Gateway) count(ctx context.Context, q querier, query string, args []any) (int, error) {
	g.trace(query, args)

	var n int
	if err := q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (g *Gateway) execOne(ctx context.Context, q querier, query string, args []any) (bool, error) {
	g.trace(query, args)

	n, err := q.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
