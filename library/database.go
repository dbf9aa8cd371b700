package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// Database is the SQLite implementation of Gateway.
type Database struct {
	db *sqlx.DB

	addBookStmt   *sqlx.Stmt
	addMemberStmt *sqlx.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Immediate transactions take the write lock at BEGIN, which serializes
	// the check-then-write sequences of Issue and Return across connections.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", dbPath)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.addBookStmt != nil {
		d.addBookStmt.Close()
	}
	if d.addMemberStmt != nil {
		d.addMemberStmt.Close()
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sqlx.DB) error {
	// WAL lets readers proceed while a loan is being written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            genre TEXT,
            published_year INTEGER NOT NULL,
            price REAL NOT NULL CHECK (price > 0)
        );`,
		`CREATE TABLE IF NOT EXISTS members (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            first_name TEXT NOT NULL,
            last_name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            phone TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS transactions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL REFERENCES books(id),
            member_id INTEGER NOT NULL REFERENCES members(id),
            issue_date TEXT NOT NULL,
            return_date TEXT,
            fine_amount REAL CHECK (fine_amount IS NULL OR fine_amount >= 0)
        );`,
		// At most one open loan per book.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_transactions_open_book
            ON transactions(book_id) WHERE return_date IS NULL;`,
		`CREATE INDEX IF NOT EXISTS ix_transactions_open_member
            ON transactions(member_id) WHERE return_date IS NULL;`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.addBookStmt, err = d.db.Preparex(`INSERT INTO books(title,author,genre,published_year,price) VALUES(?,?,?,?,?)`); err != nil {
		return err
	}
	if d.addMemberStmt, err = d.db.Preparex(`INSERT INTO members(first_name,last_name,email,phone) VALUES(?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

const (
	selectBook   = `SELECT id,title,author,genre,published_year,price FROM books`
	selectMember = `SELECT id,first_name,last_name,email,phone FROM members`
)

// AddBook inserts a catalog entry. An empty genre is stored as NULL.
func (d *Database) AddBook(ctx context.Context, b NewBook) (int64, error) {
	var genre sql.NullString
	if g := strings.TrimSpace(b.Genre); g != "" {
		genre = sql.NullString{String: g, Valid: true}
	}
	res, err := d.addBookStmt.ExecContext(ctx, b.Title, b.Author, genre, b.PublishedYear, b.Price)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AddMember registers a member. A duplicate email yields ErrEmailTaken.
func (d *Database) AddMember(ctx context.Context, m NewMember) (int64, error) {
	res, err := d.addMemberStmt.ExecContext(ctx, m.FirstName, m.LastName, m.Email, m.Phone)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrEmailTaken.WithCause(err)
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (d *Database) GetBook(ctx context.Context, id int64) (*Book, error) {
	return getBook(ctx, d.db, id)
}

func (d *Database) GetMember(ctx context.Context, id int64) (*Member, error) {
	return getMember(ctx, d.db, id)
}

// ListBooks returns all books ordered by title.
func (d *Database) ListBooks(ctx context.Context) ([]Book, error) {
	books := []Book{}
	if err := d.db.SelectContext(ctx, &books, selectBook+` ORDER BY title, id`); err != nil {
		return nil, err
	}
	return books, nil
}

// SearchBooks matches keyword as a substring of title or author.
func (d *Database) SearchBooks(ctx context.Context, keyword string) ([]Book, error) {
	if strings.TrimSpace(keyword) == "" {
		return []Book{}, nil
	}
	pattern := "%" + escapeLike(strings.TrimSpace(keyword)) + "%"
	books := []Book{}
	err := d.db.SelectContext(ctx, &books,
		selectBook+` WHERE title LIKE ? ESCAPE '\' OR author LIKE ? ESCAPE '\' ORDER BY title, id`,
		pattern, pattern)
	if err != nil {
		return nil, err
	}
	return books, nil
}

// ListMembers returns all members ordered by last then first name.
func (d *Database) ListMembers(ctx context.Context) ([]Member, error) {
	members := []Member{}
	if err := d.db.SelectContext(ctx, &members, selectMember+` ORDER BY last_name, first_name, id`); err != nil {
		return nil, err
	}
	return members, nil
}

// ListTransactions returns the loan history, newest issue first.
func (d *Database) ListTransactions(ctx context.Context) ([]TransactionView, error) {
	rows := []TransactionView{}
	err := d.db.SelectContext(ctx, &rows, `
        SELECT t.id, b.title AS book_title,
               m.first_name || ' ' || m.last_name AS member_name,
               t.issue_date, t.return_date, t.fine_amount
        FROM transactions t
        JOIN books b ON t.book_id = b.id
        JOIN members m ON t.member_id = m.id
        ORDER BY t.issue_date DESC, t.id DESC`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MostIssuedBooks ranks books by how many loans they have had.
func (d *Database) MostIssuedBooks(ctx context.Context, limit int) ([]BookPopularity, error) {
	rows := []BookPopularity{}
	err := d.db.SelectContext(ctx, &rows, `
        SELECT b.title, b.author, COUNT(t.id) AS times_issued
        FROM transactions t
        JOIN books b ON t.book_id = b.id
        GROUP BY t.book_id, b.title, b.author
        ORDER BY times_issued DESC, b.title
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Loan transactions
// ---------------------------------------------------------------------------

// InTx runs fn inside one immediate SQLite transaction.
func (d *Database) InTx(ctx context.Context, fn func(LoanStore) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&loanStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// loanStore implements LoanStore on an open SQLite transaction.
type loanStore struct {
	tx *sqlx.Tx
}

func (s *loanStore) FindBookByID(ctx context.Context, id int64) (*Book, error) {
	return getBook(ctx, s.tx, id)
}

func (s *loanStore) FindMemberByID(ctx context.Context, id int64) (*Member, error) {
	return getMember(ctx, s.tx, id)
}

func (s *loanStore) CountOpenLoans(ctx context.Context, memberID int64) (int, error) {
	var n int
	err := s.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM transactions WHERE member_id=? AND return_date IS NULL`, memberID)
	return n, err
}

func (s *loanStore) HasOpenLoan(ctx context.Context, bookID int64) (bool, error) {
	var exists bool
	err := s.tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM transactions WHERE book_id=? AND return_date IS NULL)`, bookID)
	return exists, err
}

func (s *loanStore) InsertLoan(ctx context.Context, bookID, memberID int64, issueDate Date) (*Transaction, error) {
	res, err := s.tx.ExecContext(ctx, `INSERT INTO transactions(book_id,member_id,issue_date) VALUES(?,?,?)`, bookID, memberID, issueDate)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyIssued.WithCause(err)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Transaction{ID: id, BookID: bookID, MemberID: memberID, IssueDate: issueDate}, nil
}

func (s *loanStore) FindOpenLoan(ctx context.Context, transactionID int64) (*LoanDetail, error) {
	var loan LoanDetail
	err := s.tx.GetContext(ctx, &loan, `
        SELECT t.id, t.book_id, t.member_id, t.issue_date,
               b.title AS book_title,
               m.first_name || ' ' || m.last_name AS member_name
        FROM transactions t
        JOIN books b ON t.book_id = b.id
        JOIN members m ON t.member_id = m.id
        WHERE t.id = ? AND t.return_date IS NULL`, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// CloseLoan only touches a loan that is still open, so a return date is
// never overwritten.
func (s *loanStore) CloseLoan(ctx context.Context, transactionID int64, returnDate Date) (bool, error) {
	res, err := s.tx.ExecContext(ctx, `UPDATE transactions SET return_date=? WHERE id=? AND return_date IS NULL`, returnDate, transactionID)
	return affectedOne(res, err)
}

func (s *loanStore) SetFine(ctx context.Context, transactionID int64, amount float64) (bool, error) {
	res, err := s.tx.ExecContext(ctx, `UPDATE transactions SET fine_amount=? WHERE id=?`, amount, transactionID)
	return affectedOne(res, err)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func getBook(ctx context.Context, q sqlx.QueryerContext, id int64) (*Book, error) {
	var b Book
	err := sqlx.GetContext(ctx, q, &b, selectBook+` WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func getMember(ctx context.Context, q sqlx.QueryerContext, id int64) (*Member, error) {
	var m Member
	err := sqlx.GetContext(ctx, q, &m, selectMember+` WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
