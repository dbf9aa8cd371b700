package library

import (
	"context"
	"errors"
	"strings"
)

// DefaultTopBooks is the size of the most-issued report when none is given.
const DefaultTopBooks = 5

// LibraryManager is a thin façade over the Gateway and the Ledger, keeping
// command code simple. It validates input before anything reaches the store.
type LibraryManager struct {
	gw        Gateway
	ledger    *Ledger
	validator *Validator
}

// NewLibraryManager wires a manager from already constructed parts.
func NewLibraryManager(gw Gateway, ledger *Ledger, validator *Validator) (*LibraryManager, error) {
	if gw == nil || ledger == nil || validator == nil {
		return nil, errors.New("gateway, ledger and validator are required")
	}
	return &LibraryManager{gw: gw, ledger: ledger, validator: validator}, nil
}

// OpenLibraryManager opens (or creates) the SQLite database at dbPath and
// builds a manager enforcing policy.
func OpenLibraryManager(dbPath string, policy Policy, opts ...LedgerOption) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	ledger, err := NewLedger(db, policy, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &LibraryManager{gw: db, ledger: ledger, validator: NewValidator(ledger.now)}, nil
}

// Close closes the underlying gateway.
func (lm *LibraryManager) Close() error { return lm.gw.Close() }

// Ledger exposes the loan ledger.
func (lm *LibraryManager) Ledger() *Ledger { return lm.ledger }

// Validator exposes the input validator used by the manager.
func (lm *LibraryManager) Validator() *Validator { return lm.validator }

// ------------------ Book helpers ------------------

// AddBook validates and stores a new book.
func (lm *LibraryManager) AddBook(ctx context.Context, b NewBook) (int64, error) {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.Genre = strings.TrimSpace(b.Genre)
	if err := lm.validator.Struct(b); err != nil {
		return 0, err
	}
	id, err := lm.gw.AddBook(ctx, b)
	return id, storeErr(err)
}

// GetBook fetches a single book, ErrBookNotFound when absent.
func (lm *LibraryManager) GetBook(ctx context.Context, id int64) (*Book, error) {
	b, err := lm.gw.GetBook(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrBookNotFound
	}
	return b, storeErr(err)
}

func (lm *LibraryManager) ListBooks(ctx context.Context) ([]Book, error) {
	books, err := lm.gw.ListBooks(ctx)
	return books, storeErr(err)
}

// SearchBooks looks for keyword in titles and authors.
func (lm *LibraryManager) SearchBooks(ctx context.Context, keyword string) ([]Book, error) {
	if err := lm.validator.Required("keyword", keyword); err != nil {
		return nil, err
	}
	books, err := lm.gw.SearchBooks(ctx, strings.TrimSpace(keyword))
	return books, storeErr(err)
}

// ------------------ Member helpers ------------------

// AddMember validates and registers a member.
func (lm *LibraryManager) AddMember(ctx context.Context, m NewMember) (int64, error) {
	m.FirstName = strings.TrimSpace(m.FirstName)
	m.LastName = strings.TrimSpace(m.LastName)
	m.Email = strings.TrimSpace(m.Email)
	m.Phone = strings.TrimSpace(m.Phone)
	if err := lm.validator.Struct(m); err != nil {
		return 0, err
	}
	id, err := lm.gw.AddMember(ctx, m)
	return id, storeErr(err)
}

// GetMember fetches a single member, ErrMemberNotFound when absent.
func (lm *LibraryManager) GetMember(ctx context.Context, id int64) (*Member, error) {
	m, err := lm.gw.GetMember(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	return m, storeErr(err)
}

func (lm *LibraryManager) ListMembers(ctx context.Context) ([]Member, error) {
	members, err := lm.gw.ListMembers(ctx)
	return members, storeErr(err)
}

// ------------------ Circulation ------------------

// IssueBook lends bookID to memberID.
func (lm *LibraryManager) IssueBook(ctx context.Context, bookID, memberID int64) (*Receipt, error) {
	return lm.ledger.Issue(ctx, bookID, memberID)
}

// ReturnBook closes the transaction and reports the fine charged.
func (lm *LibraryManager) ReturnBook(ctx context.Context, transactionID int64) (*Receipt, error) {
	return lm.ledger.Return(ctx, transactionID)
}

// ------------------ Reports ------------------

func (lm *LibraryManager) ListTransactions(ctx context.Context) ([]TransactionView, error) {
	rows, err := lm.gw.ListTransactions(ctx)
	return rows, storeErr(err)
}

// MostIssuedBooks returns the top books by loan count. A non-positive limit
// falls back to DefaultTopBooks.
func (lm *LibraryManager) MostIssuedBooks(ctx context.Context, limit int) ([]BookPopularity, error) {
	if limit <= 0 {
		limit = DefaultTopBooks
	}
	rows, err := lm.gw.MostIssuedBooks(ctx, limit)
	return rows, storeErr(err)
}
