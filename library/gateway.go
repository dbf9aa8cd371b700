package library

import "context"

// LoanStore is the set of reads and writes the ledger runs inside one store
// transaction. Lookups report a missing row as ErrRecordNotFound.
type LoanStore interface {
	FindBookByID(ctx context.Context, id int64) (*Book, error)
	FindMemberByID(ctx context.Context, id int64) (*Member, error)
	CountOpenLoans(ctx context.Context, memberID int64) (int, error)
	HasOpenLoan(ctx context.Context, bookID int64) (bool, error)
	InsertLoan(ctx context.Context, bookID, memberID int64, issueDate Date) (*Transaction, error)
	FindOpenLoan(ctx context.Context, transactionID int64) (*LoanDetail, error)
	CloseLoan(ctx context.Context, transactionID int64, returnDate Date) (bool, error)
	SetFine(ctx context.Context, transactionID int64, amount float64) (bool, error)
}

// Transactor runs fn against a LoanStore bound to a single store transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(LoanStore) error) error
}

// Catalog covers the plain CRUD and reporting queries.
type Catalog interface {
	AddBook(ctx context.Context, b NewBook) (int64, error)
	AddMember(ctx context.Context, m NewMember) (int64, error)
	GetBook(ctx context.Context, id int64) (*Book, error)
	GetMember(ctx context.Context, id int64) (*Member, error)
	ListBooks(ctx context.Context) ([]Book, error)
	SearchBooks(ctx context.Context, keyword string) ([]Book, error)
	ListMembers(ctx context.Context) ([]Member, error)
	ListTransactions(ctx context.Context) ([]TransactionView, error)
	MostIssuedBooks(ctx context.Context, limit int) ([]BookPopularity, error)
}

// Gateway is a complete persistence backend.
type Gateway interface {
	Catalog
	Transactor
	Close() error
}
