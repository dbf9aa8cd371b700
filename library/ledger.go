package library

import (
	"context"
	"errors"
	"time"
)

// Observer is told about every committed state change of a loan.
type Observer interface {
	LoanIssued(ctx context.Context, r Receipt)
	LoanReturned(ctx context.Context, r Receipt)
}

type noopObserver struct{}

func (noopObserver) LoanIssued(context.Context, Receipt)   {}
func (noopObserver) LoanReturned(context.Context, Receipt) {}

// Ledger governs the issue/return lifecycle of loans:
//
//	(none) --Issue--> OPEN --Return--> CLOSED
//
// Every operation runs its checks and writes inside one store transaction.
// The ledger neither logs nor prints; callers render the returned Receipt or
// error and may attach an Observer.
type Ledger struct {
	tx       Transactor
	policy   Policy
	now      func() time.Time
	observer Observer
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger) error

// WithClock replaces the system clock.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		l.now = now
		return nil
	}
}

// WithObserver attaches an observer for committed loan changes.
func WithObserver(o Observer) LedgerOption {
	return func(l *Ledger) error {
		if o == nil {
			return errors.New("observer must not be nil")
		}
		l.observer = o
		return nil
	}
}

// NewLedger builds a ledger over tx using policy.
func NewLedger(tx Transactor, policy Policy, opts ...LedgerOption) (*Ledger, error) {
	if tx == nil {
		return nil, errors.New("transactor must not be nil")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	l := &Ledger{
		tx:       tx,
		policy:   policy,
		now:      time.Now,
		observer: noopObserver{},
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Policy returns the rules the ledger enforces.
func (l *Ledger) Policy() Policy { return l.policy }

// Today is the current calendar day according to the ledger's clock.
func (l *Ledger) Today() Date { return DateOf(l.now()) }

// Issue lends a book to a member. Checks run in order and the first failure
// wins: unknown book, unknown member, book already out, member at the limit.
func (l *Ledger) Issue(ctx context.Context, bookID, memberID int64) (*Receipt, error) {
	var receipt *Receipt

	err := l.tx.InTx(ctx, func(s LoanStore) error {
		book, err := s.FindBookByID(ctx, bookID)
		if errors.Is(err, ErrRecordNotFound) {
			return ErrBookNotFound
		}
		if err != nil {
			return err
		}

		member, err := s.FindMemberByID(ctx, memberID)
		if errors.Is(err, ErrRecordNotFound) {
			return ErrMemberNotFound
		}
		if err != nil {
			return err
		}

		issued, err := s.HasOpenLoan(ctx, bookID)
		if err != nil {
			return err
		}
		if issued {
			return ErrAlreadyIssued
		}

		open, err := s.CountOpenLoans(ctx, memberID)
		if err != nil {
			return err
		}
		if !l.policy.CanBorrow(open) {
			return ErrLimitExceeded.WithDetails(map[string]int{"open": open, "max": l.policy.MaxBooksPerMember})
		}

		txn, err := s.InsertLoan(ctx, bookID, memberID, l.Today())
		if err != nil {
			return err
		}

		receipt = &Receipt{
			Transaction: *txn,
			BookTitle:   book.Title,
			MemberName:  member.FullName(),
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	l.observer.LoanIssued(ctx, *receipt)
	return receipt, nil
}

// Return closes an open loan and charges the overdue fine. Closing the loan
// and recording the fine commit together or not at all.
func (l *Ledger) Return(ctx context.Context, transactionID int64) (*Receipt, error) {
	var receipt *Receipt

	err := l.tx.InTx(ctx, func(s LoanStore) error {
		loan, err := s.FindOpenLoan(ctx, transactionID)
		if errors.Is(err, ErrRecordNotFound) {
			return ErrOpenTransactionNotFound
		}
		if err != nil {
			return err
		}

		today := l.Today()
		fine := l.policy.Fine(loan.IssueDate, today)

		closed, err := s.CloseLoan(ctx, transactionID, today)
		if err != nil {
			return err
		}
		if !closed {
			return ErrOpenTransactionNotFound
		}

		txn := Transaction{
			ID:         loan.ID,
			BookID:     loan.BookID,
			MemberID:   loan.MemberID,
			IssueDate:  loan.IssueDate,
			ReturnDate: &today,
		}

		if fine > 0 {
			ok, err := s.SetFine(ctx, transactionID, fine)
			if err != nil {
				return err
			}
			if !ok {
				return ErrOpenTransactionNotFound
			}
			txn.FineAmount = &fine
		}

		receipt = &Receipt{
			Transaction: txn,
			BookTitle:   loan.BookTitle,
			MemberName:  loan.MemberName,
			Fine:        fine,
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	l.observer.LoanReturned(ctx, *receipt)
	return receipt, nil
}
