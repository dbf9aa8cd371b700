package library

import (
	"errors"
	"math"
)

var (
	// ErrNegativeFineRate is returned when the fine rate is below zero.
	ErrNegativeFineRate = errors.New("fine rate per day must not be negative")

	// ErrNegativeGracePeriod is returned when the grace period is below zero.
	ErrNegativeGracePeriod = errors.New("grace period days must not be negative")

	// ErrInvalidLoanLimit is returned when the loan limit is not positive.
	ErrInvalidLoanLimit = errors.New("max books per member must be at least 1")
)

// Policy holds the borrowing rules. It is fixed for the life of a Ledger.
type Policy struct {
	FineRatePerDay    float64
	GracePeriodDays   int
	MaxBooksPerMember int
}

// DefaultPolicy mirrors the stock configuration: 5.00 per day after 14 days,
// at most 5 books out per member.
func DefaultPolicy() Policy {
	return Policy{FineRatePerDay: 5.0, GracePeriodDays: 14, MaxBooksPerMember: 5}
}

// Validate rejects rules the ledger cannot apply.
func (p Policy) Validate() error {
	switch {
	case p.FineRatePerDay < 0 || math.IsNaN(p.FineRatePerDay):
		return ErrNegativeFineRate
	case p.GracePeriodDays < 0:
		return ErrNegativeGracePeriod
	case p.MaxBooksPerMember < 1:
		return ErrInvalidLoanLimit
	}
	return nil
}

// OverdueDays is the number of chargeable days for a loan that lasted elapsed
// days. The grace period itself is free, so elapsed == grace yields zero.
func (p Policy) OverdueDays(elapsed int) int {
	return max(0, elapsed-p.GracePeriodDays)
}

// Fine computes the amount owed for a loan issued on issued and returned on
// returned, rounded to cents.
func (p Policy) Fine(issued, returned Date) float64 {
	overdue := p.OverdueDays(returned.DaysSince(issued))
	if overdue == 0 {
		return 0
	}
	return math.Round(float64(overdue)*p.FineRatePerDay*100) / 100
}

// CanBorrow reports whether a member holding open loans may take one more.
func (p Policy) CanBorrow(open int) bool {
	return open < p.MaxBooksPerMember
}
