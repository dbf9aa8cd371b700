package library

// Book is a catalog entry. Genre is optional.
type Book struct {
	ID            int64   `db:"id" json:"id"`
	Title         string  `db:"title" json:"title"`
	Author        string  `db:"author" json:"author"`
	Genre         *string `db:"genre" json:"genre,omitempty"`
	PublishedYear int     `db:"published_year" json:"published_year"`
	Price         float64 `db:"price" json:"price"`
}

// GenreOrNA returns the genre for display, "N/A" when none was recorded.
func (b *Book) GenreOrNA() string {
	if b.Genre == nil || *b.Genre == "" {
		return "N/A"
	}
	return *b.Genre
}

// Member represents a registered library member.
type Member struct {
	ID        int64  `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Email     string `db:"email" json:"email"`
	Phone     string `db:"phone" json:"phone"`
}

// FullName joins first and last name the way receipts print it.
func (m *Member) FullName() string { return m.FirstName + " " + m.LastName }

// Transaction is a single loan of a book to a member. A nil ReturnDate means
// the book is still out.
type Transaction struct {
	ID         int64    `db:"id" json:"id"`
	BookID     int64    `db:"book_id" json:"book_id"`
	MemberID   int64    `db:"member_id" json:"member_id"`
	IssueDate  Date     `db:"issue_date" json:"issue_date"`
	ReturnDate *Date    `db:"return_date" json:"return_date,omitempty"`
	FineAmount *float64 `db:"fine_amount" json:"fine_amount,omitempty"`
}

// Open reports whether the loan has not been returned yet.
func (t *Transaction) Open() bool { return t.ReturnDate == nil }

// Fine returns the recorded fine, zero when none was written.
func (t *Transaction) Fine() float64 {
	if t.FineAmount == nil {
		return 0
	}
	return *t.FineAmount
}

// LoanDetail is an open transaction joined with the names needed for display.
type LoanDetail struct {
	ID         int64  `db:"id"`
	BookID     int64  `db:"book_id"`
	MemberID   int64  `db:"member_id"`
	IssueDate  Date   `db:"issue_date"`
	BookTitle  string `db:"book_title"`
	MemberName string `db:"member_name"`
}

// Receipt is what Issue and Return hand back to the caller.
type Receipt struct {
	Transaction Transaction `json:"transaction"`
	BookTitle   string      `json:"book_title"`
	MemberName  string      `json:"member_name"`
	Fine        float64     `json:"fine"`
}

// Transaction statuses shown in the history report.
const (
	StatusIssued   = "Issued"
	StatusReturned = "Returned"
)

// TransactionView is one row of the transaction history report.
type TransactionView struct {
	ID         int64    `db:"id" json:"id"`
	BookTitle  string   `db:"book_title" json:"book_title"`
	MemberName string   `db:"member_name" json:"member_name"`
	IssueDate  Date     `db:"issue_date" json:"issue_date"`
	ReturnDate *Date    `db:"return_date" json:"return_date,omitempty"`
	FineAmount *float64 `db:"fine_amount" json:"fine_amount,omitempty"`
}

// Status derives the display status from the return date.
func (v *TransactionView) Status() string {
	if v.ReturnDate == nil {
		return StatusIssued
	}
	return StatusReturned
}

// BookPopularity counts how often a book has been issued.
type BookPopularity struct {
	Title       string `db:"title" json:"title"`
	Author      string `db:"author" json:"author"`
	TimesIssued int    `db:"times_issued" json:"times_issued"`
}

// NewBook carries the fields collected when adding a book to the catalog.
type NewBook struct {
	Title         string  `json:"title" validate:"required"`
	Author        string  `json:"author" validate:"required"`
	Genre         string  `json:"genre"`
	PublishedYear int     `json:"published_year" validate:"publishyear"`
	Price         float64 `json:"price" validate:"gt=0"`
}

// NewMember carries the fields collected when registering a member.
type NewMember struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,emailshape"`
	Phone     string `json:"phone" validate:"required,number,min=10"`
}
