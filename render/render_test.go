package render

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger/library"
)

func ptr[T any](v T) *T { return &v }

func TestPrinterBooksTable(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, FormatTable)

	p.Books([]library.Book{
		{ID: 1, Title: "Dune", Author: "Frank Herbert", Genre: ptr("Sci-Fi"), PublishedYear: 1965, Price: 20},
		{ID: 2, Title: "A Very Long Title That Will Not Fit The Column", Author: "Someone", PublishedYear: 2001, Price: 7.5},
	})

	require.NoError(t, p.Err())
	out := buf.String()
	assert.Contains(t, out, "Books in Library")
	assert.Contains(t, out, "Sci-Fi")
	assert.Contains(t, out, "N/A", "missing genre")
	assert.Contains(t, out, "$20.00")
	assert.Contains(t, out, "A Very Long Title That...")
	assert.NotContains(t, out, "Will Not Fit")
}

func TestPrinterEmptyLists(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, FormatTable)

	p.Books(nil)
	p.Members(nil)
	p.Transactions(nil)
	p.Popular(5, nil)
	p.SearchResults("zzz", nil)

	out := buf.String()
	assert.Contains(t, out, "No books found.")
	assert.Contains(t, out, "No members found.")
	assert.Contains(t, out, "No transactions found.")
	assert.Contains(t, out, "No transaction data found.")
	assert.Contains(t, out, "No books found matching 'zzz'.")
}

func TestPrinterReceipts(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, FormatTable)

	p.Issued(&library.Receipt{BookTitle: "Dune", MemberName: "Paul Atreides"})
	p.Returned(&library.Receipt{BookTitle: "Dune", MemberName: "Paul Atreides", Fine: 30})

	assert.Equal(t,
		"Book 'Dune' successfully issued to Paul Atreides.\n"+
			"Book 'Dune' returned by Paul Atreides.\n"+
			"Fine: $30.00\n",
		buf.String())
}

func TestPrinterTransactionsTable(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, FormatTable)
	returned := library.NewDate(2026, 3, 21)

	p.Transactions([]library.TransactionView{
		{ID: 2, BookTitle: "Emma", MemberName: "Ada Lovelace", IssueDate: library.NewDate(2026, 3, 5)},
		{ID: 1, BookTitle: "Dune", MemberName: "Paul Atreides", IssueDate: library.NewDate(2026, 3, 1), ReturnDate: &returned, FineAmount: ptr(30.0)},
	})

	out := buf.String()
	assert.Contains(t, out, "Not returned")
	assert.Contains(t, out, "2026-03-21")
	assert.Contains(t, out, "$30.00")
	assert.Contains(t, out, "$0.00")
	assert.Contains(t, out, library.StatusIssued)
	assert.Contains(t, out, library.StatusReturned)
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, FormatJSON)
	returned := library.NewDate(2026, 3, 21)

	p.Transactions([]library.TransactionView{
		{ID: 1, BookTitle: "Dune", MemberName: "Paul Atreides", IssueDate: library.NewDate(2026, 3, 1), ReturnDate: &returned, FineAmount: ptr(30.0)},
	})

	require.NoError(t, p.Err())
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Dune", rows[0]["book_title"])
	assert.Equal(t, "2026-03-01", rows[0]["issue_date"])
	assert.Equal(t, "2026-03-21", rows[0]["return_date"])
	assert.Equal(t, "Returned", rows[0]["status"])
	assert.InDelta(t, 30.0, rows[0]["fine_amount"], 0.0001)
}

func TestPrinterJSONError(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf, FormatJSON)

	p.Error(library.Validation("validation failed", map[string]string{"email": "must contain '@' and '.'"}))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, string(library.KindValidation), doc["kind"])
	assert.Equal(t, map[string]any{"email": "must contain '@' and '.'"}, doc["fields"])
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{library.ErrBookNotFound, "Book ID not found."},
		{library.ErrMemberNotFound, "Member ID not found."},
		{library.ErrOpenTransactionNotFound, "Transaction not found or book already returned."},
		{library.ErrAlreadyIssued, "This book is currently issued and hasn't been returned."},
		{library.ErrLimitExceeded.WithDetails(map[string]int{"open": 5, "max": 5}), "Member has reached maximum limit of 5 books."},
		{library.ErrLimitExceeded, "Member has reached the maximum number of books."},
		{library.ErrEmailTaken, "A member with this email already exists."},
		{library.StoreUnavailable(errors.New("disk I/O error")), "The library database is unavailable. Please try again."},
		{library.Validation("validation failed", map[string]string{"price": "must be greater than 0", "author": "is required"}), "author is required; price must be greater than 0."},
		{errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorText(tt.err))
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestPrinterErrSticks(t *testing.T) {
	p := New(failingWriter{}, FormatTable)

	p.Message("first")
	p.Message("second")

	assert.EqualError(t, p.Err(), "closed pipe")
}
