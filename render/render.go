// Package render prints catalog and ledger results as fixed-width tables or
// JSON documents. It holds no business rules.
package render

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"library-ledger/library"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Printer writes results to w. The first write error sticks and is reported
// by Err; later calls become no-ops.
type Printer struct {
	w      io.Writer
	format string
	err    error
}

// New returns a Printer for format. Anything other than "json" prints tables.
func New(w io.Writer, format string) *Printer {
	if format != FormatJSON {
		format = FormatTable
	}
	return &Printer{w: w, format: format}
}

// Err returns the first error encountered while writing.
func (p *Printer) Err() error { return p.err }

// JSON reports whether the printer emits JSON documents.
func (p *Printer) JSON() bool { return p.format == FormatJSON }

func (p *Printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) rule(n int) { p.printf("%s\n", strings.Repeat("-", n)) }

func (p *Printer) encode(v any) {
	if p.err != nil {
		return
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	p.err = enc.Encode(v)
}

// Message prints a plain informational line.
func (p *Printer) Message(format string, args ...any) {
	if p.JSON() {
		p.encode(map[string]string{"message": fmt.Sprintf(format, args...)})
		return
	}
	p.printf(format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// BookAdded confirms a new catalog entry.
func (p *Printer) BookAdded(id int64) {
	if p.JSON() {
		p.encode(map[string]any{"status": "created", "book_id": id})
		return
	}
	p.printf("Book added successfully (ID %d).\n", id)
}

// MemberAdded confirms a new member.
func (p *Printer) MemberAdded(id int64) {
	if p.JSON() {
		p.encode(map[string]any{"status": "created", "member_id": id})
		return
	}
	p.printf("Member added successfully (ID %d).\n", id)
}

// Books prints the full catalog.
func (p *Printer) Books(books []library.Book) {
	if p.JSON() {
		p.encode(books)
		return
	}
	if len(books) == 0 {
		p.printf("No books found.\n")
		return
	}
	p.printf("\nBooks in Library\n")
	p.bookTable(books)
}

// SearchResults prints the books matching keyword.
func (p *Printer) SearchResults(keyword string, books []library.Book) {
	if p.JSON() {
		p.encode(map[string]any{"keyword": keyword, "books": books})
		return
	}
	if len(books) == 0 {
		p.printf("No books found matching '%s'.\n", keyword)
		return
	}
	p.printf("\nSearch Results for '%s'\n", keyword)
	p.bookTable(books)
}

func (p *Printer) bookTable(books []library.Book) {
	p.rule(80)
	p.printf("%-4s %-25s %-20s %-15s %-6s %-8s\n", "ID", "Title", "Author", "Genre", "Year", "Price")
	p.rule(80)
	for _, b := range books {
		p.printf("%-4d %-25s %-20s %-15s %-6d $%-8.2f\n",
			b.ID,
			truncateString(b.Title, 25),
			truncateString(b.Author, 20),
			truncateString(b.GenreOrNA(), 15),
			b.PublishedYear,
			b.Price)
	}
}

// Members prints the member list.
func (p *Printer) Members(members []library.Member) {
	if p.JSON() {
		p.encode(members)
		return
	}
	if len(members) == 0 {
		p.printf("No members found.\n")
		return
	}
	p.printf("\nLibrary Members\n")
	p.rule(70)
	p.printf("%-4s %-25s %-25s %-15s\n", "ID", "Name", "Email", "Phone")
	p.rule(70)
	for _, m := range members {
		p.printf("%-4d %-25s %-25s %-15s\n",
			m.ID,
			truncateString(m.FullName(), 25),
			truncateString(m.Email, 25),
			truncateString(m.Phone, 15))
	}
}

// ---------------------------------------------------------------------------
// Ledger
// ---------------------------------------------------------------------------

// Issued confirms a loan.
func (p *Printer) Issued(r *library.Receipt) {
	if p.JSON() {
		p.encode(r)
		return
	}
	p.printf("Book '%s' successfully issued to %s.\n", r.BookTitle, r.MemberName)
}

// Returned confirms a return together with the fine charged.
func (p *Printer) Returned(r *library.Receipt) {
	if p.JSON() {
		p.encode(r)
		return
	}
	p.printf("Book '%s' returned by %s.\n", r.BookTitle, r.MemberName)
	p.printf("Fine: $%.2f\n", r.Fine)
}

// Transactions prints the loan history.
func (p *Printer) Transactions(views []library.TransactionView) {
	if p.JSON() {
		type row struct {
			library.TransactionView
			Status string `json:"status"`
		}
		rows := make([]row, len(views))
		for i, v := range views {
			rows[i] = row{TransactionView: v, Status: v.Status()}
		}
		p.encode(rows)
		return
	}
	if len(views) == 0 {
		p.printf("No transactions found.\n")
		return
	}
	p.printf("\nTransaction History\n")
	p.rule(100)
	p.printf("%-4s %-25s %-20s %-12s %-12s %-8s %-10s\n", "ID", "Book Title", "Member", "Issue Date", "Return Date", "Fine", "Status")
	p.rule(100)
	for _, v := range views {
		returned := "Not returned"
		if v.ReturnDate != nil {
			returned = v.ReturnDate.String()
		}
		fine := 0.0
		if v.FineAmount != nil {
			fine = *v.FineAmount
		}
		p.printf("%-4d %-25s %-20s %-12s %-12s $%-7.2f %-10s\n",
			v.ID,
			truncateString(v.BookTitle, 25),
			truncateString(v.MemberName, 20),
			v.IssueDate.String(),
			returned,
			fine,
			v.Status())
	}
}

// Popular prints the most issued books.
func (p *Printer) Popular(limit int, rows []library.BookPopularity) {
	if p.JSON() {
		p.encode(rows)
		return
	}
	if len(rows) == 0 {
		p.printf("No transaction data found.\n")
		return
	}
	p.printf("\nTop %d Most Issued Books\n", limit)
	p.rule(60)
	p.printf("%-30s %-20s %-12s\n", "Title", "Author", "Times Issued")
	p.rule(60)
	for _, r := range rows {
		p.printf("%-30s %-20s %-12d\n", truncateString(r.Title, 30), truncateString(r.Author, 20), r.TimesIssued)
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Error prints err as a single user-facing line.
func (p *Printer) Error(err error) {
	if p.JSON() {
		doc := map[string]any{"error": ErrorText(err)}
		var domainErr *library.Error
		if errors.As(err, &domainErr) {
			doc["kind"] = domainErr.Kind
			if domainErr.Reason != "" {
				doc["reason"] = domainErr.Reason
			}
			if fields := library.FieldErrors(err); fields != nil {
				doc["fields"] = fields
			}
		}
		p.encode(doc)
		return
	}
	p.printf("Error: %s\n", ErrorText(err))
}

// ErrorText maps an error to the text shown to the user.
func ErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, library.ErrBookNotFound):
		return "Book ID not found."
	case errors.Is(err, library.ErrMemberNotFound):
		return "Member ID not found."
	case errors.Is(err, library.ErrOpenTransactionNotFound):
		return "Transaction not found or book already returned."
	case errors.Is(err, library.ErrAlreadyIssued):
		return "This book is currently issued and hasn't been returned."
	case errors.Is(err, library.ErrLimitExceeded):
		return limitText(err)
	case errors.Is(err, library.ErrEmailTaken):
		return "A member with this email already exists."
	case errors.Is(err, library.ErrValidation):
		return validationText(err)
	case errors.Is(err, library.ErrStoreUnavailable):
		return "The library database is unavailable. Please try again."
	default:
		return err.Error()
	}
}

func limitText(err error) string {
	var domainErr *library.Error
	if errors.As(err, &domainErr) {
		if d, ok := domainErr.Details.(map[string]int); ok {
			if limit, ok := d["max"]; ok {
				return fmt.Sprintf("Member has reached maximum limit of %d books.", limit)
			}
		}
	}
	return "Member has reached the maximum number of books."
}

func validationText(err error) string {
	fields := library.FieldErrors(err)
	if len(fields) == 0 {
		return "Invalid input."
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = strings.ReplaceAll(name, "_", " ") + " " + fields[name]
	}
	return strings.Join(parts, "; ") + "."
}

func truncateString(s string, maxLength int) string {
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	return string(r[:maxLength-3]) + "..."
}
