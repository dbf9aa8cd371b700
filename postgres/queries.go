package postgres

import (
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"

	"library-ledger/library"
)

const (
	booksTable        = "books"
	membersTable      = "members"
	transactionsTable = "transactions"
)

// pg renders every query with numbered placeholders.
var pg = goqu.Dialect("postgres")

var (
	bookColumns   = []any{"id", "title", "author", "genre", "published_year", "price"}
	memberColumns = []any{"id", "first_name", "last_name", "email", "phone"}
)

func memberNameExpr() exp.LiteralExpression {
	return goqu.L(`"m"."first_name" || ' ' || "m"."last_name"`)
}

func buildInsertBookQuery(b library.NewBook) (string, []any, error) {
	var genre any
	if g := strings.TrimSpace(b.Genre); g != "" {
		genre = g
	}
	return pg.Insert(booksTable).
		Cols("title", "author", "genre", "published_year", "price").
		Vals(goqu.Vals{b.Title, b.Author, genre, b.PublishedYear, b.Price}).
		Returning("id").
		Prepared(true).
		ToSQL()
}

func buildInsertMemberQuery(m library.NewMember) (string, []any, error) {
	return pg.Insert(membersTable).
		Cols("first_name", "last_name", "email", "phone").
		Vals(goqu.Vals{m.FirstName, m.LastName, m.Email, m.Phone}).
		Returning("id").
		Prepared(true).
		ToSQL()
}

// buildSelectBookQuery optionally locks the row so a concurrent writer waits
// until the current transaction finishes.
func buildSelectBookQuery(id int64, lock bool) (string, []any, error) {
	ds := pg.From(booksTable).Select(bookColumns...).Where(goqu.C("id").Eq(id))
	if lock {
		ds = ds.ForShare(exp.Wait)
	}
	return ds.Prepared(true).ToSQL()
}

func buildSelectMemberQuery(id int64, lock bool) (string, []any, error) {
	ds := pg.From(membersTable).Select(memberColumns...).Where(goqu.C("id").Eq(id))
	if lock {
		// Serializes Issue calls for the same member so the loan limit holds.
		ds = ds.ForUpdate(exp.Wait)
	}
	return ds.Prepared(true).ToSQL()
}

func buildListBooksQuery() (string, []any, error) {
	return pg.From(booksTable).Select(bookColumns...).
		Order(goqu.C("title").Asc(), goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
}

// buildSearchBooksQuery matches keyword case-insensitively against title and
// author. LIKE wildcards in keyword are matched literally.
func buildSearchBooksQuery(keyword string) (string, []any, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(keyword)) + "%"
	return pg.From(booksTable).Select(bookColumns...).
		Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
		)).
		Order(goqu.C("title").Asc(), goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
}

func buildListMembersQuery() (string, []any, error) {
	return pg.From(membersTable).Select(memberColumns...).
		Order(goqu.C("last_name").Asc(), goqu.C("first_name").Asc(), goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
}

func buildListTransactionsQuery() (string, []any, error) {
	return pg.From(goqu.T(transactionsTable).As("t")).
		Join(goqu.T(booksTable).As("b"), goqu.On(goqu.I("t.book_id").Eq(goqu.I("b.id")))).
		Join(goqu.T(membersTable).As("m"), goqu.On(goqu.I("t.member_id").Eq(goqu.I("m.id")))).
		Select(
			goqu.I("t.id"),
			goqu.I("b.title").As("book_title"),
			memberNameExpr().As("member_name"),
			goqu.I("t.issue_date"),
			goqu.I("t.return_date"),
			goqu.I("t.fine_amount"),
		).
		Order(goqu.I("t.issue_date").Desc(), goqu.I("t.id").Desc()).
		Prepared(true).
		ToSQL()
}

func buildMostIssuedQuery(limit int) (string, []any, error) {
	return pg.From(goqu.T(transactionsTable).As("t")).
		Join(goqu.T(booksTable).As("b"), goqu.On(goqu.I("t.book_id").Eq(goqu.I("b.id")))).
		Select(
			goqu.I("b.title"),
			goqu.I("b.author"),
			goqu.COUNT(goqu.I("t.id")).As("times_issued"),
		).
		GroupBy(goqu.I("t.book_id"), goqu.I("b.title"), goqu.I("b.author")).
		Order(goqu.C("times_issued").Desc(), goqu.I("b.title").Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
}

func buildCountOpenLoansQuery(memberID int64) (string, []any, error) {
	return pg.From(transactionsTable).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("member_id").Eq(memberID), goqu.C("return_date").IsNull()).
		Prepared(true).
		ToSQL()
}

func buildHasOpenLoanQuery(bookID int64) (string, []any, error) {
	return pg.From(transactionsTable).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("book_id").Eq(bookID), goqu.C("return_date").IsNull()).
		Prepared(true).
		ToSQL()
}

func buildInsertLoanQuery(bookID, memberID int64, issueDate library.Date) (string, []any, error) {
	return pg.Insert(transactionsTable).
		Cols("book_id", "member_id", "issue_date").
		Vals(goqu.Vals{bookID, memberID, issueDate.String()}).
		Returning("id").
		Prepared(true).
		ToSQL()
}

// buildFindOpenLoanQuery locks the loan row so two returns of the same loan
// cannot both observe it open.
func buildFindOpenLoanQuery(transactionID int64) (string, []any, error) {
	return pg.From(goqu.T(transactionsTable).As("t")).
		Join(goqu.T(booksTable).As("b"), goqu.On(goqu.I("t.book_id").Eq(goqu.I("b.id")))).
		Join(goqu.T(membersTable).As("m"), goqu.On(goqu.I("t.member_id").Eq(goqu.I("m.id")))).
		Select(
			goqu.I("t.id"),
			goqu.I("t.book_id"),
			goqu.I("t.member_id"),
			goqu.I("t.issue_date"),
			goqu.I("b.title").As("book_title"),
			memberNameExpr().As("member_name"),
		).
		Where(goqu.I("t.id").Eq(transactionID), goqu.I("t.return_date").IsNull()).
		ForUpdate(exp.Wait, goqu.T("t")).
		Prepared(true).
		ToSQL()
}

func buildCloseLoanQuery(transactionID int64, returnDate library.Date) (string, []any, error) {
	return pg.Update(transactionsTable).
		Set(goqu.Record{"return_date": returnDate.String()}).
		Where(goqu.C("id").Eq(transactionID), goqu.C("return_date").IsNull()).
		Prepared(true).
		ToSQL()
}

func buildSetFineQuery(transactionID int64, amount float64) (string, []any, error) {
	return pg.Update(transactionsTable).
		Set(goqu.Record{"fine_amount": amount}).
		Where(goqu.C("id").Eq(transactionID)).
		Prepared(true).
		ToSQL()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
