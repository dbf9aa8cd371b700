package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"library-ledger/library"
	"library-ledger/logger"
	"library-ledger/render"
)

var (
	bookColumns   = []string{"title", "author", "published_year", "price"}
	memberColumns = []string{"first_name", "last_name", "email", "phone"}
)

// record is one CSV data row addressed by header name.
type record struct {
	line   int
	fields map[string]string
}

func (r record) get(col string) string { return strings.TrimSpace(r.fields[col]) }

// readRecords reads a CSV document whose first row names the columns. Every
// column in required must be present; extra columns are ignored.
func readRecords(r io.Reader, required []string) ([]record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	var out []record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		rec := record{line: line, fields: make(map[string]string, len(index))}
		for col, i := range index {
			if i < len(row) {
				rec.fields[col] = row[i]
			}
		}
		out = append(out, rec)
	}
}

// bookFromRecord converts a row into a NewBook. Year and price use the same
// parsing as the interactive menu.
func bookFromRecord(val *library.Validator, rec record) (library.NewBook, error) {
	year, err := val.Year(rec.get("published_year"))
	if err != nil {
		return library.NewBook{}, err
	}
	price, err := val.Price(rec.get("price"))
	if err != nil {
		return library.NewBook{}, err
	}
	return library.NewBook{
		Title:         rec.get("title"),
		Author:        rec.get("author"),
		Genre:         rec.get("genre"),
		PublishedYear: year,
		Price:         price,
	}, nil
}

func memberFromRecord(rec record) library.NewMember {
	return library.NewMember{
		FirstName: rec.get("first_name"),
		LastName:  rec.get("last_name"),
		Email:     rec.get("email"),
		Phone:     rec.get("phone"),
	}
}

// importer seeds the catalog through the manager so every row passes the
// same validation as the menu.
type importer struct {
	mgr *library.LibraryManager
	out io.Writer
	log *logger.Logger
}

// summary counts the outcome of one import run.
type summary struct {
	Succeeded int
	Failed    int
}

func (s *summary) record(err error) {
	if err != nil {
		s.Failed++
		return
	}
	s.Succeeded++
}

func (im *importer) importBooks(ctx context.Context, r io.Reader) (summary, error) {
	var s summary
	recs, err := readRecords(r, bookColumns)
	if err != nil {
		return s, fmt.Errorf("books: %w", err)
	}

	val := im.mgr.Validator()
	for _, rec := range recs {
		fmt.Fprintf(im.out, "Importing: %s by %s... ", rec.get("title"), rec.get("author"))
		b, err := bookFromRecord(val, rec)
		var id int64
		if err == nil {
			id, err = im.mgr.AddBook(ctx, b)
		}
		im.report(rec, "book", id, err)
		s.record(err)
		if isFatal(err) {
			return s, err
		}
	}
	return s, nil
}

func (im *importer) importMembers(ctx context.Context, r io.Reader) (summary, error) {
	var s summary
	recs, err := readRecords(r, memberColumns)
	if err != nil {
		return s, fmt.Errorf("members: %w", err)
	}

	for _, rec := range recs {
		m := memberFromRecord(rec)
		fmt.Fprintf(im.out, "Importing: %s %s <%s>... ", m.FirstName, m.LastName, m.Email)
		id, err := im.mgr.AddMember(ctx, m)
		im.report(rec, "member", id, err)
		s.record(err)
		if isFatal(err) {
			return s, err
		}
	}
	return s, nil
}

func (im *importer) report(rec record, kind string, id int64, err error) {
	if err != nil {
		fmt.Fprintf(im.out, "FAILED: %s\n", render.ErrorText(err))
		im.log.WithError(err).Warn("row rejected", "kind", kind, "line", rec.line)
		return
	}
	fmt.Fprintf(im.out, "OK (ID %d)\n", id)
	im.log.Debug("row imported", "kind", kind, "line", rec.line, "id", id)
}

// isFatal reports errors that make the remaining rows pointless to try.
func isFatal(err error) bool {
	return errors.Is(err, library.ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
