package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger/library"
	"library-ledger/logger"
)

const booksCSV = `title,author,genre,published_year,price
Dune,Frank Herbert,Sci-Fi,1965,20
"Emma", Jane Austen,,1815,9.99
Nameless,,Mystery,1999,5
`

const membersCSV = `first_name,last_name,email,phone
Paul,Atreides,paul@arrakis.org,0123456789
Chani,Kynes,paul@arrakis.org,0123456780
`

func newImporter(t *testing.T) (*importer, *bytes.Buffer) {
	mgr, err := library.OpenLibraryManager(filepath.Join(t.TempDir(), "lib.db"), library.DefaultPolicy())
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	var out bytes.Buffer
	log := logger.New(logger.Config{Writer: io.Discard, Format: logger.FormatJSON})
	return &importer{mgr: mgr, out: &out, log: log}, &out
}

func TestReadRecordsByHeader(t *testing.T) {
	recs, err := readRecords(strings.NewReader("Price, Title ,author,published_year,extra\n3.5,Emma,Jane Austen,1815,x\n"), bookColumns)

	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Emma", recs[0].get("title"))
	assert.Equal(t, "3.5", recs[0].get("price"))
	assert.Equal(t, "", recs[0].get("genre"))
	assert.Equal(t, 2, recs[0].line)
}

func TestReadRecordsMissingColumns(t *testing.T) {
	_, err := readRecords(strings.NewReader("title,author\nEmma,Jane Austen\n"), bookColumns)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "published_year, price")
}

func TestReadRecordsEmptyInput(t *testing.T) {
	recs, err := readRecords(strings.NewReader(""), memberColumns)

	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestBookFromRecordParsesNumbers(t *testing.T) {
	val := library.NewValidator(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })

	b, err := bookFromRecord(val, record{fields: map[string]string{
		"title": "Dune", "author": "Frank Herbert", "published_year": " 1965", "price": "20.50",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1965, b.PublishedYear)
	assert.InDelta(t, 20.5, b.Price, 0.001)

	_, err = bookFromRecord(val, record{fields: map[string]string{"published_year": "soon", "price": "1"}})
	assert.ErrorIs(t, err, library.ErrValidation)
}

func TestImportBooksCountsRejectedRows(t *testing.T) {
	im, out := newImporter(t)
	ctx := context.Background()

	s, err := im.importBooks(ctx, strings.NewReader(booksCSV))

	require.NoError(t, err)
	assert.Equal(t, summary{Succeeded: 2, Failed: 1}, s)
	assert.Contains(t, out.String(), "Importing: Dune by Frank Herbert... OK (ID 1)")
	assert.Contains(t, out.String(), "FAILED: author is required.")

	books, err := im.mgr.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Emma", books[1].Title)
	assert.Nil(t, books[1].Genre)
}

func TestImportMembersRejectsDuplicateEmail(t *testing.T) {
	im, out := newImporter(t)

	s, err := im.importMembers(context.Background(), strings.NewReader(membersCSV))

	require.NoError(t, err)
	assert.Equal(t, summary{Succeeded: 1, Failed: 1}, s)
	assert.Contains(t, out.String(), "FAILED: A member with this email already exists.")
}

func TestRunImportsFilesAndPrintsCatalog(t *testing.T) {
	for _, k := range []string{"LIBRARY_DB_DRIVER", "LIBRARY_DB_PATH", "LIBRARY_OUTPUT", "LIBRARY_ENV"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	books := filepath.Join(dir, "books.csv")
	require.NoError(t, os.WriteFile(books, []byte(booksCSV), 0o644))
	dbPath := filepath.Join(dir, "library.db")

	var out, errOut bytes.Buffer
	args := []string{"--books", books, "--db", dbPath, "--env-file", filepath.Join(dir, "none.env"), "--log-level", "error"}

	require.NoError(t, run(args, &out, &errOut))
	assert.Contains(t, out.String(), "Import complete: 2 succeeded, 1 failed")
	assert.Contains(t, out.String(), "Dune")

	out.Reset()
	require.NoError(t, run(append(args, "--reset"), &out, &errOut))
	assert.Contains(t, out.String(), "Database cleanup complete.")
	assert.Contains(t, out.String(), "OK (ID 1)", "ids restart after reset")
}

func TestRunRequiresInput(t *testing.T) {
	err := run(nil, io.Discard, io.Discard)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to import")
}
