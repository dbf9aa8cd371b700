package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger/library"
)

// testEnv runs commands against one SQLite database in a temp dir with a
// movable clock.
type testEnv struct {
	t   *testing.T
	dir string
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	for _, k := range []string{
		"LIBRARY_FINE_RATE_PER_DAY", "LIBRARY_GRACE_PERIOD_DAYS", "LIBRARY_MAX_BOOKS_PER_MEMBER",
		"LIBRARY_DB_DRIVER", "LIBRARY_DB_PATH", "LIBRARY_OUTPUT", "LIBRARY_LOG_FILE", "LIBRARY_ENV",
	} {
		t.Setenv(k, "")
	}
	return &testEnv{t: t, dir: t.TempDir(), now: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (e *testEnv) logPath() string { return filepath.Join(e.dir, "library_system.log") }

func (e *testEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	console := &Console{In: strings.NewReader(stdin), Out: &out, Err: &errOut}

	root, cleanup := newRootCommand(console, func() time.Time { return e.now })
	root.SetArgs(append(args,
		"--db", filepath.Join(e.dir, "library.db"),
		"--log-file", e.logPath(),
		"--env-file", filepath.Join(e.dir, "missing.env"),
	))
	err := root.Execute()
	cleanup()
	return out.String(), err
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run("", args...)
	require.NoError(e.t, err, out)
	return out
}

func (e *testEnv) seed() {
	e.mustRun("books", "add", "--title", "Dune", "--author", "Frank Herbert", "--genre", "Sci-Fi", "--year", "1965", "--price", "20")
	e.mustRun("members", "add", "--first-name", "Paul", "--last-name", "Atreides", "--email", "paul@arrakis.org", "--phone", "0123456789")
}

func TestCommandsIssueAndReturnWithFine(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	out := env.mustRun("issue", "1", "1")
	assert.Equal(t, "Book 'Dune' successfully issued to Paul Atreides.\n", out)

	env.now = env.now.AddDate(0, 0, 20)
	out = env.mustRun("return", "1")
	assert.Equal(t, "Book 'Dune' returned by Paul Atreides.\nFine: $30.00\n", out)

	out = env.mustRun("transactions")
	assert.Contains(t, out, "2026-03-21")
	assert.Contains(t, out, "$30.00")
	assert.Contains(t, out, library.StatusReturned)
}

func TestCommandsRejectDoubleIssue(t *testing.T) {
	env := newTestEnv(t)
	env.seed()
	env.mustRun("members", "add", "--first-name", "Chani", "--last-name", "Kynes", "--email", "chani@arrakis.org", "--phone", "0123456780")
	env.mustRun("issue", "1", "1")

	out, err := env.run("", "issue", "1", "2")

	require.Error(t, err)
	assert.ErrorIs(t, err, library.ErrAlreadyIssued)
	assert.True(t, errors.As(err, new(reportedError)))
	assert.Equal(t, "Error: This book is currently issued and hasn't been returned.\n", out)
}

func TestCommandsRespectConfiguredLimit(t *testing.T) {
	env := newTestEnv(t)
	env.seed()
	env.mustRun("books", "add", "--title", "Emma", "--author", "Jane Austen", "--year", "1815", "--price", "9.99")

	env.mustRun("issue", "1", "1", "--max-books", "1")
	out, err := env.run("", "issue", "2", "1", "--max-books", "1")

	assert.ErrorIs(t, err, library.ErrLimitExceeded)
	assert.Contains(t, out, "maximum limit of 1 books")
}

func TestCommandsValidateIDs(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("", "return", "abc")

	assert.ErrorIs(t, err, library.ErrValidation)
	assert.Contains(t, out, "transaction id must be a numeric id")
}

func TestCommandsJSONOutput(t *testing.T) {
	env := newTestEnv(t)
	env.seed()

	out := env.mustRun("books", "list", "-o", "json")

	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "["))
	assert.Contains(t, out, `"title": "Dune"`)
	assert.Contains(t, out, `"genre": "Sci-Fi"`)
}

func TestCommandsSearchAndTop(t *testing.T) {
	env := newTestEnv(t)
	env.seed()
	env.mustRun("issue", "1", "1")

	out := env.mustRun("books", "search", "herbert")
	assert.Contains(t, out, "Search Results for 'herbert'")
	assert.Contains(t, out, "Dune")

	out = env.mustRun("top", "--limit", "nope")
	assert.Contains(t, out, "Top 5 Most Issued Books")
}

func TestCommandsLogLoansToFile(t *testing.T) {
	env := newTestEnv(t)
	env.seed()
	env.mustRun("issue", "1", "1")

	data, err := os.ReadFile(env.logPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"book issued"`)
	assert.Contains(t, string(data), `"op_id"`)
	assert.Contains(t, string(data), `"command":"issue"`)
}

func TestCommandsConfigErrorIsNotReported(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("", "books", "list", "--driver", "mysql")

	require.Error(t, err)
	assert.False(t, errors.As(err, new(reportedError)))
	assert.Contains(t, err.Error(), "Store.Driver")
}

func TestMenuScript(t *testing.T) {
	env := newTestEnv(t)

	script := strings.Join([]string{
		"1", "Dune", "Frank Herbert", "", "1965", "20",
		"3", "Paul", "Atreides", "paul@arrakis.org", "0123456789",
		"5", "1", "1",
		"2",
		"42",
		"10",
	}, "\n") + "\n"

	out, err := env.run(script)
	require.NoError(t, err)

	assert.Contains(t, out, "LIBRARY MANAGEMENT SYSTEM")
	assert.Contains(t, out, "Book added successfully (ID 1).")
	assert.Contains(t, out, "Member added successfully (ID 1).")
	assert.Contains(t, out, "Book 'Dune' successfully issued to Paul Atreides.")
	assert.Contains(t, out, "N/A")
	assert.Contains(t, out, "Invalid choice. Please enter a number between 1-10.")
	assert.Contains(t, out, "Thank you for using Library Management System!")
	assert.NotContains(t, out, "Press Enter to continue", "stdin is not a terminal")
}

func TestMenuReportsInputErrorsAndContinues(t *testing.T) {
	env := newTestEnv(t)

	script := "1\nDune\nFrank Herbert\nSci-Fi\nlast year\n20\n6\n99\n10\n"
	out, err := env.run(script, "menu")
	require.NoError(t, err)

	assert.Contains(t, out, "Error: published year must be a number.")
	assert.Contains(t, out, "Error: Transaction not found or book already returned.")
	assert.Contains(t, out, "Thank you for using Library Management System!")
}

func TestMenuStopsAtEndOfInput(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("4\n")

	require.NoError(t, err)
	assert.Contains(t, out, "No members found.")
}

func TestParseLimit(t *testing.T) {
	assert.Equal(t, 5, parseLimit(""))
	assert.Equal(t, 5, parseLimit("-2"))
	assert.Equal(t, 5, parseLimit("ten"))
	assert.Equal(t, 3, parseLimit(" 3 "))
}
