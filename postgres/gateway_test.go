package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger/library"
)

const testDSNEnv = "LIBRARY_TEST_POSTGRES_DSN"

// connectTestGateway opens a Gateway on the database named by
// LIBRARY_TEST_POSTGRES_DSN and empties its tables. The test is skipped when
// the variable is unset.
func connectTestGateway(t *testing.T, client string) *Gateway {
	t.Helper()

	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, err := Open(ctx, dsn, client)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })

	_, err = g.db.Exec(ctx, `TRUNCATE transactions, members, books RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return g
}

func forEachClient(t *testing.T, fn func(t *testing.T, g *Gateway)) {
	for _, client := range []string{"pgx", "pq"} {
		t.Run(client, func(t *testing.T) {
			fn(t, connectTestGateway(t, client))
		})
	}
}

func seedLoanParties(t *testing.T, g *Gateway) (bookID, memberID int64) {
	t.Helper()
	ctx := context.Background()

	bookID, err := g.AddBook(ctx, library.NewBook{Title: "Dune", Author: "Frank Herbert", Genre: "Sci-Fi", PublishedYear: 1965, Price: 20})
	require.NoError(t, err)
	memberID, err = g.AddMember(ctx, library.NewMember{FirstName: "Paul", LastName: "Atreides", Email: "paul@arrakis.org", Phone: "0123456789"})
	require.NoError(t, err)
	return bookID, memberID
}

func Test_Open_ShouldReject_UnknownClient(t *testing.T) {
	_, err := Open(context.Background(), "postgres://localhost/none", "odbc")
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func Test_Gateway_Catalog(t *testing.T) {
	forEachClient(t, func(t *testing.T, g *Gateway) {
		ctx := context.Background()
		bookID, memberID := seedLoanParties(t, g)

		b, err := g.GetBook(ctx, bookID)
		require.NoError(t, err)
		assert.Equal(t, "Dune", b.Title)
		require.NotNil(t, b.Genre)
		assert.Equal(t, "Sci-Fi", *b.Genre)

		m, err := g.GetMember(ctx, memberID)
		require.NoError(t, err)
		assert.Equal(t, "Paul Atreides", m.FullName())

		_, err = g.GetBook(ctx, bookID+100)
		assert.ErrorIs(t, err, library.ErrRecordNotFound)

		found, err := g.SearchBooks(ctx, "herb")
		require.NoError(t, err)
		assert.Len(t, found, 1, "search is case-insensitive")

		_, err = g.AddMember(ctx, library.NewMember{FirstName: "P", LastName: "A", Email: "paul@arrakis.org", Phone: "0123456789"})
		assert.ErrorIs(t, err, library.ErrEmailTaken)
	})
}

func Test_Gateway_IssueAndReturn_ThroughLedger(t *testing.T) {
	forEachClient(t, func(t *testing.T, g *Gateway) {
		ctx := context.Background()
		bookID, memberID := seedLoanParties(t, g)

		today := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		ledger, err := library.NewLedger(g, library.DefaultPolicy(), library.WithClock(func() time.Time { return today }))
		require.NoError(t, err)

		issued, err := ledger.Issue(ctx, bookID, memberID)
		require.NoError(t, err)

		_, err = ledger.Issue(ctx, bookID, memberID)
		assert.ErrorIs(t, err, library.ErrAlreadyIssued)

		today = today.AddDate(0, 0, 20)
		returned, err := ledger.Return(ctx, issued.Transaction.ID)
		require.NoError(t, err)
		assert.InDelta(t, 30.0, returned.Fine, 0.001)

		_, err = ledger.Return(ctx, issued.Transaction.ID)
		assert.ErrorIs(t, err, library.ErrOpenTransactionNotFound)

		history, err := g.ListTransactions(ctx)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.NotNil(t, history[0].FineAmount)
		assert.InDelta(t, 30.0, *history[0].FineAmount, 0.001)
		assert.Equal(t, "2026-03-21", history[0].ReturnDate.String())

		top, err := g.MostIssuedBooks(ctx, 5)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, 1, top[0].TimesIssued)
	})
}

func Test_Gateway_ConcurrentIssue_ShouldHaveOneWinner(t *testing.T) {
	forEachClient(t, func(t *testing.T, g *Gateway) {
		ctx := context.Background()
		bookID, memberID := seedLoanParties(t, g)
		ledger, err := library.NewLedger(g, library.DefaultPolicy())
		require.NoError(t, err)

		const attempts = 8
		errs := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = ledger.Issue(ctx, bookID, memberID)
			}()
		}
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
				continue
			}
			assert.ErrorIs(t, err, library.ErrAlreadyIssued)
		}
		assert.Equal(t, 1, successes)
	})
}
