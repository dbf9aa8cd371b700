package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do/v2"

	"library-ledger/config"
	"library-ledger/library"
	"library-ledger/logger"
	"library-ledger/render"
)

// app holds the services one process run needs. Everything is resolved from
// the container once the configuration is known.
type app struct {
	cfg      *config.Config
	console  *Console
	injector *do.RootScope
	log      *logger.Logger
	mgr      *library.LibraryManager
	printer  *render.Printer
}

func newApp(cfg *config.Config, console *Console, clock Clock) (*app, error) {
	injector := newContainer(cfg, console, clock)

	log, err := do.Invoke[*LoggerHandle](injector)
	if err != nil {
		injector.Shutdown()
		return nil, err
	}
	mgr, err := do.Invoke[*library.LibraryManager](injector)
	if err != nil {
		log.WithError(err).Error("failed to open library store")
		injector.Shutdown()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		console:  console,
		injector: injector,
		log:      log.Logger,
		mgr:      mgr,
		printer:  do.MustInvoke[*render.Printer](injector),
	}, nil
}

// Close shuts down every service the container built.
func (a *app) Close() {
	if err := a.injector.Shutdown(); err != nil {
		a.log.Error("shutdown error", "error", err)
	}
}

// dispatch runs one user command with its own operation id and timeout, logs
// the outcome and prints any error.
func (a *app) dispatch(name string, fn func(ctx context.Context) error) error {
	opID := uuid.Must(uuid.NewV7()).String()
	log := a.log.WithOperation(opID).WithField("command", name)

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.App.CommandTimeout)
	defer cancel()
	ctx = withLogger(ctx, log)

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		log.Debug("command completed", "duration", elapsed)
	case errors.Is(err, library.ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		log.WithError(err).Error("command failed", "duration", elapsed)
	default:
		log.WithError(err).Warn("command rejected", "duration", elapsed)
	}

	if err != nil {
		a.printer.Error(err)
		return reportedError{err}
	}
	return nil
}

// reportedError marks an error the printer has already shown to the user.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// ---------------------------------------------------------------------------
// Ledger observer
// ---------------------------------------------------------------------------

type loggerKey struct{}

func withLogger(ctx context.Context, log *logger.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// ledgerLog records committed loans in the application log.
type ledgerLog struct {
	base *logger.Logger
}

var _ library.Observer = (*ledgerLog)(nil)

func (l *ledgerLog) from(ctx context.Context) *logger.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*logger.Logger); ok {
		return log
	}
	return l.base
}

func (l *ledgerLog) LoanIssued(ctx context.Context, r library.Receipt) {
	l.from(ctx).Info("book issued",
		"transaction_id", r.Transaction.ID,
		"book_id", r.Transaction.BookID,
		"member_id", r.Transaction.MemberID,
		"book_title", r.BookTitle,
		"member_name", r.MemberName,
		"issue_date", r.Transaction.IssueDate.String(),
	)
}

func (l *ledgerLog) LoanReturned(ctx context.Context, r library.Receipt) {
	l.from(ctx).Info("book returned",
		"transaction_id", r.Transaction.ID,
		"book_title", r.BookTitle,
		"member_name", r.MemberName,
		"fine", r.Fine,
	)
}
