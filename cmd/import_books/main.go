// Command import_books seeds the library catalog from CSV files.
//
//	import_books --books books.csv --members members.csv [--reset]
//
// Books need the columns title, author, published_year and price; genre is
// optional. Members need first_name, last_name, email and phone. Store
// selection and logging use the same flags and LIBRARY_* variables as the
// main program.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"library-ledger/config"
	"library-ledger/library"
	"library-ledger/logger"
	"library-ledger/render"
	"library-ledger/store"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("import_books", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	booksPath := fs.String("books", "", "CSV file of books to import")
	membersPath := fs.String("members", "", "CSV file of members to import")
	reset := fs.Bool("reset", false, "Remove the SQLite database files before importing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *booksPath == "" && *membersPath == "" {
		return fmt.Errorf("nothing to import: pass --books and/or --members")
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Writer:      stderr,
		Format:      cfg.Logger.Format,
		Environment: cfg.App.Environment,
		Level:       logger.ParseLevel(cfg.Logger.Level),
	}).WithField("command", "import_books")

	if *reset {
		if cfg.Store.Driver != config.DriverSQLite {
			return fmt.Errorf("--reset only applies to the sqlite driver")
		}
		fmt.Fprintln(stdout, "Cleaning up existing database files...")
		removeDatabaseFiles(stdout, cfg.Store.Path)
		fmt.Fprintln(stdout, "Database cleanup complete.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mgr, err := openManager(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer mgr.Close()

	im := &importer{mgr: mgr, out: stdout, log: log}
	var total summary

	if *booksPath != "" {
		fmt.Fprintf(stdout, "Importing books from %s...\n", *booksPath)
		s, err := importFile(*booksPath, func(r io.Reader) (summary, error) { return im.importBooks(ctx, r) })
		total.Succeeded += s.Succeeded
		total.Failed += s.Failed
		if err != nil {
			return err
		}
	}
	if *membersPath != "" {
		fmt.Fprintf(stdout, "Importing members from %s...\n", *membersPath)
		s, err := importFile(*membersPath, func(r io.Reader) (summary, error) { return im.importMembers(ctx, r) })
		total.Succeeded += s.Succeeded
		total.Failed += s.Failed
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "\nImport complete: %d succeeded, %d failed\n", total.Succeeded, total.Failed)
	log.Info("import finished", "succeeded", total.Succeeded, "failed", total.Failed)

	books, err := mgr.ListBooks(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	p := render.New(stdout, cfg.Output.Format)
	p.Books(books)
	return p.Err()
}

func openManager(ctx context.Context, cfg *config.Config, log *logger.Logger) (*library.LibraryManager, error) {
	openCtx, cancel := context.WithTimeout(ctx, cfg.App.CommandTimeout)
	defer cancel()

	gw, err := store.Open(openCtx, cfg.Store, log)
	if err != nil {
		return nil, err
	}
	ledger, err := library.NewLedger(gw, cfg.LoanPolicy())
	if err != nil {
		gw.Close()
		return nil, err
	}
	mgr, err := library.NewLibraryManager(gw, ledger, library.NewValidator(time.Now))
	if err != nil {
		gw.Close()
		return nil, err
	}
	return mgr, nil
}

func importFile(path string, fn func(io.Reader) (summary, error)) (summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return summary{}, err
	}
	defer f.Close()
	return fn(f)
}

func removeDatabaseFiles(out io.Writer, dbPath string) {
	for _, file := range []string{dbPath, dbPath + "-shm", dbPath + "-wal"} {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(out, "Warning: Could not remove %s: %v\n", file, err)
		}
	}
}
