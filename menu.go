package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"library-ledger/library"
)

const menuText = `
==================================================
LIBRARY MANAGEMENT SYSTEM
==================================================
1.  Add Book
2.  Show All Books
3.  Add Member
4.  Show All Members
5.  Issue Book
6.  Return Book
7.  Show Transactions
8.  Search Books
9.  Most Issued Books
10. Exit
--------------------------------------------------`

// runMenu reads menu choices from the console until the user exits or input
// ends.
func (a *app) runMenu() error {
	sc := bufio.NewScanner(a.console.In)
	interactive := isTerminal(a.console.In)

	a.log.Debug("menu started", "interactive", interactive)

	for {
		fmt.Fprintln(a.console.Out, menuText)
		choice, ok := a.prompt(sc, "Enter your choice (1-10): ")
		if !ok {
			fmt.Fprintln(a.console.Out)
			return nil
		}

		switch choice {
		case "1":
			a.handleAddBook(sc)
		case "2":
			a.handleListBooks()
		case "3":
			a.handleAddMember(sc)
		case "4":
			a.handleListMembers()
		case "5":
			a.handleIssue(sc)
		case "6":
			a.handleReturn(sc)
		case "7":
			a.handleTransactions()
		case "8":
			a.handleSearch(sc)
		case "9":
			a.handleMostIssued(sc)
		case "10":
			fmt.Fprintln(a.console.Out, "Thank you for using Library Management System!")
			return nil
		default:
			fmt.Fprintln(a.console.Out, "Invalid choice. Please enter a number between 1-10.")
		}

		if err := a.printer.Err(); err != nil {
			return err
		}
		if interactive {
			if _, ok := a.prompt(sc, "\nPress Enter to continue..."); !ok {
				return nil
			}
		}
	}
}

func isTerminal(r any) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// prompt prints label and returns the trimmed next line. ok is false once
// input is exhausted.
func (a *app) prompt(sc *bufio.Scanner, label string) (string, bool) {
	fmt.Fprint(a.console.Out, label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

// promptAll asks each label in turn and stops at end of input.
func (a *app) promptAll(sc *bufio.Scanner, labels ...string) ([]string, bool) {
	values := make([]string, len(labels))
	for i, label := range labels {
		v, ok := a.prompt(sc, label)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

func (a *app) handleAddBook(sc *bufio.Scanner) {
	fmt.Fprintln(a.console.Out, "\nAdd New Book")
	v, ok := a.promptAll(sc,
		"Enter book title: ",
		"Enter author name: ",
		"Enter genre: ",
		"Enter published year: ",
		"Enter price: ",
	)
	if !ok {
		return
	}

	_ = a.dispatch("add-book", func(ctx context.Context) error {
		val := a.mgr.Validator()
		year, err := val.Year(v[3])
		if err != nil {
			return err
		}
		price, err := val.Price(v[4])
		if err != nil {
			return err
		}

		id, err := a.mgr.AddBook(ctx, library.NewBook{Title: v[0], Author: v[1], Genre: v[2], PublishedYear: year, Price: price})
		if err != nil {
			return err
		}
		a.printer.BookAdded(id)
		return nil
	})
}

func (a *app) handleListBooks() {
	_ = a.dispatch("list-books", func(ctx context.Context) error {
		books, err := a.mgr.ListBooks(ctx)
		if err != nil {
			return err
		}
		a.printer.Books(books)
		return nil
	})
}

func (a *app) handleAddMember(sc *bufio.Scanner) {
	fmt.Fprintln(a.console.Out, "\nAdd New Member")
	v, ok := a.promptAll(sc,
		"Enter first name: ",
		"Enter last name: ",
		"Enter email address: ",
		"Enter phone number: ",
	)
	if !ok {
		return
	}

	_ = a.dispatch("add-member", func(ctx context.Context) error {
		id, err := a.mgr.AddMember(ctx, library.NewMember{FirstName: v[0], LastName: v[1], Email: v[2], Phone: v[3]})
		if err != nil {
			return err
		}
		a.printer.MemberAdded(id)
		return nil
	})
}

func (a *app) handleListMembers() {
	_ = a.dispatch("list-members", func(ctx context.Context) error {
		members, err := a.mgr.ListMembers(ctx)
		if err != nil {
			return err
		}
		a.printer.Members(members)
		return nil
	})
}

func (a *app) handleIssue(sc *bufio.Scanner) {
	fmt.Fprintln(a.console.Out, "\nIssue Book")
	v, ok := a.promptAll(sc, "Enter Book ID to issue: ", "Enter Member ID: ")
	if !ok {
		return
	}

	_ = a.dispatch("issue", func(ctx context.Context) error {
		return a.issue(ctx, v[0], v[1])
	})
}

func (a *app) handleReturn(sc *bufio.Scanner) {
	fmt.Fprintln(a.console.Out, "\nReturn Book")
	txnID, ok := a.prompt(sc, "Enter Transaction ID: ")
	if !ok {
		return
	}

	_ = a.dispatch("return", func(ctx context.Context) error {
		return a.returnBook(ctx, txnID)
	})
}

func (a *app) handleTransactions() {
	_ = a.dispatch("transactions", a.transactions)
}

func (a *app) handleSearch(sc *bufio.Scanner) {
	keyword, ok := a.prompt(sc, "Enter search keyword: ")
	if !ok {
		return
	}

	_ = a.dispatch("search", func(ctx context.Context) error {
		return a.search(ctx, keyword)
	})
}

func (a *app) handleMostIssued(sc *bufio.Scanner) {
	raw, ok := a.prompt(sc, "Enter number of top books to display (default 5): ")
	if !ok {
		return
	}

	_ = a.dispatch("most-issued", func(ctx context.Context) error {
		return a.mostIssued(ctx, parseLimit(raw))
	})
}

// parseLimit falls back to the default for blank or invalid input.
func parseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return library.DefaultTopBooks
	}
	return n
}

// ---------------------------------------------------------------------------
// Operations shared by the menu and the subcommands
// ---------------------------------------------------------------------------

func (a *app) issue(ctx context.Context, rawBookID, rawMemberID string) error {
	val := a.mgr.Validator()
	bookID, err := val.ID("book_id", rawBookID)
	if err != nil {
		return err
	}
	memberID, err := val.ID("member_id", rawMemberID)
	if err != nil {
		return err
	}

	receipt, err := a.mgr.IssueBook(ctx, bookID, memberID)
	if err != nil {
		return err
	}
	a.printer.Issued(receipt)
	return nil
}

func (a *app) returnBook(ctx context.Context, rawTxnID string) error {
	txnID, err := a.mgr.Validator().ID("transaction_id", rawTxnID)
	if err != nil {
		return err
	}

	receipt, err := a.mgr.ReturnBook(ctx, txnID)
	if err != nil {
		return err
	}
	a.printer.Returned(receipt)
	return nil
}

func (a *app) transactions(ctx context.Context) error {
	views, err := a.mgr.ListTransactions(ctx)
	if err != nil {
		return err
	}
	a.printer.Transactions(views)
	return nil
}

func (a *app) search(ctx context.Context, keyword string) error {
	books, err := a.mgr.SearchBooks(ctx, keyword)
	if err != nil {
		return err
	}
	a.printer.SearchResults(strings.TrimSpace(keyword), books)
	return nil
}

func (a *app) mostIssued(ctx context.Context, limit int) error {
	rows, err := a.mgr.MostIssuedBooks(ctx, limit)
	if err != nil {
		return err
	}
	a.printer.Popular(limit, rows)
	return nil
}
