package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"library-ledger/config"
	"library-ledger/library"
)

// newRootCommand builds the command tree. Without a subcommand the
// interactive menu starts. The returned func releases whatever the executed
// command opened.
func newRootCommand(console *Console, clock Clock) (*cobra.Command, func()) {
	var a *app

	root := &cobra.Command{
		Use:           "library",
		Short:         "Library catalog and loan ledger",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			a, err = newApp(cfg, console, clock)
			return err
		},
		RunE: func(*cobra.Command, []string) error {
			return a.runMenu()
		},
	}
	root.SetIn(console.In)
	root.SetOut(console.Out)
	root.SetErr(console.Err)
	config.RegisterFlags(root.PersistentFlags())

	current := func() *app { return a }

	root.AddCommand(
		&cobra.Command{
			Use:   "menu",
			Short: "Start the interactive menu",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return a.runMenu() },
		},
		newBooksCommand(current),
		newMembersCommand(current),
		&cobra.Command{
			Use:   "issue <book-id> <member-id>",
			Short: "Issue a book to a member",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				return a.dispatch("issue", func(ctx context.Context) error {
					return a.issue(ctx, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "return <transaction-id>",
			Short: "Return a book and charge any overdue fine",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return a.dispatch("return", func(ctx context.Context) error {
					return a.returnBook(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "transactions",
			Short: "Show the loan history",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return a.dispatch("transactions", a.transactions)
			},
		},
		newTopCommand(current),
	)

	cleanup := func() {
		if a != nil {
			a.Close()
		}
	}
	return root, cleanup
}

func newBooksCommand(current func() *app) *cobra.Command {
	books := &cobra.Command{Use: "books", Short: "Manage the book catalog"}

	var nb library.NewBook
	var year, price string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a book",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a := current()
			return a.dispatch("add-book", func(ctx context.Context) error {
				val := a.mgr.Validator()
				var err error
				if nb.PublishedYear, err = val.Year(year); err != nil {
					return err
				}
				if nb.Price, err = val.Price(price); err != nil {
					return err
				}
				id, err := a.mgr.AddBook(ctx, nb)
				if err != nil {
					return err
				}
				a.printer.BookAdded(id)
				return nil
			})
		},
	}
	add.Flags().StringVar(&nb.Title, "title", "", "Book title")
	add.Flags().StringVar(&nb.Author, "author", "", "Author name")
	add.Flags().StringVar(&nb.Genre, "genre", "", "Genre (optional)")
	add.Flags().StringVar(&year, "year", "", "Published year")
	add.Flags().StringVar(&price, "price", "", "Price")

	list := &cobra.Command{
		Use:   "list",
		Short: "List all books",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a := current()
			return a.dispatch("list-books", func(ctx context.Context) error {
				books, err := a.mgr.ListBooks(ctx)
				if err != nil {
					return err
				}
				a.printer.Books(books)
				return nil
			})
		},
	}

	search := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search books by title or author",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			a := current()
			return a.dispatch("search", func(ctx context.Context) error {
				return a.search(ctx, args[0])
			})
		},
	}

	books.AddCommand(add, list, search)
	return books
}

func newMembersCommand(current func() *app) *cobra.Command {
	members := &cobra.Command{Use: "members", Short: "Manage library members"}

	var nm library.NewMember
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a := current()
			return a.dispatch("add-member", func(ctx context.Context) error {
				id, err := a.mgr.AddMember(ctx, nm)
				if err != nil {
					return err
				}
				a.printer.MemberAdded(id)
				return nil
			})
		},
	}
	add.Flags().StringVar(&nm.FirstName, "first-name", "", "First name")
	add.Flags().StringVar(&nm.LastName, "last-name", "", "Last name")
	add.Flags().StringVar(&nm.Email, "email", "", "Email address")
	add.Flags().StringVar(&nm.Phone, "phone", "", "Phone number, digits only")

	list := &cobra.Command{
		Use:   "list",
		Short: "List all members",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a := current()
			return a.dispatch("list-members", func(ctx context.Context) error {
				members, err := a.mgr.ListMembers(ctx)
				if err != nil {
					return err
				}
				a.printer.Members(members)
				return nil
			})
		},
	}

	members.AddCommand(add, list)
	return members
}

func newTopCommand(current func() *app) *cobra.Command {
	var limit string
	top := &cobra.Command{
		Use:   "top",
		Short: "Show the most issued books",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a := current()
			n := parseLimit(limit)
			return a.dispatch("most-issued", func(ctx context.Context) error {
				return a.mostIssued(ctx, n)
			})
		},
	}
	top.Flags().StringVar(&limit, "limit", strconv.Itoa(library.DefaultTopBooks), "Number of books to show")
	return top
}
