package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotes/internal/domain"
)

func newAddCommand(e *env) *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "add <text>...",
		Short: "Add a quote",
		Long:  "Add a quote. The arguments are joined with single spaces to form the text.",
		Example: `  quotes add Simplicity is prerequisite for reliability -a "Edsger Dijkstra"
  quotes add "Less is more."`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			service, err := e.quoteService(ctx)
			if err != nil {
				return err
			}

			id, err := service.AddQuote(ctx, domain.Quote{
				Text:   strings.Join(args, " "),
				Author: author,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added quote %d\n", id)

			return err
		},
	}

	cmd.Flags().StringVarP(&author, "author", "a", "", "who said it")

	return cmd
}

func newDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			service, err := e.quoteService(ctx)
			if err != nil {
				return err
			}

			if err := service.DeleteQuote(ctx, id); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted quote %d\n", id)

			return err
		},
	}
}

func newDeleteAllCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every quote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			service, err := e.quoteService(ctx)
			if err != nil {
				return err
			}

			if err := service.DeleteAll(ctx); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Deleted all quotes")

			return err
		},
	}
}

func newListCommand(e *env) *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quotes",
		Long:  "List every quote, or only those whose author matches --author exactly.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			service, err := e.quoteService(ctx)
			if err != nil {
				return err
			}

			var filter *string
			if cmd.Flags().Changed("author") {
				filter = &author
			}

			quotes, err := service.ListQuotes(ctx, filter)
			if err != nil {
				return err
			}

			return renderQuotes(cmd.OutOrStdout(), quotes)
		},
	}

	cmd.Flags().StringVarP(&author, "author", "a", "", "only list quotes by this author")

	return cmd
}

func newLatestCommand(e *env) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "List the most recent quotes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			service, err := e.quoteService(ctx)
			if err != nil {
				return err
			}

			quotes, err := service.Latest(ctx, n)
			if err != nil {
				return err
			}

			return renderQuotes(cmd.OutOrStdout(), quotes)
		},
	}

	cmd.Flags().IntVarP(&n, "number", "n", domain.DefaultLatest, "how many quotes to show")

	return cmd
}

func newUpdateCommand(e *env) *cobra.Command {
	var (
		author      string
		text        []string
		clearAuthor bool
	)

	cmd := &cobra.Command{
		Use:   "update <id> [text]...",
		Short: "Update a quote",
		Long: "Update the text or author of a quote. Text given with -t and any\n" +
			"arguments after the id are joined with single spaces.",
		Example: `  quotes update 3 -o "Grace Hopper"
  quotes update 3 -t "It is easier to ask forgiveness" -t "than permission."
  quotes update 3 --clear-author`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var patch domain.QuotePatch

			if words := append(text, args[1:]...); len(words) > 0 {
				patch.Text = domain.Set(strings.Join(words, " "))
			}

			switch {
			case clearAuthor:
				patch.Author = domain.Clear[string]()
			case cmd.Flags().Changed("author"):
				patch.Author = domain.Set(author)
			}

			if patch.IsEmpty() {
				return domain.NewValidationError("update", "nothing to update; pass --text or --author")
			}

			ctx := cmd.Context()

			service, err := e.quoteService(ctx)
			if err != nil {
				return err
			}

			if err := service.UpdateQuote(ctx, id, patch); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Updated quote %d\n", id)

			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&author, "author", "o", "", "new author")
	flags.StringArrayVarP(&text, "text", "t", nil, "new text; may be repeated")
	flags.BoolVar(&clearAuthor, "clear-author", false, "remove the author")
	cmd.MarkFlagsMutuallyExclusive("author", "clear-author")

	return cmd
}

func newCountCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored quotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			service, err := e.quoteService(ctx)
			if err != nil {
				return err
			}

			n, err := service.Count(ctx)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)

			return err
		},
	}
}

func newConfigCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print where quotes are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), e.location())
			return err
		},
	}
}

// parseID turns a command line argument into a quote id. Anything that is not
// a positive integer cannot name a stored quote.
func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, domain.NewValidationErrorWithValue("id", "must be an integer", arg)
	}

	if id <= 0 {
		return 0, domain.NewInvalidQuoteIDError(id)
	}

	return id, nil
}
