// Package cli implements the quotes command line with cobra.
//
// Domain failures such as an unknown quote id are reported as
// "Error: <message>" on stdout and end the process successfully, unless
// --strict is given. Everything else is a real failure with exit code 1.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/platform/config"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1

	// ExitDomainError is returned for domain errors under --strict.
	ExitDomainError = 2
)

// Options configures the command tree.
type Options struct {
	Version   string
	Commit    string
	BuildTime string

	// ConfigDir holds base.yaml and the profile files. Defaults to config.DefaultConfigDir.
	ConfigDir string

	Stdout io.Writer
	Stderr io.Writer
}

func (o *Options) setDefaults() {
	if o.Version == "" {
		o.Version = "dev"
	}

	if o.ConfigDir == "" {
		o.ConfigDir = config.DefaultConfigDir
	}

	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}

	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// Execute runs the command line with args and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	root, e := newRootCommand(opts)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	e.close()

	return e.exitCode(err)
}

// NewRootCommand builds the command tree. Resources opened by a command are
// not released; use Execute outside of tests.
func NewRootCommand(opts Options) *cobra.Command {
	root, _ := newRootCommand(opts)
	return root
}

func newRootCommand(opts Options) (*cobra.Command, *env) {
	opts.setDefaults()

	e := &env{opts: opts}

	root := &cobra.Command{
		Use:   "quotes",
		Short: "Track quotes in a CSV file or a SQL database",
		Long: "quotes stores short quotations with their author and creation time.\n" +
			"Without a subcommand it lists every stored quote.",
		Version:           opts.Version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: e.load,
	}

	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.SetVersionTemplate("{{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&e.flags.backend, "backend", "", "storage backend: csv or sql (default from config)")
	flags.StringVar(&e.flags.dir, "dir", "", "storage directory (default $QUOTES_DB_DIR or the working directory)")
	flags.StringVar(&e.flags.profile, "profile", os.Getenv("QUOTES_PROFILE"), "configuration profile to load on top of base.yaml")
	flags.BoolVar(&e.flags.strict, "strict", false, "exit with status 2 on quote errors such as an invalid id")

	list := newListCommand(e)
	root.RunE = list.RunE
	root.Flags().AddFlagSet(list.Flags())

	root.AddCommand(
		newAddCommand(e),
		newDeleteCommand(e),
		newDeleteAllCommand(e),
		list,
		newLatestCommand(e),
		newUpdateCommand(e),
		newCountCommand(e),
		newConfigCommand(e),
		newStartCommand(e),
		newGetCommand(e),
		newServeCommand(e),
		newVersionCommand(e),
	)

	return root, e
}

// exitCode reports err and maps it to an exit code.
func (e *env) exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK

	case domain.IsDomain(err):
		fmt.Fprintf(e.opts.Stdout, "Error: %v\n", err)

		if e.flags.strict {
			return ExitDomainError
		}

		return ExitOK

	default:
		fmt.Fprintf(e.opts.Stderr, "Error: %v\n", err)
		return ExitFailure
	}
}

func newVersionCommand(e *env) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Printing the version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			if !verbose {
				_, err := fmt.Fprintln(out, e.opts.Version)
				return err
			}

			_, err := fmt.Fprintf(out, "%s (commit %s, built %s)\n", e.opts.Version, e.opts.Commit, e.opts.BuildTime)

			return err
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include commit and build time")

	return cmd
}
