package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type remoteFlags struct {
	url   string
	pause float64
}

func (f *remoteFlags) register(cmd *cobra.Command, withPause bool) {
	cmd.Flags().StringVarP(&f.url, "url", "u", "", "quote source returning a JSON array of {q, a} (default from config)")

	if withPause {
		cmd.Flags().Float64VarP(&f.pause, "pause", "p", 0, "seconds between polls (default from config)")
	}
}

func (f *remoteFlags) resolve(e *env) (string, time.Duration) {
	url, pause := f.url, time.Duration(f.pause*float64(time.Second))

	if url == "" {
		url = e.cfg.Poll.URL
	}

	if pause <= 0 {
		pause = e.cfg.Poll.Interval
	}

	return url, pause
}

func newStartCommand(e *env) *cobra.Command {
	var flags remoteFlags

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Poll a remote quote source until interrupted",
		Long: "Fetch quotes from the remote source every --pause seconds and store the new ones.\n" +
			"Unusable responses are logged and retried on the next poll. Stop with Ctrl-C.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := e.startTelemetry(ctx); err != nil {
				return err
			}

			parts, err := e.newPoller(ctx, nil)
			if err != nil {
				return err
			}

			url, pause := flags.resolve(e)

			return parts.poller.Run(ctx, url, pause)
		},
	}

	flags.register(cmd, true)

	return cmd
}

func newGetCommand(e *env) *cobra.Command {
	var flags remoteFlags

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch quotes from the remote source once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if err := e.startTelemetry(ctx); err != nil {
				return err
			}

			parts, err := e.newPoller(ctx, nil)
			if err != nil {
				return err
			}

			url, _ := flags.resolve(e)

			result, err := parts.poller.PollOnce(ctx, url)
			if err != nil {
				return err
			}

			return renderPollResult(cmd.OutOrStdout(), url, result)
		},
	}

	flags.register(cmd, false)

	return cmd
}
