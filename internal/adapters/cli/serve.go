package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/jsamuelsen/quotes/internal/adapters/http"
	"github.com/jsamuelsen/quotes/internal/adapters/http/handlers"
	"github.com/jsamuelsen/quotes/internal/platform/logging"
	"github.com/jsamuelsen/quotes/internal/platform/telemetry"
	"github.com/jsamuelsen/quotes/internal/ports"
)

func newServeCommand(e *env) *cobra.Command {
	var (
		port   int
		poll   bool
		remote remoteFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the quotes over HTTP",
		Long: "Serve the quote store as a JSON API under /api/v1/quotes, with health\n" +
			"probes and Prometheus metrics under /-/. With --poll the remote source\n" +
			"is polled in the background while the server runs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				e.cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return e.serve(ctx, poll, remote)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	cmd.Flags().BoolVar(&poll, "poll", false, "poll the remote source while serving")
	remote.register(cmd, true)

	return cmd
}

func (e *env) serve(ctx context.Context, poll bool, remote remoteFlags) error {
	logger := logging.FromContext(ctx)

	if err := e.startTelemetry(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	parts, err := e.newPoller(ctx, metrics)
	if err != nil {
		return err
	}

	service, err := e.quoteService(ctx)
	if err != nil {
		return err
	}

	health := ports.NewHealthRegistry()
	for _, c := range []any{e.store, parts.seen, parts.source} {
		checker, ok := c.(ports.HealthChecker)
		if !ok {
			continue
		}

		if err := health.Register(checker); err != nil {
			return err
		}
	}

	url, pause := remote.resolve(e)

	server := httpadapter.New(&e.cfg.Server, logger)
	httpadapter.SetupRouter(server.Engine(), httpadapter.RouterConfig{
		ServiceName:   e.cfg.App.Name,
		HealthHandler: handlers.NewHealthHandler(health, handlers.NewBuildInfo(e.opts.Version, e.opts.Commit, e.opts.BuildTime), reg),
		QuoteHandler:  handlers.NewQuoteHandler(service, parts.poller, url),
		Metrics:       metrics,
		Timeout:       e.cfg.Server.RequestTimeout,
	})

	logger.InfoContext(ctx, "serving quotes",
		slog.String("addr", server.Addr()),
		slog.String("store", service.Location()),
		slog.Bool("poll", poll),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return server.Run(gctx) })

	if poll {
		g.Go(func() error { return parts.poller.Run(gctx, url, pause) })
	}

	return g.Wait()
}
