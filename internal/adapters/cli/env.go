package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/quotes/internal/adapters/cache/redis"
	"github.com/jsamuelsen/quotes/internal/adapters/clients"
	"github.com/jsamuelsen/quotes/internal/adapters/clients/acl"
	"github.com/jsamuelsen/quotes/internal/adapters/storage/csvstore"
	"github.com/jsamuelsen/quotes/internal/adapters/storage/sqlstore"
	"github.com/jsamuelsen/quotes/internal/app"
	"github.com/jsamuelsen/quotes/internal/platform/config"
	"github.com/jsamuelsen/quotes/internal/platform/logging"
	"github.com/jsamuelsen/quotes/internal/platform/telemetry"
	"github.com/jsamuelsen/quotes/internal/ports"
)

type globalFlags struct {
	backend string
	dir     string
	profile string
	strict  bool
}

// env holds what a single invocation has loaded and opened.
type env struct {
	opts  Options
	flags globalFlags

	cfg    *config.Config
	logger *slog.Logger

	store   ports.QuoteStore
	service *app.QuoteService
	closers []func() error
}

// load reads the configuration, applies flag overrides and installs the logger.
func (e *env) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWith(config.Options{Dir: e.opts.ConfigDir, Profile: e.flags.profile})
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("backend") {
		cfg.DB.Backend = e.flags.backend
	}

	if cmd.Flags().Changed("dir") {
		cfg.DB.Dir = e.flags.dir
	}

	if err := cfg.ResolveDir(); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	e.cfg = cfg
	e.logger = logging.NewWithWriter(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: e.opts.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	}, e.opts.Stderr)

	ctx := logging.WithContext(cmd.Context(), e.logger)
	cmd.SetContext(logging.WithCommand(ctx, cmd.Name()))

	return nil
}

// quoteService opens the configured store on first use.
func (e *env) quoteService(ctx context.Context) (*app.QuoteService, error) {
	if e.service != nil {
		return e.service, nil
	}

	store, err := e.openStore(ctx)
	if err != nil {
		return nil, err
	}

	e.store = store
	e.service = app.NewQuoteService(app.QuoteServiceConfig{
		Store:  store,
		Logger: logging.FromContext(ctx),
	})

	return e.service, nil
}

// location describes where the configured backend keeps quotes, in the same
// form the store reports, without opening it.
func (e *env) location() string {
	if e.cfg.DB.Backend == config.BackendSQL {
		return e.cfg.SQL.Driver + ":" + sqlstore.RedactDSN(e.sqlDSN())
	}

	table := e.cfg.DB.Table
	if table == "" {
		table = csvstore.DefaultTable
	}

	return csvstore.TablePath(e.cfg.DB.Dir, table)
}

func (e *env) openStore(ctx context.Context) (ports.QuoteStore, error) {
	logger := logging.FromContext(ctx)

	switch e.cfg.DB.Backend {
	case config.BackendSQL:
		dsn := e.sqlDSN()
		logger.DebugContext(ctx, "opening sql store",
			slog.String("driver", e.cfg.SQL.Driver),
			slog.String("dsn", dsn),
		)

		store, err := sqlstore.New(ctx, sqlstore.Config{
			Driver:       e.cfg.SQL.Driver,
			DSN:          dsn,
			Table:        e.cfg.DB.Table,
			MaxOpenConns: e.cfg.SQL.MaxOpenConns,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening %s database: %w", e.cfg.SQL.Driver, err)
		}

		e.closers = append(e.closers, store.Close)

		return store, nil

	default:
		logger.DebugContext(ctx, "opening csv store", slog.String("dir", e.cfg.DB.Dir))

		store, err := csvstore.NewQuoteStore(csvstore.QuoteStoreConfig{
			Dir:    e.cfg.DB.Dir,
			Table:  e.cfg.DB.Table,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening csv store: %w", err)
		}

		return store, nil
	}
}

// sqlDSN prefers an explicit DSN. Without one SQLite uses a file in db.dir and
// PostgreSQL is addressed through the discrete connection settings.
func (e *env) sqlDSN() string {
	sqlCfg := e.cfg.SQL

	switch {
	case sqlCfg.DSN != "":
		return sqlCfg.DSN
	case sqlCfg.Driver == sqlstore.DriverPostgres:
		return sqlstore.PostgresDSN(sqlstore.Params{
			User:     sqlCfg.User,
			Password: sqlCfg.Password,
			Host:     sqlCfg.Host,
			Port:     sqlCfg.Port,
			Name:     sqlCfg.Name,
			SSLMode:  sqlCfg.SSLMode,
		})
	default:
		return e.cfg.SQLitePath()
	}
}

// seenCache connects to Redis when the cache is enabled and returns nil otherwise.
func (e *env) seenCache(ctx context.Context) (ports.Cache, error) {
	if !e.cfg.Cache.Enabled {
		return nil, nil //nolint:nilnil // no cache configured
	}

	c, err := redis.New(ctx, redis.Config{
		Addr:     e.cfg.Cache.Addr,
		Password: e.cfg.Cache.Password,
		DB:       e.cfg.Cache.DB,
		Prefix:   e.cfg.Cache.Prefix,
		Timeout:  e.cfg.Cache.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to cache: %w", err)
	}

	e.closers = append(e.closers, c.Close)

	return c, nil
}

func (e *env) quoteSource(ctx context.Context) (*acl.QuoteSource, error) {
	logger := logging.FromContext(ctx)

	client, err := clients.New(&clients.Config{
		ServiceName: acl.ServiceName,
		Timeout:     e.cfg.Client.Timeout,
		UserAgent:   e.cfg.Client.UserAgent + "/" + e.opts.Version,
		Retry:       e.cfg.Client.Retry,
		Circuit:     e.cfg.Client.CircuitBreaker,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating http client: %w", err)
	}

	return acl.NewQuoteSource(acl.QuoteSourceConfig{Client: client, Logger: logger}), nil
}

// pollerParts is everything a poller needs, kept so serve can also register
// the pieces as health checks.
type pollerParts struct {
	poller *app.Poller
	source *acl.QuoteSource
	seen   ports.Cache
}

func (e *env) newPoller(ctx context.Context, observer app.PollObserver) (*pollerParts, error) {
	service, err := e.quoteService(ctx)
	if err != nil {
		return nil, err
	}

	source, err := e.quoteSource(ctx)
	if err != nil {
		return nil, err
	}

	seen, err := e.seenCache(ctx)
	if err != nil {
		return nil, err
	}

	poller := app.NewPoller(app.PollerConfig{
		Service:  service,
		Source:   source,
		Seen:     seen,
		SeenTTL:  e.cfg.Poll.SeenTTL,
		Observer: observer,
		Logger:   logging.FromContext(ctx),
	})

	return &pollerParts{poller: poller, source: source, seen: seen}, nil
}

// startTelemetry installs the OpenTelemetry providers for commands that talk
// to the network. Disabled telemetry is a no-op.
func (e *env) startTelemetry(ctx context.Context) error {
	provider, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      e.cfg.Telemetry.Enabled,
		Endpoint:     e.cfg.Telemetry.Endpoint,
		ServiceName:  e.cfg.Telemetry.ServiceName,
		Version:      e.opts.Version,
		Environment:  e.cfg.App.Environment,
		SamplingRate: e.cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}

	e.closers = append(e.closers, func() error {
		return provider.Shutdown(context.Background())
	})

	return nil
}

// close releases resources in reverse order of acquisition.
func (e *env) close() {
	var errs []error

	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	e.closers = nil

	if err := errors.Join(errs...); err != nil && e.logger != nil {
		e.logger.Warn("failed to release resources", slog.Any("error", err))
	}
}
