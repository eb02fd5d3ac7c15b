package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsamuelsen/quotes/internal/domain"
	"github.com/jsamuelsen/quotes/internal/ports"
)

// DefaultPollInterval is the pause between polls when none is given.
const DefaultPollInterval = 5 * time.Second

const seenLookupLimit = 4

// PollerConfig contains the dependencies of a Poller.
type PollerConfig struct {
	Service *QuoteService
	Source  ports.QuoteSource

	// Seen, when set, remembers fingerprints of ingested quotes so repeats
	// from the remote source are skipped.
	Seen    ports.Cache
	SeenTTL time.Duration

	// Observer, when set, is told the outcome of every poll made by Run.
	Observer PollObserver

	Logger *slog.Logger
}

// PollObserver receives poll outcomes, typically to export them as metrics.
type PollObserver interface {
	ObservePoll(fetched, added, skipped int, err error)
}

// Poller ingests quotes from a remote source into the quote service.
type Poller struct {
	service  *QuoteService
	source   ports.QuoteSource
	seen     ports.Cache
	seenTTL  time.Duration
	observer PollObserver
	logger   *slog.Logger
}

// NewPoller creates a poller. It panics without a service or source.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Service == nil || cfg.Source == nil {
		panic("app: PollerConfig requires Service and Source")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Poller{
		service:  cfg.Service,
		source:   cfg.Source,
		seen:     cfg.Seen,
		seenTTL:  cfg.SeenTTL,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
}

// PollResult summarizes one poll.
type PollResult struct {
	Fetched int
	Added   int
	Skipped int
}

// PollOnce fetches url once and adds every usable quote in the response.
// Quotes without text are skipped, as are quotes already recorded in the
// seen cache.
func (p *Poller) PollOnce(ctx context.Context, url string) (PollResult, error) {
	quotes, err := p.source.Fetch(ctx, url)
	if err != nil {
		return PollResult{}, err
	}

	result := PollResult{Fetched: len(quotes)}

	seen, err := p.lookupSeen(ctx, quotes)
	if err != nil {
		return result, err
	}

	for i, q := range quotes {
		if seen[i] {
			result.Skipped++
			continue
		}

		if _, err := p.service.AddQuote(ctx, q); err != nil {
			if domain.IsMissingText(err) {
				p.logger.WarnContext(ctx, "skipping remote quote without text",
					slog.String("author", q.Author),
				)

				result.Skipped++

				continue
			}

			return result, err
		}

		result.Added++
		p.markSeen(ctx, q)
	}

	p.logger.InfoContext(ctx, "poll complete",
		slog.String("url", url),
		slog.Int("fetched", result.Fetched),
		slog.Int("added", result.Added),
		slog.Int("skipped", result.Skipped),
	)

	return result, nil
}

// Run polls url every interval until ctx is cancelled, which is the normal
// way to stop it and yields a nil error. Unusable responses and unreachable
// sources are logged and retried on the next tick; store failures end the loop.
func (p *Poller) Run(ctx context.Context, url string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	p.logger.InfoContext(ctx, "polling started",
		slog.String("url", url),
		slog.Duration("interval", interval),
	)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for ctx.Err() == nil {
		result, err := p.PollOnce(ctx, url)
		if p.observer != nil && ctx.Err() == nil {
			p.observer.ObservePoll(result.Fetched, result.Added, result.Skipped, err)
		}

		switch {
		case err == nil, ctx.Err() != nil:
		case domain.IsBadRequest(err) || domain.IsUnavailable(err):
			p.logger.WarnContext(ctx, "poll failed", slog.Any("error", err))
		default:
			return fmt.Errorf("polling %s: %w", url, err)
		}

		timer.Reset(interval)

		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	p.logger.InfoContext(ctx, "polling stopped")

	return nil
}

func (p *Poller) lookupSeen(ctx context.Context, quotes []domain.Quote) ([]bool, error) {
	if p.seen == nil {
		return make([]bool, len(quotes)), nil
	}

	return MapLimit(ctx, seenLookupLimit, quotes, func(ctx context.Context, q domain.Quote) (bool, error) {
		_, err := p.seen.Get(ctx, Fingerprint(q))

		switch {
		case err == nil:
			return true, nil
		case domain.IsNotFound(err):
			return false, nil
		default:
			p.logger.WarnContext(ctx, "seen cache lookup failed", slog.Any("error", err))
			return false, nil
		}
	})
}

func (p *Poller) markSeen(ctx context.Context, q domain.Quote) {
	if p.seen == nil {
		return
	}

	if err := p.seen.Set(ctx, Fingerprint(q), []byte{1}, int(p.seenTTL.Seconds())); err != nil {
		p.logger.WarnContext(ctx, "seen cache update failed", slog.Any("error", err))
	}
}

// Fingerprint identifies a quote by its text and author.
func Fingerprint(q domain.Quote) string {
	sum := sha256.Sum256([]byte(q.Text + "\x00" + q.Author))

	return "seen:" + hex.EncodeToString(sum[:])
}
