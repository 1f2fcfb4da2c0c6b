package scrape

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/signalfeed/curator/internal/model"
	"github.com/signalfeed/curator/internal/resilience"
	"github.com/signalfeed/curator/pkg/apify"
)

// XOptions configures the X scraper.
type XOptions struct {
	// ActorID is the Apify actor to run. Default "quacker/twitter-scraper".
	ActorID string

	// HandleBatchSize is the number of handles per actor run. Default 10.
	HandleBatchSize int

	// Retry controls per-batch retries. Zero value uses defaults.
	Retry resilience.RetryConfig
}

func (o XOptions) withDefaults() XOptions {
	if o.ActorID == "" {
		o.ActorID = "quacker/twitter-scraper"
	}
	if o.HandleBatchSize <= 0 {
		o.HandleBatchSize = 10
	}
	return o
}

// XScraper fetches tweets for tracked handles through an Apify actor.
type XScraper struct {
	client *apify.Client
	opts   XOptions
}

// NewXScraper creates the X scraper.
func NewXScraper(client *apify.Client, opts XOptions) *XScraper {
	return &XScraper{client: client, opts: opts.withDefaults()}
}

// Source implements Scraper.
func (s *XScraper) Source() model.Source { return model.SourceX }

// Fetch runs the actor for the handles in batches. A failed batch is logged
// and skipped, so one bad batch does not discard the rest; Fetch only errors
// when every batch failed.
func (s *XScraper) Fetch(ctx context.Context, accounts []string, opts FetchOptions) ([]model.RawRecord, error) {
	if len(accounts) == 0 {
		return nil, nil
	}

	limit := opts.LimitPerAccount
	if limit <= 0 {
		limit = 20
	}

	var records []model.RawRecord
	var lastErr error
	failed := 0

	for start := 0; start < len(accounts); start += s.opts.HandleBatchSize {
		end := min(start+s.opts.HandleBatchSize, len(accounts))
		handles := accounts[start:end]

		items, err := s.runBatch(ctx, handles, limit)
		if err != nil {
			lastErr = err
			failed++
			zap.L().Warn("scrape: x batch failed",
				zap.Strings("handles", handles),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		for _, raw := range items {
			var rec model.RawRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				zap.L().Warn("scrape: x record undecodable", zap.Error(err))
				continue
			}
			records = append(records, rec)
		}
	}

	if len(records) == 0 && failed > 0 {
		return nil, &SourceUnavailableError{Source: model.SourceX, Err: lastErr}
	}

	zap.L().Info("scrape: x done",
		zap.Int("accounts", len(accounts)),
		zap.Int("records", len(records)),
		zap.Int("failed_batches", failed),
	)
	return records, nil
}

func (s *XScraper) runBatch(ctx context.Context, handles []string, limit int) ([]json.RawMessage, error) {
	input := map[string]any{
		"handles":       handles,
		"tweetsDesired": limit,
		"proxyConfig":   map[string]any{"useApifyProxy": true},
	}

	cfg := s.opts.Retry
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = func(err error) bool {
			if resilience.IsTransient(err) {
				return true
			}
			return resilience.IsTransientHTTPStatus(apify.StatusCode(err))
		}
	}
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("apify", "run_actor_sync")
	}

	start := time.Now()
	items, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]json.RawMessage, error) {
		return s.client.RunActorSync(ctx, s.opts.ActorID, input)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("scrape: x batch done",
		zap.Int("handles", len(handles)),
		zap.Int("items", len(items)),
		zap.Duration("took", time.Since(start)),
	)
	return items, nil
}
