package scrape

import (
	"context"

	"go.uber.org/zap"

	"github.com/signalfeed/curator/internal/model"
)

// StubScraper stands in for platforms without a working fetcher yet. It
// returns no records so the rest of the pipeline runs unchanged.
type StubScraper struct {
	source model.Source
}

// NewStubScraper creates a stub for the given source.
func NewStubScraper(source model.Source) *StubScraper {
	return &StubScraper{source: source}
}

// Source implements Scraper.
func (s *StubScraper) Source() model.Source { return s.source }

// Fetch implements Scraper.
func (s *StubScraper) Fetch(ctx context.Context, accounts []string, opts FetchOptions) ([]model.RawRecord, error) {
	zap.L().Debug("scrape: no fetcher for source, returning nothing",
		zap.String("source", string(s.source)),
		zap.Int("accounts", len(accounts)),
	)
	return nil, nil
}
