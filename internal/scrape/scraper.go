// Package scrape fetches raw records from the tracked platforms.
package scrape

import (
	"context"
	"fmt"

	"github.com/signalfeed/curator/internal/model"
)

// FetchOptions bounds a fetch.
type FetchOptions struct {
	// LookbackDays hints how far back the platform query should reach.
	// The aggregation window is enforced downstream regardless.
	LookbackDays int

	// LimitPerAccount caps records fetched per account.
	LimitPerAccount int
}

// Scraper fetches raw records for one platform.
type Scraper interface {
	Source() model.Source
	Fetch(ctx context.Context, accounts []string, opts FetchOptions) ([]model.RawRecord, error)
}

// SourceUnavailableError reports a source that produced nothing at all. The
// pipeline logs it and carries on with the other sources.
type SourceUnavailableError struct {
	Source model.Source
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("scrape: source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }
