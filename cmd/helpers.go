package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/signalfeed/curator/internal/artifact"
	"github.com/signalfeed/curator/internal/model"
	"github.com/signalfeed/curator/internal/pipeline"
	"github.com/signalfeed/curator/internal/registry"
	"github.com/signalfeed/curator/internal/scrape"
	"github.com/signalfeed/curator/internal/store"
	anthropicpkg "github.com/signalfeed/curator/pkg/anthropic"
	"github.com/signalfeed/curator/pkg/apify"
)

// initStore creates the run-history store from config.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// pipelineEnv holds the initialized store, clients and pipeline needed by
// the run/serve commands.
type pipelineEnv struct {
	Store    store.Store // nil when withStore is false
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline loads the account registry, builds the scrapers and clients,
// and wires the pipeline. Standalone stage commands pass withStore false to
// skip run history. Callers should defer env.Close().
func initPipeline(ctx context.Context, withStore bool) (*pipelineEnv, error) {
	var st store.Store
	if withStore {
		s, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		st = s
	}

	reg, err := registry.Load(cfg.Pipeline.SourcesDir)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}

	scrapers := make(map[model.Source]scrape.Scraper)
	if cfg.Apify.Token != "" {
		scrapers[model.SourceX] = scrape.NewXScraper(apify.NewClient(cfg.Apify.Token), scrape.XOptions{
			ActorID:         cfg.Apify.ActorID,
			HandleBatchSize: cfg.Apify.HandleBatchSize,
		})
	} else {
		zap.L().Debug("CURATOR_APIFY_TOKEN not set, x scraping disabled")
	}
	for _, source := range model.AllSources() {
		if _, ok := scrapers[source]; !ok {
			scrapers[source] = scrape.NewStubScraper(source)
		}
	}

	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	artifacts := artifact.NewStore(cfg.Pipeline.OutputDir)

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(cfg, st, artifacts, reg, scrapers, aiClient),
	}, nil
}

// parseSources converts --sources values into known sources.
func parseSources(names []string) ([]model.Source, error) {
	var out []model.Source
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			src, ok := model.ParseSource(part)
			if !ok {
				return nil, eris.Errorf("unknown source: %s", part)
			}
			out = append(out, src)
		}
	}
	return out, nil
}
