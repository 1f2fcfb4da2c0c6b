// Package pipeline orchestrates the scrape, aggregate, classify and digest
// stages of a run.
package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/signalfeed/curator/internal/artifact"
	"github.com/signalfeed/curator/internal/classify"
	"github.com/signalfeed/curator/internal/config"
	"github.com/signalfeed/curator/internal/dedup"
	"github.com/signalfeed/curator/internal/digest"
	"github.com/signalfeed/curator/internal/model"
	"github.com/signalfeed/curator/internal/normalize"
	"github.com/signalfeed/curator/internal/registry"
	"github.com/signalfeed/curator/internal/scrape"
	"github.com/signalfeed/curator/internal/store"
	"github.com/signalfeed/curator/pkg/anthropic"
)

// Pipeline wires the stages together. Every stage reads its input from the
// artifact store and writes its output back, so each one can also be run on
// its own.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	artifacts *artifact.Store
	registry  *registry.Registry
	scrapers  map[model.Source]scrape.Scraper
	anthropic anthropic.Client
	limiter   *rate.Limiter
	now       func() time.Time
}

// New creates a Pipeline with all dependencies. The run-history store may be
// nil for standalone stage invocations.
func New(
	cfg *config.Config,
	st store.Store,
	artifacts *artifact.Store,
	reg *registry.Registry,
	scrapers map[model.Source]scrape.Scraper,
	aiClient anthropic.Client,
) *Pipeline {
	var limiter *rate.Limiter
	if cfg.Classify.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Classify.RequestsPerSecond), 1)
	}
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		artifacts: artifacts,
		registry:  reg,
		scrapers:  scrapers,
		anthropic: aiClient,
		limiter:   limiter,
		now:       time.Now,
	}
}

// RunOptions selects which stages and sources a run covers.
type RunOptions struct {
	// Sources limits the scrape to the named sources. Empty means all.
	Sources []model.Source

	// SkipScrape reuses the raw artifacts already on disk.
	SkipScrape bool

	// SkipClassify reuses the classified artifact already on disk.
	SkipClassify bool
}

// Run executes the pipeline end to end and records the run in the history
// store.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*model.RunResult, error) {
	sources := opts.Sources
	if len(sources) == 0 {
		sources = model.AllSources()
	}

	log := zap.L().With(zap.Any("sources", sources))
	log.Info("pipeline: starting run")

	result := &model.RunResult{}

	run, err := p.store.CreateRun(ctx, sources)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	var stagesMu sync.Mutex
	trackStage := func(name string, fn func() (*model.StageResult, error)) *model.StageResult {
		stage, stageErr := p.store.CreateStage(ctx, run.ID, name)
		if stageErr != nil {
			log.Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(stageErr))
		}

		start := time.Now()
		stageResult, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if stageResult == nil {
			stageResult = &model.StageResult{Name: name}
		}
		stageResult.Name = name
		stageResult.Duration = duration

		if fnErr != nil {
			stageResult.Status = model.StageStatusFailed
			stageResult.Error = fnErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else if stageResult.Status == "" {
			stageResult.Status = model.StageStatusComplete
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
			)
		}

		if stage != nil {
			_ = p.store.CompleteStage(ctx, stage.ID, stageResult)
		}
		stagesMu.Lock()
		result.Stages = append(result.Stages, *stageResult)
		stagesMu.Unlock()
		return stageResult
	}

	fail := func(err error) (*model.RunResult, error) {
		if upErr := p.store.UpdateRunResult(ctx, run.ID, model.RunStatusFailed, result); upErr != nil {
			log.Warn("pipeline: failed to record failure", zap.Error(upErr))
		}
		return result, err
	}

	// ===== Stage 1: scrape =====
	if opts.SkipScrape {
		trackStage("scrape", func() (*model.StageResult, error) {
			return &model.StageResult{Status: model.StageStatusSkipped}, nil
		})
	} else {
		setStatus(model.RunStatusScraping)
		sr := trackStage("scrape", func() (*model.StageResult, error) {
			scraped, failedSources, scrapeErr := p.Scrape(ctx, sources)
			result.ItemsScraped = scraped
			return &model.StageResult{
				Metadata: map[string]any{
					"records":        scraped,
					"failed_sources": failedSources,
				},
			}, scrapeErr
		})
		if sr.Status == model.StageStatusFailed {
			return fail(eris.New("pipeline: scrape failed for every source"))
		}
	}

	// ===== Stage 2: aggregate =====
	setStatus(model.RunStatusAggregating)
	var items []model.CanonicalItem
	ar := trackStage("aggregate", func() (*model.StageResult, error) {
		var skipped int
		var aggErr error
		items, skipped, aggErr = p.Aggregate(ctx, sources)
		result.ItemsAggregated = len(items)
		result.SkippedRecords = skipped
		return &model.StageResult{
			Metadata: map[string]any{
				"items":   len(items),
				"skipped": skipped,
			},
		}, aggErr
	})
	if ar.Status == model.StageStatusFailed {
		return fail(eris.New("pipeline: aggregate failed"))
	}

	// ===== Stage 3: classify =====
	if opts.SkipClassify {
		trackStage("classify", func() (*model.StageResult, error) {
			return &model.StageResult{Status: model.StageStatusSkipped}, nil
		})
	} else {
		setStatus(model.RunStatusClassifying)
		cr := trackStage("classify", func() (*model.StageResult, error) {
			classified, classifyErr := p.Classify(ctx)
			if classified != nil {
				result.NewsCount = classified.NewsCount
				result.ChatterCount = classified.ChatterCount
				result.FailSafeCount = classified.FailSafe
			}
			var meta map[string]any
			if classified != nil {
				meta = map[string]any{
					"news":          classified.NewsCount,
					"chatter":       classified.ChatterCount,
					"fail_safe":     classified.FailSafe,
					"input_tokens":  classified.Usage.InputTokens,
					"output_tokens": classified.Usage.OutputTokens,
				}
			}
			return &model.StageResult{Metadata: meta}, classifyErr
		})
		if cr.Status == model.StageStatusFailed {
			return fail(eris.New("pipeline: classify failed"))
		}
	}

	// ===== Stage 4: digest =====
	setStatus(model.RunStatusDigesting)
	dr := trackStage("digest", func() (*model.StageResult, error) {
		path, d, digestErr := p.Digest(ctx)
		if digestErr != nil {
			return nil, digestErr
		}
		result.DigestPath = path
		return &model.StageResult{
			Metadata: map[string]any{
				"path": path,
				"news": d.NewsCount,
			},
		}, nil
	})
	if dr.Status == model.StageStatusFailed {
		return fail(eris.New("pipeline: digest failed"))
	}

	if err := p.store.UpdateRunResult(ctx, run.ID, model.RunStatusComplete, result); err != nil {
		log.Warn("pipeline: failed to record result", zap.Error(err))
	}
	log.Info("pipeline: run complete",
		zap.Int("items", result.ItemsAggregated),
		zap.Int("news", result.NewsCount),
		zap.String("digest", result.DigestPath),
	)
	return result, nil
}

// Scrape fetches raw records for the given sources and writes one raw
// artifact per source. A failing source is logged and skipped; Scrape only
// errors when every selected source failed.
func (p *Pipeline) Scrape(ctx context.Context, sources []model.Source) (int, []string, error) {
	g, gCtx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	total := 0
	var failed []string

	for _, source := range sources {
		scraper, ok := p.scrapers[source]
		if !ok {
			zap.L().Debug("pipeline: no scraper for source", zap.String("source", string(source)))
			continue
		}

		g.Go(func() error {
			accounts := p.registry.Accounts(source)
			records, err := scraper.Fetch(gCtx, accounts, scrape.FetchOptions{
				LookbackDays:    p.cfg.Pipeline.LookbackDays,
				LimitPerAccount: p.cfg.Scrape.LimitPerAccount,
			})
			if err != nil {
				zap.L().Error("pipeline: source scrape failed",
					zap.String("source", string(source)),
					zap.Error(err),
				)
				mu.Lock()
				failed = append(failed, string(source))
				mu.Unlock()
				return nil
			}

			if err := p.artifacts.WriteRaw(source, records, p.now()); err != nil {
				zap.L().Error("pipeline: write raw artifact failed",
					zap.String("source", string(source)),
					zap.Error(err),
				)
				mu.Lock()
				failed = append(failed, string(source))
				mu.Unlock()
				return nil
			}

			mu.Lock()
			total += len(records)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return total, failed, err
	}
	if total == 0 && len(failed) > 0 && len(failed) >= countScrapers(p.scrapers, sources) {
		return total, failed, eris.New("pipeline: all sources failed")
	}
	return total, failed, nil
}

// Aggregate normalizes the raw artifacts of the given sources (all when
// empty) into canonical items, merges in the previous combined artifact so
// sources without a fresh scrape keep their items, applies the lookback
// window and writes the combined artifact.
func (p *Pipeline) Aggregate(ctx context.Context, sources []model.Source) ([]model.CanonicalItem, int, error) {
	if len(sources) == 0 {
		sources = model.AllSources()
	}

	var mu sync.Mutex
	var fresh []model.CanonicalItem
	skipped := 0

	g, _ := errgroup.WithContext(ctx)
	for _, source := range sources {
		g.Go(func() error {
			records, err := p.artifacts.ReadRaw(source)
			if err != nil {
				return eris.Wrapf(err, "pipeline: read raw %s", source)
			}

			var items []model.CanonicalItem
			dropped := 0
			for _, rec := range records {
				item, err := normalize.Item(source, rec)
				if err != nil {
					dropped++
					zap.L().Debug("pipeline: record skipped", zap.Error(err))
					continue
				}
				items = append(items, item)
			}

			mu.Lock()
			fresh = append(fresh, items...)
			skipped += dropped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, skipped, err
	}

	// Prior combined items survive for sources whose raw artifact is gone.
	prior, err := p.artifacts.ReadCombined()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, skipped, err
	}

	merged := dedup.Merge(prior, fresh)
	items := dedup.Apply(merged, p.now(), p.cfg.Pipeline.LookbackDays)

	if err := p.artifacts.WriteCombined(items); err != nil {
		return nil, skipped, err
	}

	zap.L().Info("pipeline: aggregated",
		zap.Int("fresh", len(fresh)),
		zap.Int("prior", len(prior)),
		zap.Int("items", len(items)),
		zap.Int("skipped", skipped),
	)
	return items, skipped, nil
}

// Classify labels the combined artifact and writes the classified artifact.
// Verdicts from a previous classified artifact carry over by id, so a rerun
// only pays for items it has not seen.
func (p *Pipeline) Classify(ctx context.Context) (*classify.Result, error) {
	items, err := p.artifacts.ReadCombined()
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read combined")
	}

	if prior, priorErr := p.artifacts.ReadClassified(); priorErr == nil {
		carried := 0
		byID := make(map[string]model.CanonicalItem, len(prior))
		for _, it := range prior {
			byID[it.ID] = it
		}
		for i, it := range items {
			prev, ok := byID[it.ID]
			if !ok || prev.Category == model.CategoryUnclassified {
				continue
			}
			items[i].Category = prev.Category
			items[i].Summary = prev.Summary
			carried++
		}
		if carried > 0 {
			zap.L().Info("pipeline: carried over verdicts", zap.Int("items", carried))
		}
	}

	result, runErr := classify.Run(ctx, p.anthropic, items, classify.Options{
		Model:             p.cfg.Anthropic.Model,
		MaxTokens:         p.cfg.Anthropic.MaxTokens,
		BatchSize:         p.cfg.Classify.BatchSize,
		Concurrency:       p.cfg.Classify.Concurrency,
		RequestTimeout:    time.Duration(p.cfg.Classify.RequestTimeoutSecs) * time.Second,
		Limiter:           p.limiter,
		UseBatchAPI:       p.cfg.Anthropic.UseBatchAPI,
		BatchAPIThreshold: p.cfg.Anthropic.BatchAPIThreshold,
	})
	if result != nil && len(result.Items) > 0 {
		// Persist even partial progress so a rerun resumes instead of
		// reclassifying from scratch.
		if writeErr := p.artifacts.WriteClassified(result.Items); writeErr != nil {
			if runErr == nil {
				runErr = writeErr
			}
			zap.L().Error("pipeline: write classified artifact failed", zap.Error(writeErr))
		}
	}
	return result, runErr
}

// Digest renders the markdown digest from the classified artifact and
// returns its path.
func (p *Pipeline) Digest(ctx context.Context) (string, *digest.Digest, error) {
	items, err := p.artifacts.ReadClassified()
	if err != nil {
		return "", nil, eris.Wrap(err, "pipeline: read classified")
	}

	d := digest.Assemble(items, p.registry)
	path, err := p.artifacts.WriteDigest(digest.Render(d))
	if err != nil {
		return "", nil, err
	}

	zap.L().Info("pipeline: digest written",
		zap.String("path", path),
		zap.Int("news", d.NewsCount),
	)
	return path, d, nil
}

func countScrapers(scrapers map[model.Source]scrape.Scraper, sources []model.Source) int {
	n := 0
	for _, s := range sources {
		if _, ok := scrapers[s]; ok {
			n++
		}
	}
	return n
}
