package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalfeed/curator/internal/artifact"
	"github.com/signalfeed/curator/internal/config"
	"github.com/signalfeed/curator/internal/model"
	"github.com/signalfeed/curator/internal/registry"
	"github.com/signalfeed/curator/internal/scrape"
	"github.com/signalfeed/curator/internal/store"
	"github.com/signalfeed/curator/pkg/anthropic"
)

var testNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

// fakeScraper returns fixed records, or an error when err is set.
type fakeScraper struct {
	source  model.Source
	records []model.RawRecord
	err     error
}

func (f *fakeScraper) Source() model.Source { return f.source }

func (f *fakeScraper) Fetch(ctx context.Context, accounts []string, opts scrape.FetchOptions) ([]model.RawRecord, error) {
	return f.records, f.err
}

// fakeAI answers every classification prompt: the first token in each batch
// becomes news, the rest chatter. Counts calls for assertions.
type fakeAI struct {
	calls int
}

func (f *fakeAI) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++

	var posts []struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(req.Messages[0].Content), &posts); err != nil {
		return nil, err
	}

	type verdict struct {
		Token    string `json:"token"`
		Category string `json:"category"`
		Summary  string `json:"summary"`
	}
	verdicts := make([]verdict, len(posts))
	for i, p := range posts {
		v := verdict{Token: p.Token, Category: "chatter"}
		if i == 0 {
			v.Category = "news"
			v.Summary = "something happened"
		}
		verdicts[i] = v
	}
	b, _ := json.Marshal(verdicts)
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: string(b)}},
		Usage:   anthropic.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (f *fakeAI) CreateBatch(ctx context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	return nil, eris.New("not implemented")
}

func (f *fakeAI) GetBatch(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	return nil, eris.New("not implemented")
}

func (f *fakeAI) GetBatchResults(ctx context.Context, batchID string) (anthropic.BatchResultIterator, error) {
	return nil, eris.New("not implemented")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Anthropic: config.AnthropicConfig{Model: "test-model", MaxTokens: 2048},
		Scrape:    config.ScrapeConfig{LimitPerAccount: 20},
		Classify:  config.ClassifyConfig{BatchSize: 10, Concurrency: 2, RequestTimeoutSecs: 5},
		Pipeline: config.PipelineConfig{
			LookbackDays: 7,
			OutputDir:    filepath.Join(t.TempDir(), "output"),
			SourcesDir:   t.TempDir(),
		},
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, scrapers map[model.Source]scrape.Scraper, ai anthropic.Client) (*Pipeline, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	reg, err := registry.Load(cfg.Pipeline.SourcesDir)
	require.NoError(t, err)

	p := New(cfg, st, artifact.NewStore(cfg.Pipeline.OutputDir), reg, scrapers, ai)
	p.now = func() time.Time { return testNow }
	return p, st
}

func rawRecord(id, author string, age time.Duration) model.RawRecord {
	return model.RawRecord{
		IDStr:     id,
		FullText:  "post " + id,
		Username:  author,
		CreatedAt: testNow.Add(-age).Format(time.RFC3339),
	}
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	scrapers := map[model.Source]scrape.Scraper{
		model.SourceX: &fakeScraper{source: model.SourceX, records: []model.RawRecord{
			rawRecord("1", "alice", time.Hour),
			rawRecord("2", "bob", 2*time.Hour),
		}},
	}
	ai := &fakeAI{}
	p, st := newTestPipeline(t, cfg, scrapers, ai)
	ctx := context.Background()

	result, err := p.Run(ctx, RunOptions{Sources: []model.Source{model.SourceX}})
	require.NoError(t, err)

	assert.Equal(t, 2, result.ItemsScraped)
	assert.Equal(t, 2, result.ItemsAggregated)
	assert.Equal(t, 1, result.NewsCount)
	assert.Equal(t, 1, result.ChatterCount)
	assert.NotEmpty(t, result.DigestPath)
	require.Len(t, result.Stages, 4)
	for _, stage := range result.Stages {
		assert.Equal(t, model.StageStatusComplete, stage.Status, "stage %s", stage.Name)
	}

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
	require.NotNil(t, runs[0].Result)
	assert.Equal(t, 1, runs[0].Result.NewsCount)

	digest, err := artifact.NewStore(cfg.Pipeline.OutputDir).ReadDigest()
	require.NoError(t, err)
	assert.Contains(t, string(digest), "# AI News Digest")
}

func TestRun_SkippedStages(t *testing.T) {
	cfg := testConfig(t)
	artifacts := artifact.NewStore(cfg.Pipeline.OutputDir)

	classified := model.CanonicalItem{
		ID: "a", Source: model.SourceX, Author: "alice", Text: "t",
		CreatedAt: testNow.Add(-time.Hour), Category: model.CategoryNews, Summary: "s",
	}
	require.NoError(t, artifacts.WriteCombined([]model.CanonicalItem{classified}))
	require.NoError(t, artifacts.WriteClassified([]model.CanonicalItem{classified}))

	p, _ := newTestPipeline(t, cfg, nil, &fakeAI{})

	result, err := p.Run(context.Background(), RunOptions{SkipScrape: true, SkipClassify: true})
	require.NoError(t, err)

	require.Len(t, result.Stages, 4)
	assert.Equal(t, model.StageStatusSkipped, result.Stages[0].Status)
	assert.Equal(t, model.StageStatusSkipped, result.Stages[2].Status)
	assert.NotEmpty(t, result.DigestPath)
}

func TestRun_AllSourcesFailedFailsRun(t *testing.T) {
	cfg := testConfig(t)
	scrapers := map[model.Source]scrape.Scraper{
		model.SourceX: &fakeScraper{source: model.SourceX, err: eris.New("actor down")},
	}
	p, st := newTestPipeline(t, cfg, scrapers, &fakeAI{})
	ctx := context.Background()

	_, err := p.Run(ctx, RunOptions{Sources: []model.Source{model.SourceX}})
	require.Error(t, err)

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
}

func TestScrape_FailingSourceContained(t *testing.T) {
	cfg := testConfig(t)
	scrapers := map[model.Source]scrape.Scraper{
		model.SourceX:         &fakeScraper{source: model.SourceX, records: []model.RawRecord{rawRecord("1", "alice", time.Hour)}},
		model.SourceInstagram: &fakeScraper{source: model.SourceInstagram, err: eris.New("blocked")},
	}
	p, _ := newTestPipeline(t, cfg, scrapers, &fakeAI{})

	total, failed, err := p.Scrape(context.Background(), []model.Source{model.SourceX, model.SourceInstagram})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"instagram"}, failed)
}

func TestAggregate_AppliesWindowAndKeepsPriorItems(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, nil, &fakeAI{})
	artifacts := artifact.NewStore(cfg.Pipeline.OutputDir)

	// Fresh raw for x: one in-window record, one too old.
	require.NoError(t, artifacts.WriteRaw(model.SourceX, []model.RawRecord{
		rawRecord("1", "alice", time.Hour),
		rawRecord("2", "alice", 30*24*time.Hour),
	}, testNow))

	// Prior combined carries an item from a source with no fresh raw artifact.
	prior := model.CanonicalItem{
		ID: "web-1", Source: model.SourceWeb, Author: "blog", Text: "t",
		CreatedAt: testNow.Add(-48 * time.Hour), URL: "https://example.com/p",
		Category: model.CategoryNews, Summary: "kept",
	}
	require.NoError(t, artifacts.WriteCombined([]model.CanonicalItem{prior}))

	items, skipped, err := p.Aggregate(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, skipped)
	require.Len(t, items, 2)
	ids := []string{items[0].ID, items[1].ID}
	assert.Contains(t, ids, "web-1")
	assert.NotContains(t, ids, model.ItemID(model.SourceX, "2", ""))
}

func TestAggregate_SkipsUnusableRecords(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, nil, &fakeAI{})
	artifacts := artifact.NewStore(cfg.Pipeline.OutputDir)

	require.NoError(t, artifacts.WriteRaw(model.SourceX, []model.RawRecord{
		rawRecord("1", "alice", time.Hour),
		{IDStr: "2", FullText: "no timestamp"},
	}, testNow))

	items, skipped, err := p.Aggregate(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, skipped)
}

func TestClassify_CarriesOverPriorVerdicts(t *testing.T) {
	cfg := testConfig(t)
	ai := &fakeAI{}
	p, _ := newTestPipeline(t, cfg, nil, ai)
	artifacts := artifact.NewStore(cfg.Pipeline.OutputDir)

	known := model.CanonicalItem{
		ID: "a", Source: model.SourceX, Author: "alice", Text: "t1",
		CreatedAt: testNow.Add(-time.Hour), Category: model.CategoryUnclassified,
	}
	fresh := model.CanonicalItem{
		ID: "b", Source: model.SourceX, Author: "bob", Text: "t2",
		CreatedAt: testNow.Add(-2 * time.Hour), Category: model.CategoryUnclassified,
	}
	require.NoError(t, artifacts.WriteCombined([]model.CanonicalItem{known, fresh}))

	classifiedKnown := known
	classifiedKnown.Category = model.CategoryNews
	classifiedKnown.Summary = "prior verdict"
	require.NoError(t, artifacts.WriteClassified([]model.CanonicalItem{classifiedKnown}))

	result, err := p.Classify(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ai.calls)
	byID := make(map[string]model.CanonicalItem)
	for _, it := range result.Items {
		byID[it.ID] = it
	}
	assert.Equal(t, "prior verdict", byID["a"].Summary)
	assert.NotEqual(t, model.CategoryUnclassified, byID["b"].Category)
}

func TestDigest_SameArtifactSameBytes(t *testing.T) {
	cfg := testConfig(t)
	p, _ := newTestPipeline(t, cfg, nil, &fakeAI{})
	artifacts := artifact.NewStore(cfg.Pipeline.OutputDir)

	require.NoError(t, artifacts.WriteClassified([]model.CanonicalItem{{
		ID: "a", Source: model.SourceX, Author: "alice", Text: "t",
		CreatedAt: testNow.Add(-time.Hour), URL: "https://x.com/alice/status/1",
		Category: model.CategoryNews, Summary: "s",
	}}))

	_, _, err := p.Digest(context.Background())
	require.NoError(t, err)
	first, err := artifacts.ReadDigest()
	require.NoError(t, err)

	_, _, err = p.Digest(context.Background())
	require.NoError(t, err)
	second, err := artifacts.ReadDigest()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
