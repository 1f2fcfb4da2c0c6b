// Package classify labels canonical items as news or chatter with one LLM
// call per batch.
package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/signalfeed/curator/internal/model"
	"github.com/signalfeed/curator/internal/resilience"
	"github.com/signalfeed/curator/pkg/anthropic"
)

// Options configures a classification run.
type Options struct {
	// Model is the Anthropic model id. Required.
	Model string

	// MaxTokens bounds the response per batch. Default 2048.
	MaxTokens int64

	// BatchSize is the maximum number of items per LLM call. Default 10.
	BatchSize int

	// Concurrency bounds in-flight LLM calls. Default 4.
	Concurrency int

	// RequestTimeout bounds a single LLM call including retries of the
	// transport. Default 120s.
	RequestTimeout time.Duration

	// Limiter throttles call starts across batches when non-nil.
	Limiter *rate.Limiter

	// Retry controls per-batch retries. Zero value uses defaults.
	Retry resilience.RetryConfig

	// UseBatchAPI switches to the Message Batches API when the run has at
	// least BatchAPIThreshold batches. Halves cost but adds latency.
	UseBatchAPI bool

	// BatchAPIThreshold is the minimum batch count for the batch API path.
	// Default 8.
	BatchAPIThreshold int
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 2048
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 120 * time.Second
	}
	if o.BatchAPIThreshold <= 0 {
		o.BatchAPIThreshold = 8
	}
	return o
}

// Result is the outcome of a classification run.
type Result struct {
	Items        []model.CanonicalItem
	NewsCount    int
	ChatterCount int
	FailSafe     int
	Usage        anthropic.TokenUsage
}

// Run classifies every unclassified item in items and returns a new slice;
// the input is not mutated and already-classified items pass through
// untouched, so reruns over a partially classified artifact only pay for the
// remainder. Items whose batch fails after retries, or whose token never
// comes back, fall back to chatter rather than aborting the run.
//
// On context cancellation the in-flight calls finish, unfinished items stay
// unclassified, and the partial result is returned alongside ctx.Err().
func Run(ctx context.Context, client anthropic.Client, items []model.CanonicalItem, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.Model == "" {
		return nil, eris.New("classify: model is required")
	}

	out := make([]model.CanonicalItem, len(items))
	copy(out, items)

	var pending []int
	for i, it := range out {
		if it.Category == model.CategoryUnclassified {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return buildResult(out, anthropic.TokenUsage{}, 0), nil
	}

	batches := chunk(pending, opts.BatchSize)
	zap.L().Info("classify: starting",
		zap.Int("items", len(items)),
		zap.Int("pending", len(pending)),
		zap.Int("batches", len(batches)),
		zap.String("model", opts.Model),
	)

	var usage anthropic.TokenUsage
	var err error
	if opts.UseBatchAPI && len(batches) >= opts.BatchAPIThreshold {
		usage, err = runBatchAPI(ctx, client, out, batches, opts)
	} else {
		usage, err = runDirect(ctx, client, out, batches, opts)
	}
	if err != nil {
		return buildResult(out, usage, 0), err
	}

	// Anything still unclassified at this point had a failed batch, a missing
	// token, or an invalid verdict. Chatter is the fail-safe: a mislabeled
	// chatter post is invisible, a dropped item is not.
	failSafe := 0
	for _, idx := range pending {
		if out[idx].Category == model.CategoryUnclassified {
			out[idx].Category = model.CategoryChatter
			out[idx].Summary = ""
			failSafe++
			zap.L().Warn("classify: fail-safe chatter",
				zap.String("id", out[idx].ID),
				zap.String("author", out[idx].Author),
			)
		}
	}

	result := buildResult(out, usage, failSafe)
	zap.L().Info("classify: done",
		zap.Int("news", result.NewsCount),
		zap.Int("chatter", result.ChatterCount),
		zap.Int("fail_safe", failSafe),
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
	)
	return result, nil
}

// runDirect classifies batches with concurrent CreateMessage calls. Each
// goroutine owns a disjoint index set of out and its own usages slot, so no
// lock is needed.
func runDirect(ctx context.Context, client anthropic.Client, out []model.CanonicalItem, batches [][]int, opts Options) (anthropic.TokenUsage, error) {
	system := anthropic.CachedSystemBlocks(systemPrompt)
	usages := make([]anthropic.TokenUsage, len(batches))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for bi, batch := range batches {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}
			if opts.Limiter != nil {
				if err := opts.Limiter.Wait(gCtx); err != nil {
					return nil
				}
			}

			resp, err := callModel(gCtx, client, system, gather(out, batch), opts)
			if err != nil {
				zap.L().Warn("classify: batch failed",
					zap.Int("batch", bi),
					zap.Int("items", len(batch)),
					zap.Error(err),
				)
				return nil
			}

			usages[bi] = resp.Usage
			applyVerdicts(out, batch, extractText(resp))
			return nil
		})
	}
	_ = g.Wait()

	var usage anthropic.TokenUsage
	for _, u := range usages {
		usage.Add(u)
	}
	if err := ctx.Err(); err != nil {
		return usage, err
	}
	return usage, nil
}

// runBatchAPI submits every batch as one Message Batch, polls it to
// completion, then applies verdicts chunk by chunk. Failed chunks fall
// through to the fail-safe.
func runBatchAPI(ctx context.Context, client anthropic.Client, out []model.CanonicalItem, batches [][]int, opts Options) (anthropic.TokenUsage, error) {
	var usage anthropic.TokenUsage
	system := anthropic.CachedSystemBlocks(systemPrompt)

	requests := make([]anthropic.BatchRequestItem, 0, len(batches))
	for bi, batch := range batches {
		prompt, err := buildUserPrompt(gather(out, batch))
		if err != nil {
			return usage, eris.Wrap(err, "classify: build prompt")
		}
		requests = append(requests, anthropic.BatchRequestItem{
			CustomID: fmt.Sprintf("chunk-%d", bi),
			Params: anthropic.MessageRequest{
				Model:     opts.Model,
				MaxTokens: opts.MaxTokens,
				System:    system,
				Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
			},
		})
	}

	batch, err := client.CreateBatch(ctx, anthropic.BatchRequest{Requests: requests})
	if err != nil {
		return usage, eris.Wrap(err, "classify: create batch")
	}
	zap.L().Info("classify: batch submitted",
		zap.String("batch_id", batch.ID),
		zap.Int("chunks", len(requests)),
	)

	batch, err = anthropic.PollBatch(ctx, client, batch.ID)
	if err != nil {
		return usage, eris.Wrap(err, "classify: poll batch")
	}

	iter, err := client.GetBatchResults(ctx, batch.ID)
	if err != nil {
		return usage, eris.Wrap(err, "classify: get batch results")
	}
	collected, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		return usage, eris.Wrap(err, "classify: collect batch results")
	}

	for bi, indices := range batches {
		resp, ok := collected.Succeeded[fmt.Sprintf("chunk-%d", bi)]
		if !ok || resp == nil {
			continue
		}
		usage.Add(resp.Usage)
		applyVerdicts(out, indices, extractText(resp))
	}
	return usage, nil
}

// callModel issues one classification call with retries. Each attempt runs
// under its own timeout detached from the parent cancellation, so an
// interrupted run still finishes the call it already paid for; the retry
// loop itself stops once the parent is canceled.
func callModel(ctx context.Context, client anthropic.Client, system []anthropic.SystemBlock, items []model.CanonicalItem, opts Options) (*anthropic.MessageResponse, error) {
	prompt, err := buildUserPrompt(items)
	if err != nil {
		return nil, eris.Wrap(err, "classify: build prompt")
	}

	req := anthropic.MessageRequest{
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
		System:    system,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}

	cfg := opts.Retry
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = retryable
	}
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.RequestTimeout)
		defer cancel()
		return client.CreateMessage(callCtx, req)
	})
}

func retryable(err error) bool {
	if resilience.IsTransient(err) {
		return true
	}
	return resilience.IsTransientHTTPStatus(anthropic.StatusCode(err))
}

// applyVerdicts parses a model response and writes validated verdicts into
// out at the given indices. Verdicts with unknown tokens or categories
// outside the closed set are dropped; their items stay unclassified.
func applyVerdicts(out []model.CanonicalItem, indices []int, text string) {
	verdicts, err := parseVerdicts(text)
	if err != nil {
		zap.L().Warn("classify: unparseable response", zap.Error(err))
		return
	}

	byToken := make(map[string]int, len(indices))
	for _, idx := range indices {
		byToken[out[idx].ID] = idx
	}

	for _, v := range verdicts {
		idx, ok := byToken[v.Token]
		if !ok {
			zap.L().Warn("classify: verdict for unknown token", zap.String("token", v.Token))
			continue
		}
		switch model.Category(v.Category) {
		case model.CategoryNews:
			out[idx].Category = model.CategoryNews
			out[idx].Summary = v.Summary
		case model.CategoryChatter:
			out[idx].Category = model.CategoryChatter
			out[idx].Summary = ""
		default:
			zap.L().Warn("classify: verdict with invalid category",
				zap.String("token", v.Token),
				zap.String("category", v.Category),
			)
		}
	}
}

func buildResult(items []model.CanonicalItem, usage anthropic.TokenUsage, failSafe int) *Result {
	r := &Result{Items: items, Usage: usage, FailSafe: failSafe}
	for _, it := range items {
		switch it.Category {
		case model.CategoryNews:
			r.NewsCount++
		case model.CategoryChatter:
			r.ChatterCount++
		}
	}
	return r
}

func gather(items []model.CanonicalItem, indices []int) []model.CanonicalItem {
	out := make([]model.CanonicalItem, len(indices))
	for i, idx := range indices {
		out[i] = items[idx]
	}
	return out
}

func chunk(indices []int, size int) [][]int {
	var out [][]int
	for len(indices) > size {
		out = append(out, indices[:size])
		indices = indices[size:]
	}
	if len(indices) > 0 {
		out = append(out, indices)
	}
	return out
}
