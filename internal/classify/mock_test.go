package classify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/signalfeed/curator/pkg/anthropic"
)

// fakeClient scripts the model. The respond hook receives the decoded posts
// of each user prompt and returns the verdicts to echo back; it runs under
// the mutex so hooks can mutate shared test state.
type fakeClient struct {
	mu      sync.Mutex
	calls   int
	respond func(posts []promptPost) ([]Verdict, error)

	batchRequests []anthropic.BatchRequestItem
	batchResults  []anthropic.BatchResultItem
}

func (f *fakeClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	var posts []promptPost
	if err := json.Unmarshal([]byte(req.Messages[0].Content), &posts); err != nil {
		return nil, eris.Wrap(err, "fake: decode prompt")
	}
	verdicts, err := f.respond(posts)
	if err != nil {
		return nil, err
	}
	return verdictResponse(verdicts), nil
}

func (f *fakeClient) CreateBatch(ctx context.Context, req anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchRequests = req.Requests
	return &anthropic.BatchResponse{ID: "batch-1", ProcessingStatus: "in_progress"}, nil
}

func (f *fakeClient) GetBatch(ctx context.Context, batchID string) (*anthropic.BatchResponse, error) {
	return &anthropic.BatchResponse{ID: batchID, ProcessingStatus: "ended"}, nil
}

func (f *fakeClient) GetBatchResults(ctx context.Context, batchID string) (anthropic.BatchResultIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &sliceIterator{items: f.batchResults}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// verdictResponse wraps verdicts in a single text block, the way the model
// responds.
func verdictResponse(verdicts []Verdict) *anthropic.MessageResponse {
	b, err := json.Marshal(verdicts)
	if err != nil {
		panic(err)
	}
	return &anthropic.MessageResponse{
		ID:      "msg-1",
		Content: []anthropic.ContentBlock{{Type: "text", Text: string(b)}},
		Usage:   anthropic.TokenUsage{InputTokens: 10, OutputTokens: 5},
	}
}

type sliceIterator struct {
	items []anthropic.BatchResultItem
	pos   int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Item() anthropic.BatchResultItem { return it.items[it.pos-1] }
func (it *sliceIterator) Err() error                      { return nil }
func (it *sliceIterator) Close() error                    { return nil }
