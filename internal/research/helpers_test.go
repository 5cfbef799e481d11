package research

import (
	"context"
	"sync"
	"time"

	"deepresearch/internal/metrics"
	"deepresearch/internal/retry"
	"deepresearch/internal/search"
)

// instantExecutor retries without sleeping so tests run at full speed.
func instantExecutor(collector *metrics.Collector) *retry.Executor {
	policy := retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, ExponentialBase: 2.0}
	decodePolicy := retry.Policy{MaxRetries: 1, InitialDelay: time.Millisecond, ExponentialBase: 2.0}
	return retry.NewExecutor(policy, decodePolicy, collector, nil,
		retry.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))
}

// stubProvider answers searches from a function, recording queries.
type stubProvider struct {
	mu      sync.Mutex
	queries []string
	answer  func(query string) ([]search.Result, error)
}

func (p *stubProvider) Search(ctx context.Context, query string) ([]search.Result, error) {
	p.mu.Lock()
	p.queries = append(p.queries, query)
	p.mu.Unlock()
	return p.answer(query)
}

func (p *stubProvider) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.queries...)
}

func oneResult(query string) ([]search.Result, error) {
	return []search.Result{{
		Title:   "Result for " + query,
		URL:     "https://example.com/" + query,
		Domain:  "example.com",
		Content: "Evidence about " + query,
	}}, nil
}

// recordingNotifier collects events behind a mutex.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) byStage(stage string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

const (
	planFinishScript = `{"analysis": "looked", "reasoning": "need data", "queries": ["q"]}`
	evalFinish       = `{"summary": "enough gathered", "decision": "FINISH"}`
	evalContinue     = `{"summary": "still digging", "decision": "CONTINUE"}`
)
