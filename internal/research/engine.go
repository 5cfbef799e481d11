package research

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deepresearch/internal/config"
	"deepresearch/internal/llm"
	"deepresearch/internal/logging"
	"deepresearch/internal/metrics"
	"deepresearch/internal/retry"
	"deepresearch/internal/search"
)

// Engine owns one configured research pipeline and executes runs against it.
type Engine struct {
	cfg      *config.Config
	client   llm.Client
	provider search.Provider
	crawler  Crawler
	notifier Notifier
	logger   logging.Logger
}

// EngineOption customizes an Engine, mainly for injecting test doubles.
type EngineOption func(*Engine)

// WithLLMClient substitutes the language-model client.
func WithLLMClient(client llm.Client) EngineOption {
	return func(e *Engine) { e.client = client }
}

// WithSearchProvider substitutes the search provider.
func WithSearchProvider(provider search.Provider) EngineOption {
	return func(e *Engine) { e.provider = provider }
}

// WithCrawler substitutes the page crawler. Pass nil to disable crawling.
func WithCrawler(crawler Crawler) EngineOption {
	return func(e *Engine) { e.crawler = crawler }
}

// WithNotifier subscribes a progress consumer.
func WithNotifier(notifier Notifier) EngineOption {
	return func(e *Engine) { e.notifier = notifier }
}

// WithLogger substitutes the logger.
func WithLogger(logger logging.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine builds an engine from configuration. Options override the
// clients constructed from cfg.
func NewEngine(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		notifier: NopNotifier(),
		logger:   logging.New(nil, "research", cfg.Debug),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.client == nil {
		e.client = llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
		}, e.logger)
	}
	if e.provider == nil {
		e.provider = search.NewExaClient(search.ExaConfig{
			BaseURL:    cfg.SearchBaseURL,
			APIKey:     cfg.SearchAPIKey,
			NumResults: cfg.ResultsPerQuery,
		}, e.logger)
	}
	if e.crawler == nil && cfg.CrawlMissing {
		e.crawler = search.NewCrawler(e.logger)
	}
	return e, nil
}

// RunResult is everything a completed run produced.
type RunResult struct {
	RunID      string
	Query      string
	Goal       Goal
	Objectives []Objective
	Results    []SubAgentResult
	Report     *Report
	Metrics    metrics.Snapshot
	Elapsed    time.Duration
}

// Degraded returns the indexes of objectives that ended degraded.
func (r *RunResult) Degraded() []int { return r.indexesWith(StatusDegraded) }

// Failed returns the indexes of objectives that ended failed.
func (r *RunResult) Failed() []int { return r.indexesWith(StatusFailed) }

func (r *RunResult) indexesWith(status Status) []int {
	var out []int
	for _, res := range r.Results {
		if res.Status == status {
			out = append(out, res.Index)
		}
	}
	return out
}

// Run executes one end-to-end research run. The only error it returns is
// *errors.TotalFailureError (or a context error); every lesser failure is
// absorbed into a degraded report.
func (e *Engine) Run(ctx context.Context, query string) (*RunResult, error) {
	runID := uuid.NewString()
	start := time.Now()
	collector := metrics.NewCollector()
	notifier := newAsyncNotifier(e.notifier, e.logger)
	defer notifier.flush()

	exec := retry.NewExecutor(e.cfg.Retry, e.cfg.DecodeRetry, collector, e.logger)

	e.logger.Info("run %s: %q", runID, query)

	var deadline time.Time
	if e.cfg.Deadline > 0 {
		deadline = start.Add(e.cfg.Deadline)
	}

	coordinator := NewCoordinator(e.client, e.cfg.AgentModel, e.cfg.MaxObjectives, exec, collector, e.logger)
	goal := coordinator.DefineGoal(ctx, query)
	notifier.Notify(Event{Stage: "goal", Index: -1, Message: goal.Statement})

	objectives := coordinator.IdentifyObjectives(ctx, goal)
	notifier.Notify(Event{Stage: "objectives", Index: -1,
		Message: fmt.Sprintf("%d objectives", len(objectives))})

	// The query cache lives for exactly one run, so agents re-asking a
	// question skip the upstream call without any cross-run reuse.
	provider := search.NewCachedProvider(e.provider, collector)

	runner := NewRunner(e.client, provider, e.crawler, exec, collector, e.logger, notifier, RunnerConfig{
		Model:              e.cfg.AgentModel,
		MaxRounds:          e.cfg.MaxRounds,
		QueriesPerRound:    e.cfg.QueriesPerRound,
		ResultsPerQuery:    e.cfg.ResultsPerQuery,
		ContextTokenBudget: e.cfg.ContextTokenBudget,
		Deadline:           deadline,
	})
	scheduler := NewScheduler(runner, collector, e.logger)

	results, err := scheduler.Run(ctx, goal, objectives)
	if err != nil {
		// Total failure: every objective failed. Surface the aggregate
		// rather than synthesizing an empty report.
		e.logger.Error("run %s failed: %v", runID, err)
		return &RunResult{
			RunID:      runID,
			Query:      query,
			Goal:       goal,
			Objectives: objectives,
			Results:    results,
			Metrics:    collector.Drain(),
			Elapsed:    time.Since(start),
		}, err
	}

	synthesizer := NewSynthesizer(e.client, e.cfg.SynthesizerModel, e.cfg.ContextTokenBudget, exec, collector, e.logger)
	report := synthesizer.Combine(ctx, goal, results)
	notifier.Notify(Event{Stage: "synthesis", Index: -1})

	runResult := &RunResult{
		RunID:      runID,
		Query:      query,
		Goal:       goal,
		Objectives: objectives,
		Results:    results,
		Report:     report,
		Metrics:    collector.Drain(),
		Elapsed:    time.Since(start),
	}
	notifier.Notify(Event{Stage: "done", Index: -1})
	e.logger.Info("run %s done in %v (%d ok, %d degraded, %d failed)",
		runID, runResult.Elapsed.Round(time.Millisecond),
		len(results)-len(runResult.Degraded())-len(runResult.Failed()),
		len(runResult.Degraded()), len(runResult.Failed()))
	return runResult, nil
}
