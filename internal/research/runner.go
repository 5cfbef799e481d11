package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"deepresearch/internal/llm"
	"deepresearch/internal/logging"
	"deepresearch/internal/metrics"
	"deepresearch/internal/retry"
	"deepresearch/internal/search"
	"deepresearch/internal/token"
)

// Crawler fetches page text for search hits that arrive without content.
type Crawler interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// RunnerConfig shapes one sub-agent's round loop.
type RunnerConfig struct {
	Model           string
	MaxRounds       int
	QueriesPerRound int
	ResultsPerQuery int
	// ContextTokenBudget caps evidence text per model call. Zero = no cap.
	ContextTokenBudget int
	// Deadline is the wall-clock cutoff for starting new rounds. Zero means
	// no deadline. Rounds already in flight run to completion.
	Deadline time.Time
}

// Runner executes the bounded reason/search/evaluate loop for one objective.
// A single Runner is shared by all sub-agents of a run; Run is safe for
// concurrent use.
type Runner struct {
	client    llm.Client
	provider  search.Provider
	crawler   Crawler // nil disables crawl supplementation
	exec      *retry.Executor
	collector *metrics.Collector
	logger    logging.Logger
	notifier  Notifier
	cfg       RunnerConfig
}

// NewRunner creates a runner. crawler and notifier may be nil.
func NewRunner(client llm.Client, provider search.Provider, crawler Crawler, exec *retry.Executor, collector *metrics.Collector, logger logging.Logger, notifier Notifier, cfg RunnerConfig) *Runner {
	if cfg.MaxRounds < 1 {
		cfg.MaxRounds = 1
	}
	if cfg.QueriesPerRound < 1 {
		cfg.QueriesPerRound = 1
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &Runner{
		client:    client,
		provider:  provider,
		crawler:   crawler,
		exec:      exec,
		collector: collector,
		logger:    logging.OrNop(logger),
		notifier:  notifier,
		cfg:       cfg,
	}
}

// Run researches one objective to completion. It never returns an error:
// failures are folded into the result's Status and Err so one agent's
// trouble cannot abort its siblings.
func (r *Runner) Run(ctx context.Context, index int, obj Objective, goal Goal) SubAgentResult {
	defer r.collector.StartSpan(fmt.Sprintf("objective_%d", index+1))()

	result := SubAgentResult{Index: index, Objective: obj, Status: StatusOK}
	seenURLs := make(map[string]bool)

	for round := 1; round <= r.cfg.MaxRounds; round++ {
		if !r.cfg.Deadline.IsZero() && time.Now().After(r.cfg.Deadline) {
			r.logger.Warn("objective %d: deadline reached before round %d", index+1, round)
			r.collector.Warning(fmt.Sprintf("objective %d stopped at deadline before round %d", index+1, round))
			result.Status = StatusDegraded
			result.Err = fmt.Errorf("deadline reached after %d rounds", round-1)
			return result
		}
		if err := ctx.Err(); err != nil {
			result.Status = r.terminalStatus(result)
			result.Err = err
			return result
		}

		outcome, err := r.runRound(ctx, index, obj, goal, round, result.Summaries())
		if err != nil {
			r.collector.Error(fmt.Sprintf("objective %d round %d failed: %v", index+1, round, err))
			result.Status = r.terminalStatus(result)
			result.Err = err
			return result
		}

		result.Rounds = append(result.Rounds, outcome)
		result.Findings = append(result.Findings, outcome.Findings...)
		for _, f := range outcome.Findings {
			if f.SourceURL != "" && !seenURLs[f.SourceURL] {
				seenURLs[f.SourceURL] = true
				result.Sources = append(result.Sources, f.SourceURL)
			}
		}

		r.notifier.Notify(Event{
			Stage:     "round",
			Objective: obj,
			Index:     index,
			Round:     round,
			Message:   fmt.Sprintf("round %d: %d findings, %s", round, len(outcome.Findings), outcome.Decision),
		})

		if outcome.Decision == DecisionFinish {
			r.logger.Info("objective %d finished after %d round(s)", index+1, round)
			return result
		}
	}

	// Round budget exhausted without the agent deciding to finish.
	r.logger.Warn("objective %d: round budget exhausted, returning partial results", index+1)
	result.Status = StatusDegraded
	return result
}

// terminalStatus maps a mid-run failure onto the result: degraded when prior
// rounds produced findings, failed otherwise.
func (r *Runner) terminalStatus(result SubAgentResult) Status {
	if len(result.Findings) > 0 {
		return StatusDegraded
	}
	return StatusFailed
}

func (r *Runner) runRound(ctx context.Context, index int, obj Objective, goal Goal, round int, priorSummaries []string) (RoundOutcome, error) {
	start := time.Now()
	outcome := RoundOutcome{Round: round}

	plan, err := r.planRound(ctx, obj, goal, round, priorSummaries)
	if err != nil {
		return outcome, fmt.Errorf("reasoning: %w", err)
	}
	outcome.Analysis = plan.Analysis
	outcome.Queries = plan.Queries
	r.logger.Debug("objective %d round %d: %d queries", index+1, round, len(plan.Queries))

	outcome.Findings = r.retrieve(ctx, index, plan.Queries)

	summary, decision, err := r.evaluateRound(ctx, obj, round, priorSummaries, outcome.Findings)
	if err != nil {
		return outcome, fmt.Errorf("evaluation: %w", err)
	}
	outcome.Summary = summary
	outcome.Decision = decision
	outcome.Elapsed = time.Since(start)
	return outcome, nil
}

func (r *Runner) complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	resp, err := r.client.Complete(ctx, llm.Request{
		Model:       r.cfg.Model,
		System:      system,
		Prompt:      prompt,
		Temperature: 0.3,
	})
	r.collector.RecordLLMCall(time.Since(start), err)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (r *Runner) planRound(ctx context.Context, obj Objective, goal Goal, round int, priorSummaries []string) (roundPlan, error) {
	defer r.collector.StartSpan("round_reasoning")()
	plan, err := retry.DoDecoded(ctx, r.exec, "round_plan",
		func(ctx context.Context, corrective string) (roundPlan, error) {
			prompt := roundPlanPrompt(obj, goal, round, r.cfg.MaxRounds, r.cfg.QueriesPerRound, priorSummaries)
			raw, err := r.complete(ctx, roundPlanSystem, correctiveSuffix(prompt, corrective))
			if err != nil {
				return roundPlan{}, err
			}
			return parseRoundPlan(raw, r.cfg.QueriesPerRound)
		})
	if err != nil {
		return roundPlan{}, err
	}
	// Fewer queries than asked for costs coverage, not the round.
	if len(plan.Queries) < r.cfg.QueriesPerRound {
		r.collector.Warning(fmt.Sprintf("round %d plan returned %d of %d queries",
			round, len(plan.Queries), r.cfg.QueriesPerRound))
	}
	return plan, nil
}

// retrieve fans the round's queries out concurrently and merges findings as
// they complete. Individual query failures are absorbed: they cost coverage,
// not the round.
func (r *Runner) retrieve(ctx context.Context, index int, queries []string) []Finding {
	defer r.collector.StartSpan("retrieval")()

	var mu sync.Mutex
	var findings []Finding

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(queries))

	for _, query := range queries {
		query := query
		g.Go(func() error {
			results, err := retry.Do(gctx, r.exec, retry.KindAPI, "search",
				func(ctx context.Context) ([]search.Result, error) {
					results, err := r.provider.Search(ctx, query)
					r.collector.RecordAPICall(err)
					return results, err
				})
			if err != nil {
				r.logger.Warn("objective %d: query %q failed: %v", index+1, query, err)
				r.collector.Warning(fmt.Sprintf("query %q failed: %v", query, err))
				// Absorbed: a failed query must not fail the round.
				return nil
			}

			if r.cfg.ResultsPerQuery > 0 && len(results) > r.cfg.ResultsPerQuery {
				results = results[:r.cfg.ResultsPerQuery]
			}
			found := r.toFindings(gctx, query, results)

			mu.Lock()
			findings = append(findings, found...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return findings
}

// minInlineChars is the content length below which a search hit counts as
// thin and gets crawled for the full page text.
const minInlineChars = 200

// toFindings converts search hits into findings, crawling pages whose
// inline content is missing or thin.
func (r *Runner) toFindings(ctx context.Context, query string, results []search.Result) []Finding {
	findings := make([]Finding, 0, len(results))
	crawled, succeeded, failed := 0, 0, 0

	for _, res := range results {
		content := res.Content
		if len(content) < minInlineChars && r.crawler != nil {
			crawled++
			text, err := retry.Do(ctx, r.exec, retry.KindAPI, "crawl",
				func(ctx context.Context) (string, error) {
					text, err := r.crawler.Fetch(ctx, res.URL)
					r.collector.RecordAPICall(err)
					return text, err
				})
			switch {
			case err != nil:
				// Thin inline content still beats nothing.
				failed++
				r.logger.Debug("crawl %s failed: %v", res.URL, err)
			case len(text) > len(content):
				succeeded++
				content = text
			default:
				succeeded++
			}
		}
		if content == "" {
			continue
		}
		r.collector.AddContentChars(len(content))
		findings = append(findings, Finding{
			Text:      content,
			SourceURL: res.URL,
			Title:     res.Title,
			Query:     query,
		})
	}
	r.collector.RecordURLs(len(results), crawled, succeeded, failed)
	return findings
}

func (r *Runner) evaluateRound(ctx context.Context, obj Objective, round int, priorSummaries []string, findings []Finding) (string, Decision, error) {
	defer r.collector.StartSpan("round_evaluation")()

	evidence := formatEvidence(findings, r.cfg.ContextTokenBudget)

	type evalResult struct {
		summary  string
		decision Decision
	}
	result, err := retry.DoDecoded(ctx, r.exec, "round_eval",
		func(ctx context.Context, corrective string) (evalResult, error) {
			prompt := roundEvalPrompt(obj, round, r.cfg.MaxRounds, priorSummaries, evidence)
			raw, err := r.complete(ctx, roundEvalSystem, correctiveSuffix(prompt, corrective))
			if err != nil {
				return evalResult{}, err
			}
			summary, decision, err := parseRoundEval(raw)
			if err != nil {
				return evalResult{}, err
			}
			return evalResult{summary: summary, decision: decision}, nil
		})
	if err != nil {
		return "", DecisionContinue, err
	}
	return result.summary, result.decision, nil
}

// formatEvidence renders findings for an evaluation prompt, trimmed to the
// token budget.
func formatEvidence(findings []Finding, budget int) string {
	if len(findings) == 0 {
		return "(no evidence retrieved this round)"
	}
	var b strings.Builder
	for i, f := range findings {
		fmt.Fprintf(&b, "[%d] %s (%s)\n", i+1, f.Title, f.SourceURL)
		b.WriteString(f.Text)
		b.WriteString("\n\n")
	}
	return token.Truncate(strings.TrimSpace(b.String()), budget)
}
