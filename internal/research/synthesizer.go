package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deepresearch/internal/llm"
	"deepresearch/internal/logging"
	"deepresearch/internal/metrics"
	"deepresearch/internal/retry"
	"deepresearch/internal/token"
)

// Synthesizer merges sub-agent results into the final report. It always
// produces output: when the synthesis model call exhausts its retries, the
// agents' own round summaries are concatenated in objective order instead.
type Synthesizer struct {
	client      llm.Client
	model       string
	tokenBudget int
	exec        *retry.Executor
	collector   *metrics.Collector
	logger      logging.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(client llm.Client, model string, tokenBudget int, exec *retry.Executor, collector *metrics.Collector, logger logging.Logger) *Synthesizer {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Synthesizer{
		client:      client,
		model:       model,
		tokenBudget: tokenBudget,
		exec:        exec,
		collector:   collector,
		logger:      logging.OrNop(logger),
	}
}

// Combine builds the final report. Sections, sources, and section order are
// deterministic functions of the results; only the body text involves the
// model.
func (s *Synthesizer) Combine(ctx context.Context, goal Goal, results []SubAgentResult) *Report {
	defer s.collector.StartSpan("synthesis")()

	report := &Report{Goal: goal}
	perObjective := make([]string, len(results))

	for i, r := range results {
		section := Section{Index: r.Index, Objective: r.Objective, Status: r.Status}
		switch r.Status {
		case StatusDegraded:
			section.GapNote = fmt.Sprintf("degraded: partial findings only (%s)", degradedReason(r))
		case StatusFailed:
			section.GapNote = fmt.Sprintf("failed: no findings (%s)", degradedReason(r))
		}
		report.Sections = append(report.Sections, section)
		perObjective[i] = objectiveDigest(r, s.tokenBudget/maxInt(1, len(results)))

		if len(r.Sources) > 0 {
			report.Sources = append(report.Sources, SourceGroup{
				Objective: r.Objective,
				URLs:      r.Sources,
			})
		}
	}

	body, err := retry.Do(ctx, s.exec, retry.KindLLM, "synthesis",
		func(ctx context.Context) (string, error) {
			start := time.Now()
			resp, err := s.client.Complete(ctx, llm.Request{
				Model:       s.model,
				System:      synthesisSystem,
				Prompt:      synthesisPrompt(goal, report.Sections, perObjective),
				Temperature: 0.4,
			})
			s.collector.RecordLLMCall(time.Since(start), err)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(resp.Content) == "" {
				return "", fmt.Errorf("synthesis returned empty document")
			}
			return resp.Content, nil
		})
	if err != nil {
		s.logger.Warn("synthesis failed, falling back to summary concatenation: %v", err)
		s.collector.Warning(fmt.Sprintf("synthesis failed: %v", err))
		report.Body = fallbackBody(report.Sections, results)
		report.Synthesized = false
		return report
	}

	report.Body = strings.TrimSpace(body)
	report.Synthesized = true
	return report
}

func degradedReason(r SubAgentResult) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return "round budget exhausted"
}

// objectiveDigest renders one agent's material for the synthesis prompt,
// trimmed to its share of the token budget.
func objectiveDigest(r SubAgentResult, budget int) string {
	var b strings.Builder
	for _, summary := range r.Summaries() {
		b.WriteString(summary)
		b.WriteString("\n")
	}
	for i, f := range r.Findings {
		fmt.Fprintf(&b, "\n[%d] %s (%s)\n%s\n", i+1, f.Title, f.SourceURL, f.Text)
	}
	if b.Len() == 0 {
		b.WriteString("(no findings)")
	}
	return token.Truncate(strings.TrimSpace(b.String()), budget)
}

// fallbackBody is the deterministic no-model report body: each objective's
// own round summaries, in objective order.
func fallbackBody(sections []Section, results []SubAgentResult) string {
	var b strings.Builder
	for i, section := range sections {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, section.Objective)
		if section.GapNote != "" {
			fmt.Fprintf(&b, "_%s_\n\n", section.GapNote)
		}
		summaries := results[i].Summaries()
		if len(summaries) == 0 {
			b.WriteString("No findings.\n\n")
			continue
		}
		for _, summary := range summaries {
			b.WriteString(summary)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(b.String())
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
