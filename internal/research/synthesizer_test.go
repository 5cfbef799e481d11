package research

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	ierr "deepresearch/internal/errors"
	"deepresearch/internal/llm"
	"deepresearch/internal/metrics"
)

func sampleResults() []SubAgentResult {
	return []SubAgentResult{
		{
			Index: 0, Objective: "clinical outcomes", Status: StatusOK,
			Findings: []Finding{{Text: "diagnosis accuracy up", Title: "study", SourceURL: "https://example.com/a"}},
			Rounds:   []RoundOutcome{{Round: 1, Summary: "diagnostics improved", Decision: DecisionFinish}},
			Sources:  []string{"https://example.com/a"},
		},
		{
			Index: 1, Objective: "costs", Status: StatusDegraded,
			Err:     fmt.Errorf("deadline reached after 1 rounds"),
			Rounds:  []RoundOutcome{{Round: 1, Summary: "cost data sparse", Decision: DecisionContinue}},
			Sources: []string{"https://example.com/b"},
		},
		{
			Index: 2, Objective: "regulation", Status: StatusFailed,
			Err: fmt.Errorf("search unreachable"),
		},
	}
}

func newTestSynthesizer(client llm.Client) (*Synthesizer, *metrics.Collector) {
	collector := metrics.NewCollector()
	return NewSynthesizer(client, "synth-model", 0, instantExecutor(collector), collector, nil), collector
}

func TestCombineBuildsOrderedSectionsWithGapNotes(t *testing.T) {
	client := llm.NewMockClient().Respond("# Report\n\nMerged content.")
	synthesizer, _ := newTestSynthesizer(client)

	report := synthesizer.Combine(context.Background(), Goal{Statement: "AI in healthcare"}, sampleResults())

	require.True(t, report.Synthesized)
	require.Equal(t, "# Report\n\nMerged content.", report.Body)
	require.Len(t, report.Sections, 3)
	require.Equal(t, Objective("clinical outcomes"), report.Sections[0].Objective)
	require.Equal(t, Objective("costs"), report.Sections[1].Objective)
	require.Equal(t, Objective("regulation"), report.Sections[2].Objective)
	require.Empty(t, report.Sections[0].GapNote)
	require.Contains(t, report.Sections[1].GapNote, "degraded")
	require.Contains(t, report.Sections[2].GapNote, "failed")
	// Failed objective contributed no sources.
	require.Len(t, report.Sources, 2)
}

func TestCombinePromptCarriesFindingsAndGaps(t *testing.T) {
	client := llm.NewMockClient().Respond("report")
	synthesizer, _ := newTestSynthesizer(client)

	synthesizer.Combine(context.Background(), Goal{Statement: "AI in healthcare"}, sampleResults())

	require.Len(t, client.Requests, 1)
	prompt := client.Requests[0].Prompt
	require.Contains(t, prompt, "clinical outcomes")
	require.Contains(t, prompt, "diagnosis accuracy up")
	require.Contains(t, prompt, "degraded")
}

func TestCombineFallsBackToSummaryConcatenation(t *testing.T) {
	client := llm.NewMockClient().
		Fail(ierr.NewTransientError(fmt.Errorf("overloaded"), "")).
		Fail(ierr.NewTransientError(fmt.Errorf("overloaded"), ""))
	synthesizer, collector := newTestSynthesizer(client)

	report := synthesizer.Combine(context.Background(), Goal{Statement: "AI in healthcare"}, sampleResults())

	require.False(t, report.Synthesized)
	require.NotEmpty(t, report.Body)
	// Fallback keeps objective order and the agents' own summaries.
	first := strings.Index(report.Body, "clinical outcomes")
	second := strings.Index(report.Body, "costs")
	third := strings.Index(report.Body, "regulation")
	require.True(t, first >= 0 && second > first && third > second)
	require.Contains(t, report.Body, "diagnostics improved")
	require.Contains(t, report.Body, "cost data sparse")
	require.NotEmpty(t, collector.Drain().Warnings)
}

func TestReportMarkdownRendersSourcesAndGapBanner(t *testing.T) {
	client := llm.NewMockClient().Respond("body text")
	synthesizer, _ := newTestSynthesizer(client)

	report := synthesizer.Combine(context.Background(), Goal{Statement: "AI in healthcare", Scope: "2020s"}, sampleResults())
	out := report.Markdown()

	require.True(t, strings.HasPrefix(out, "# AI in healthcare"))
	require.Contains(t, out, "Scope: 2020s")
	require.Contains(t, out, "partial or no results")
	require.Contains(t, out, "## Sources")
	require.Contains(t, out, "https://example.com/a")
}
