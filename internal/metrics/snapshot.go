package metrics

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// OperationStat is the aggregated timing for one named operation.
type OperationStat struct {
	Name  string
	Count int
	Total time.Duration
}

// LLMStats aggregates language-model call counters.
type LLMStats struct {
	Calls     int64
	Failures  int64
	Retries   int64
	Reparses  int64
	TotalTime time.Duration
}

// APIStats aggregates non-model upstream call counters.
type APIStats struct {
	Calls    int64
	Failures int64
	Retries  int64
}

// URLStats aggregates the retrieval funnel.
type URLStats struct {
	Found     int64
	Crawled   int64
	Succeeded int64
	Failed    int64
}

// Snapshot is the immutable result of draining a Collector.
type Snapshot struct {
	Started       time.Time
	TotalDuration time.Duration
	Operations    []OperationStat // sorted by total duration, descending
	Counters      map[string]int64
	LLM           LLMStats
	API           APIStats
	URLs          URLStats
	ContentChars  int64
	Errors        []Note
	Warnings      []Note
}

func (s *Snapshot) sortOperations() {
	sort.Slice(s.Operations, func(i, j int) bool {
		if s.Operations[i].Total != s.Operations[j].Total {
			return s.Operations[i].Total > s.Operations[j].Total
		}
		return s.Operations[i].Name < s.Operations[j].Name
	})
}

// LLMSuccessRate returns the fraction of model calls that succeeded, or 1
// when none were made.
func (s Snapshot) LLMSuccessRate() float64 {
	if s.LLM.Calls == 0 {
		return 1
	}
	return float64(s.LLM.Calls-s.LLM.Failures) / float64(s.LLM.Calls)
}

// CrawlSuccessRate returns the fraction of crawled URLs that yielded content,
// or 0 when nothing was crawled.
func (s Snapshot) CrawlSuccessRate() float64 {
	if s.URLs.Crawled == 0 {
		return 0
	}
	return float64(s.URLs.Succeeded) / float64(s.URLs.Crawled)
}

// Format renders the snapshot as the multi-line debug summary printed when a
// run finishes with --debug.
func (s Snapshot) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run summary (%.2fs total)\n", s.TotalDuration.Seconds())

	if len(s.Operations) > 0 {
		b.WriteString("operations:\n")
		for _, op := range s.Operations {
			share := 0.0
			if s.TotalDuration > 0 {
				share = 100 * float64(op.Total) / float64(s.TotalDuration)
			}
			fmt.Fprintf(&b, "  %-28s %8.2fs  x%-3d %5.1f%%\n",
				op.Name, op.Total.Seconds(), op.Count, share)
		}
	}

	fmt.Fprintf(&b, "llm: %d calls, %d failures, %d retries, %d reparses, %.2fs, %.0f%% ok\n",
		s.LLM.Calls, s.LLM.Failures, s.LLM.Retries, s.LLM.Reparses,
		s.LLM.TotalTime.Seconds(), 100*s.LLMSuccessRate())
	fmt.Fprintf(&b, "api: %d calls, %d failures, %d retries\n",
		s.API.Calls, s.API.Failures, s.API.Retries)
	fmt.Fprintf(&b, "urls: %d found, %d crawled, %d ok, %d failed (%.0f%% crawl ok)\n",
		s.URLs.Found, s.URLs.Crawled, s.URLs.Succeeded, s.URLs.Failed,
		100*s.CrawlSuccessRate())
	fmt.Fprintf(&b, "content: %d chars\n", s.ContentChars)

	if len(s.Counters) > 0 {
		names := make([]string, 0, len(s.Counters))
		for name := range s.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("counters:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "  %-28s %d\n", name, s.Counters[name])
		}
	}

	if len(s.Warnings) > 0 {
		fmt.Fprintf(&b, "warnings (%d):\n", len(s.Warnings))
		for _, n := range s.Warnings {
			fmt.Fprintf(&b, "  %s %s\n", n.At.Format("15:04:05"), n.Message)
		}
	}
	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "errors (%d):\n", len(s.Errors))
		for _, n := range s.Errors {
			fmt.Fprintf(&b, "  %s %s\n", n.At.Format("15:04:05"), n.Message)
		}
	}
	return b.String()
}
