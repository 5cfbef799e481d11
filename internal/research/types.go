// Package research implements the parallel research pipeline: a coordinator
// decomposes a query into objectives, a scheduler fans one sub-agent out per
// objective, each agent iterates bounded reason/search/evaluate rounds, and a
// synthesizer merges everything into one report.
package research

import "time"

// Goal is the clarified research intent derived from the raw user query.
type Goal struct {
	Statement string
	Scope     string
}

// Objective is one independently researchable line of inquiry.
type Objective string

// Finding is one piece of retrieved evidence.
type Finding struct {
	Text      string
	SourceURL string
	Title     string
	Query     string
}

// Decision is a sub-agent's verdict at the end of a round.
type Decision int

const (
	// DecisionContinue requests another round.
	DecisionContinue Decision = iota
	// DecisionFinish declares the objective satisfied.
	DecisionFinish
)

func (d Decision) String() string {
	if d == DecisionFinish {
		return "FINISH"
	}
	return "CONTINUE"
}

// RoundOutcome records one completed round of a sub-agent.
type RoundOutcome struct {
	Round    int
	Analysis string
	Queries  []string
	Findings []Finding
	Summary  string
	Decision Decision
	Elapsed  time.Duration
}

// Status classifies how a sub-agent (or report section) ended.
type Status int

const (
	// StatusOK means the agent decided it was done within budget.
	StatusOK Status = iota
	// StatusDegraded means partial results: the round budget or deadline
	// forced termination, or a late-stage failure left usable findings.
	StatusDegraded
	// StatusFailed means no usable findings were produced.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	default:
		return "failed"
	}
}

// SubAgentResult is the complete outcome of one objective's research.
type SubAgentResult struct {
	Index     int
	Objective Objective
	Status    Status
	Rounds    []RoundOutcome
	Findings  []Finding
	Sources   []string // deduplicated, insertion-ordered
	Err       error    // terminal error for degraded/failed results
}

// Summaries returns the per-round running summaries in order.
func (r SubAgentResult) Summaries() []string {
	out := make([]string, 0, len(r.Rounds))
	for _, round := range r.Rounds {
		if round.Summary != "" {
			out = append(out, round.Summary)
		}
	}
	return out
}

// Section is one objective's slice of the final report, in objective order.
type Section struct {
	Index     int
	Objective Objective
	Status    Status
	GapNote   string // set for degraded and failed sections
}

// SourceGroup lists the sources one objective drew on.
type SourceGroup struct {
	Objective Objective
	URLs      []string
}

// Report is the final output of a run. Sections are ordered by objective
// index regardless of sub-agent completion order.
type Report struct {
	Goal        Goal
	Sections    []Section
	Body        string // synthesized document, or fallback concatenation
	Sources     []SourceGroup
	Synthesized bool // false when Body is the deterministic fallback
}
