package research

import (
	"fmt"
	"strings"
)

const goalSystem = `You are a research planner. Given a user's raw question,
state the underlying research goal and its scope.
Respond with JSON only: {"statement": "...", "scope": "..."}`

const objectivesSystem = `You are a research planner. Decompose the research
goal into independent objectives that can be investigated in parallel.
Each objective must stand alone and cover a distinct aspect.
Respond with JSON only: {"objectives": ["...", "..."]}`

const roundPlanSystem = `You are a focused research agent working on one
objective. Review what you know so far, reason about what is still missing,
and propose the next web search queries.
Respond with JSON only:
{"analysis": "...", "reasoning": "...", "queries": ["...", "..."]}`

const roundEvalSystem = `You are a focused research agent. Review the
evidence gathered this round, write a running summary of everything known so
far for your objective, and decide whether to continue searching or finish.
Respond with JSON only: {"summary": "...", "decision": "CONTINUE" or "FINISH"}`

const synthesisSystem = `You are a research editor. Merge the findings from
several research agents into one coherent report. Keep one titled section per
objective, in the given order. Where an objective is marked degraded or
failed, say plainly what is missing instead of inventing content. Cite source
URLs inline where they support a claim.`

func goalPrompt(query string) string {
	return fmt.Sprintf("User question:\n%s", query)
}

func objectivesPrompt(goal Goal, min, max int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research goal: %s\n", goal.Statement)
	if goal.Scope != "" {
		fmt.Fprintf(&b, "Scope: %s\n", goal.Scope)
	}
	fmt.Fprintf(&b, "Produce between %d and %d objectives.", min, max)
	return b.String()
}

func roundPlanPrompt(obj Objective, goal Goal, round, maxRounds, queries int, priorSummaries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall goal: %s\n", goal.Statement)
	fmt.Fprintf(&b, "Your objective: %s\n", obj)
	fmt.Fprintf(&b, "Round %d of at most %d.\n", round, maxRounds)
	if len(priorSummaries) > 0 {
		b.WriteString("\nWhat you know so far:\n")
		for i, s := range priorSummaries {
			fmt.Fprintf(&b, "Round %d: %s\n", i+1, s)
		}
	} else {
		b.WriteString("\nNo research done yet.\n")
	}
	fmt.Fprintf(&b, "\nPropose exactly %d search queries.", queries)
	return b.String()
}

func roundEvalPrompt(obj Objective, round, maxRounds int, priorSummaries []string, evidence string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your objective: %s\n", obj)
	fmt.Fprintf(&b, "Round %d of at most %d.\n", round, maxRounds)
	if len(priorSummaries) > 0 {
		b.WriteString("\nPrevious round summaries:\n")
		for i, s := range priorSummaries {
			fmt.Fprintf(&b, "Round %d: %s\n", i+1, s)
		}
	}
	b.WriteString("\nEvidence gathered this round:\n")
	b.WriteString(evidence)
	if round >= maxRounds {
		b.WriteString("\n\nThis is the final round; decide FINISH unless nothing useful was found.")
	}
	return b.String()
}

func synthesisPrompt(goal Goal, sections []Section, perObjective []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research goal: %s\n", goal.Statement)
	if goal.Scope != "" {
		fmt.Fprintf(&b, "Scope: %s\n", goal.Scope)
	}
	b.WriteString("\nObjectives, in report order:\n")
	for i, s := range sections {
		fmt.Fprintf(&b, "%d. %s", i+1, s.Objective)
		if s.GapNote != "" {
			fmt.Fprintf(&b, " [%s]", s.GapNote)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAgent findings:\n")
	for i, body := range perObjective {
		fmt.Fprintf(&b, "\n--- Objective %d ---\n%s\n", i+1, body)
	}
	return b.String()
}

// correctiveSuffix appends the decode failure from the previous attempt so
// the model can fix its output format.
func correctiveSuffix(prompt, corrective string) string {
	if corrective == "" {
		return prompt
	}
	return prompt + "\n\nYour previous response could not be parsed (" +
		corrective + "). Respond again with valid JSON only, no prose, no code fences."
}
