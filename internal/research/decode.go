package research

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"deepresearch/internal/errors"
)

// stripFences removes markdown code fences models love to wrap JSON in.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// decodeJSON parses model output into out, repairing near-valid JSON
// (trailing commas, single quotes, unquoted keys) before giving up.
func decodeJSON(raw string, out interface{}) error {
	body := stripFences(raw)
	if body == "" {
		return errors.NewMalformedOutputError(raw, "empty response, expected JSON")
	}
	if err := json.Unmarshal([]byte(body), out); err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(body)
	if repairErr != nil {
		return errors.NewMalformedOutputError(raw, "response is not valid JSON")
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return errors.NewMalformedOutputError(raw, "response is not valid JSON")
	}
	return nil
}

type goalSpec struct {
	Statement string `json:"statement"`
	Scope     string `json:"scope"`
}

func parseGoal(raw string) (Goal, error) {
	var spec goalSpec
	if err := decodeJSON(raw, &spec); err != nil {
		return Goal{}, err
	}
	if strings.TrimSpace(spec.Statement) == "" {
		return Goal{}, errors.NewMalformedOutputError(raw, `missing "statement" field`)
	}
	return Goal{
		Statement: strings.TrimSpace(spec.Statement),
		Scope:     strings.TrimSpace(spec.Scope),
	}, nil
}

type objectiveList struct {
	Objectives []string `json:"objectives"`
}

// parseObjectives validates and clamps the objective list to [min, max].
// Fewer than min objectives is malformed; more than max are truncated.
func parseObjectives(raw string, min, max int) ([]Objective, error) {
	var list objectiveList
	if err := decodeJSON(raw, &list); err != nil {
		return nil, err
	}

	objectives := make([]Objective, 0, len(list.Objectives))
	for _, o := range list.Objectives {
		o = strings.TrimSpace(o)
		if o != "" {
			objectives = append(objectives, Objective(o))
		}
	}
	if len(objectives) < min {
		return nil, errors.NewMalformedOutputError(raw,
			fmt.Sprintf("expected at least %d objectives, got %d", min, len(objectives)))
	}
	if len(objectives) > max {
		objectives = objectives[:max]
	}
	return objectives, nil
}

type roundPlan struct {
	Analysis  string   `json:"analysis"`
	Reasoning string   `json:"reasoning"`
	Queries   []string `json:"queries"`
}

// parseRoundPlan validates a reasoning-step response. Blank queries are
// dropped; extras beyond want are truncated; zero usable queries is
// malformed.
func parseRoundPlan(raw string, want int) (roundPlan, error) {
	var plan roundPlan
	if err := decodeJSON(raw, &plan); err != nil {
		return roundPlan{}, err
	}

	queries := make([]string, 0, len(plan.Queries))
	for _, q := range plan.Queries {
		q = strings.TrimSpace(q)
		if q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return roundPlan{}, errors.NewMalformedOutputError(raw, `"queries" must contain at least one query`)
	}
	if len(queries) > want {
		queries = queries[:want]
	}
	plan.Queries = queries
	return plan, nil
}

type roundEval struct {
	Summary  string `json:"summary"`
	Decision string `json:"decision"`
}

// parseRoundEval validates an evaluation-step response. An unrecognized
// decision token defaults to CONTINUE so a confused model only costs rounds,
// never correctness.
func parseRoundEval(raw string) (summary string, decision Decision, err error) {
	var eval roundEval
	if err := decodeJSON(raw, &eval); err != nil {
		return "", DecisionContinue, err
	}
	summary = strings.TrimSpace(eval.Summary)
	if summary == "" {
		return "", DecisionContinue, errors.NewMalformedOutputError(raw, `missing "summary" field`)
	}
	if strings.EqualFold(strings.TrimSpace(eval.Decision), "FINISH") {
		return summary, DecisionFinish, nil
	}
	return summary, DecisionContinue, nil
}
