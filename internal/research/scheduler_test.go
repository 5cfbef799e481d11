package research

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ierr "deepresearch/internal/errors"
)

// fakeRunner completes objectives with scripted outcomes and per-index
// delays, to scramble completion order.
type fakeRunner struct {
	delays   map[int]time.Duration
	statuses map[int]Status
}

func (f *fakeRunner) Run(ctx context.Context, index int, obj Objective, goal Goal) SubAgentResult {
	if d, ok := f.delays[index]; ok {
		time.Sleep(d)
	}
	status := StatusOK
	if s, ok := f.statuses[index]; ok {
		status = s
	}
	result := SubAgentResult{Index: index, Objective: obj, Status: status}
	if status == StatusFailed {
		result.Err = fmt.Errorf("objective %d broke", index)
		return result
	}
	result.Findings = []Finding{{Text: "finding for " + string(obj), SourceURL: "https://example.com"}}
	result.Rounds = []RoundOutcome{{Round: 1, Summary: "summary for " + string(obj), Decision: DecisionFinish}}
	return result
}

func TestSchedulerPreservesObjectiveOrder(t *testing.T) {
	// First objective finishes last; order must not change.
	runner := &fakeRunner{delays: map[int]time.Duration{
		0: 30 * time.Millisecond,
		1: 10 * time.Millisecond,
		2: 0,
	}}
	scheduler := NewScheduler(runner, nil, nil)

	objectives := []Objective{"A", "B", "C"}
	results, err := scheduler.Run(context.Background(), Goal{Statement: "g"}, objectives)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, obj := range objectives {
		require.Equal(t, i, results[i].Index)
		require.Equal(t, obj, results[i].Objective)
	}
}

func TestSchedulerRunsObjectivesConcurrently(t *testing.T) {
	runner := &fakeRunner{delays: map[int]time.Duration{
		0: 50 * time.Millisecond,
		1: 50 * time.Millisecond,
		2: 50 * time.Millisecond,
	}}
	scheduler := NewScheduler(runner, nil, nil)

	start := time.Now()
	_, err := scheduler.Run(context.Background(), Goal{}, []Objective{"A", "B", "C"})
	require.NoError(t, err)
	// Serial execution would take 150ms+.
	require.Less(t, time.Since(start), 120*time.Millisecond)
}

func TestSchedulerToleratesPartialFailure(t *testing.T) {
	runner := &fakeRunner{statuses: map[int]Status{
		1: StatusFailed,
		2: StatusDegraded,
	}}
	scheduler := NewScheduler(runner, nil, nil)

	results, err := scheduler.Run(context.Background(), Goal{}, []Objective{"A", "B", "C"})
	require.NoError(t, err)
	require.Equal(t, StatusOK, results[0].Status)
	require.Equal(t, StatusFailed, results[1].Status)
	require.Equal(t, StatusDegraded, results[2].Status)
}

func TestSchedulerReportsTotalFailure(t *testing.T) {
	runner := &fakeRunner{statuses: map[int]Status{
		0: StatusFailed,
		1: StatusFailed,
		2: StatusFailed,
	}}
	scheduler := NewScheduler(runner, nil, nil)

	results, err := scheduler.Run(context.Background(), Goal{}, []Objective{"A", "B", "C"})
	require.Error(t, err)

	var total *ierr.TotalFailureError
	require.ErrorAs(t, err, &total)
	require.Len(t, total.Failures, 3)
	require.Equal(t, "B", total.Failures[1].Objective)
	require.Contains(t, total.Failures[1].Err.Error(), "objective 1 broke")
	// Results still come back for the failure report.
	require.Len(t, results, 3)
}
