package research

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"deepresearch/internal/errors"
	"deepresearch/internal/logging"
	"deepresearch/internal/metrics"
)

// ObjectiveRunner researches one objective. Implementations must absorb
// their own failures into the returned result.
type ObjectiveRunner interface {
	Run(ctx context.Context, index int, obj Objective, goal Goal) SubAgentResult
}

// Scheduler fans one sub-agent out per objective and collects their results
// in objective order, regardless of completion order.
type Scheduler struct {
	runner    ObjectiveRunner
	collector *metrics.Collector
	logger    logging.Logger
}

// NewScheduler creates a scheduler over the given runner.
func NewScheduler(runner ObjectiveRunner, collector *metrics.Collector, logger logging.Logger) *Scheduler {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Scheduler{
		runner:    runner,
		collector: collector,
		logger:    logging.OrNop(logger),
	}
}

// Run executes all objectives concurrently. Results come back indexed by
// objective so downstream ordering is deterministic. The only error returned
// is *errors.TotalFailureError, when every objective failed.
func (s *Scheduler) Run(ctx context.Context, goal Goal, objectives []Objective) ([]SubAgentResult, error) {
	defer s.collector.StartSpan("scheduler")()

	results := make([]SubAgentResult, len(objectives))

	g, gctx := errgroup.WithContext(ctx)
	for i, obj := range objectives {
		i, obj := i, obj
		g.Go(func() error {
			start := time.Now()
			results[i] = s.runner.Run(gctx, i, obj, goal)
			s.logger.Info("objective %d/%d done in %v: %s, %d findings",
				i+1, len(objectives), time.Since(start).Round(time.Millisecond),
				results[i].Status, len(results[i].Findings))
			// Sub-agent failures are carried in the result, never as an
			// error, so sibling agents are not cancelled.
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Status == StatusFailed {
			failed++
		}
	}
	if failed == len(results) && len(results) > 0 {
		failures := make([]errors.ObjectiveFailure, len(results))
		for i, r := range results {
			err := r.Err
			if err == nil {
				err = fmt.Errorf("no findings produced")
			}
			failures[i] = errors.ObjectiveFailure{
				Index:     r.Index,
				Objective: string(r.Objective),
				Err:       err,
			}
		}
		return results, &errors.TotalFailureError{Failures: failures, At: time.Now()}
	}
	return results, nil
}
