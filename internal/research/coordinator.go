package research

import (
	"context"
	"fmt"
	"time"

	"deepresearch/internal/config"
	"deepresearch/internal/llm"
	"deepresearch/internal/logging"
	"deepresearch/internal/metrics"
	"deepresearch/internal/retry"
)

// Coordinator turns a raw user query into a goal and a set of parallel
// research objectives.
type Coordinator struct {
	client    llm.Client
	model     string
	maxObjs   int
	exec      *retry.Executor
	collector *metrics.Collector
	logger    logging.Logger
}

// NewCoordinator creates a coordinator. maxObjectives is clamped into the
// configured bounds.
func NewCoordinator(client llm.Client, model string, maxObjectives int, exec *retry.Executor, collector *metrics.Collector, logger logging.Logger) *Coordinator {
	if maxObjectives < config.MinObjectives {
		maxObjectives = config.MinObjectives
	}
	if maxObjectives > config.MaxObjectives {
		maxObjectives = config.MaxObjectives
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Coordinator{
		client:    client,
		model:     model,
		maxObjs:   maxObjectives,
		exec:      exec,
		collector: collector,
		logger:    logging.OrNop(logger),
	}
}

func (c *Coordinator) complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	resp, err := c.client.Complete(ctx, llm.Request{
		Model:       c.model,
		System:      system,
		Prompt:      prompt,
		Temperature: 0.2,
	})
	if c.collector != nil {
		c.collector.RecordLLMCall(time.Since(start), err)
	}
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// DefineGoal clarifies a raw query into a goal statement. When the model
// cannot produce one, the raw query itself becomes the goal so the run can
// proceed.
func (c *Coordinator) DefineGoal(ctx context.Context, query string) Goal {
	defer c.collector.StartSpan("define_goal")()

	goal, err := retry.DoDecoded(ctx, c.exec, "define_goal",
		func(ctx context.Context, corrective string) (Goal, error) {
			raw, err := c.complete(ctx, goalSystem, correctiveSuffix(goalPrompt(query), corrective))
			if err != nil {
				return Goal{}, err
			}
			return parseGoal(raw)
		})
	if err != nil {
		c.logger.Warn("goal definition failed, using raw query: %v", err)
		if c.collector != nil {
			c.collector.Warning(fmt.Sprintf("goal definition failed: %v", err))
		}
		return Goal{Statement: query}
	}
	c.logger.Info("goal: %s", goal.Statement)
	return goal
}

// IdentifyObjectives decomposes the goal into parallel objectives, between
// the minimum bound and the configured maximum. When decomposition fails
// entirely, the goal itself becomes the single objective of a degraded run.
func (c *Coordinator) IdentifyObjectives(ctx context.Context, goal Goal) []Objective {
	defer c.collector.StartSpan("identify_objectives")()

	objectives, err := retry.DoDecoded(ctx, c.exec, "identify_objectives",
		func(ctx context.Context, corrective string) ([]Objective, error) {
			prompt := correctiveSuffix(objectivesPrompt(goal, config.MinObjectives, c.maxObjs), corrective)
			raw, err := c.complete(ctx, objectivesSystem, prompt)
			if err != nil {
				return nil, err
			}
			return parseObjectives(raw, config.MinObjectives, c.maxObjs)
		})
	if err != nil {
		c.logger.Warn("objective decomposition failed, researching goal directly: %v", err)
		if c.collector != nil {
			c.collector.Warning(fmt.Sprintf("objective decomposition failed: %v", err))
		}
		return []Objective{Objective(goal.Statement)}
	}
	c.logger.Info("objectives: %d", len(objectives))
	for i, o := range objectives {
		c.logger.Debug("objective %d: %s", i+1, o)
	}
	return objectives
}
