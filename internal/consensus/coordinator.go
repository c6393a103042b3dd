package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"consensus-backend/internal/llm"
	"consensus-backend/internal/shared/metrics"
	"consensus-backend/internal/shared/telemetry"
)

// Coordinator runs one framework against several providers concurrently and
// collects every outcome, successful or not.
type Coordinator struct {
	adapters llm.Registry
	scorer   Scorer
	now      func() time.Time
}

// NewCoordinator builds a coordinator over a fixed adapter registry.
func NewCoordinator(adapters llm.Registry, scorer Scorer) *Coordinator {
	if scorer == nil {
		scorer = NewHeuristicScorer(nil)
	}
	return &Coordinator{adapters: adapters, scorer: scorer, now: time.Now}
}

// Run calls every requested provider once and waits for all of them. A
// failing, panicking, or unknown provider yields a zero-confidence result
// carrying the error text; it never affects its siblings.
func (c *Coordinator) Run(ctx context.Context, frameworkID, promptContext string, providerIDs []string) map[string]ProviderResult {
	ids := dedupe(providerIDs)
	results := make(map[string]ProviderResult, len(ids))
	var mu sync.Mutex

	// Tasks always return nil so one failure never cancels the rest.
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			res := c.runOne(ctx, id, frameworkID, promptContext)
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Coordinator) runOne(ctx context.Context, providerID, frameworkID, promptContext string) (res ProviderResult) {
	start := c.now()
	defer func() {
		if rec := recover(); rec != nil {
			res = failedResult(fmt.Errorf("provider %s panicked: %v", providerID, rec), c.elapsed(start))
		}
		outcome := "ok"
		if res.Error != "" {
			outcome = "error"
			telemetry.Warn("provider.failed", map[string]any{
				"provider":  providerID,
				"framework": frameworkID,
				"error":     res.Error,
			})
		}
		metrics.IncProviderCall(providerID, outcome)
		metrics.ObserveProviderCallMs(res.ProcessingTime * 1000)
	}()

	adapter, ok := c.adapters.Get(providerID)
	if !ok {
		return failedResult(fmt.Errorf("unknown provider: %s", providerID), 0)
	}
	payload, err := adapter.Analyze(ctx, promptContext, frameworkID)
	if err != nil {
		return failedResult(err, c.elapsed(start))
	}
	if payload == nil {
		payload = llm.Payload{}
	}
	return ProviderResult{
		Analysis:        payload,
		ConfidenceScore: c.scorer.Score(payload, frameworkID),
		ProcessingTime:  c.elapsed(start),
	}
}

func (c *Coordinator) elapsed(start time.Time) float64 {
	return c.now().Sub(start).Seconds()
}

func failedResult(err error, seconds float64) ProviderResult {
	return ProviderResult{
		Analysis:        llm.Payload{},
		ConfidenceScore: 0,
		ProcessingTime:  seconds,
		Error:           err.Error(),
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
