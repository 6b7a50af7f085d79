package research

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/optimizer"
)

// FanOut runs every admissible agent concurrently and merges their candidates.
// The returned map records which agents failed this request. Agents that are
// administratively disabled or whose circuit breaker refuses them are skipped
// and do not appear in the failed map.
func FanOut(ctx context.Context, agents []Agent, task Task, opt *optimizer.Optimizer, perAgentTimeout time.Duration) ([]domain.Candidate, map[string]bool) {
	var mu sync.Mutex
	merged := make([]domain.Candidate, 0, len(agents)*4)
	failed := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)

	for _, agent := range agents {
		id := agent.ID()
		if opt != nil {
			if opt.IsDisabled(id) {
				log.Debug().Str("agent", id).Msg("agent disabled, skipping")
				continue
			}
			if !opt.Breakers.Allow(id) {
				log.Debug().Str("agent", id).Msg("circuit breaker refused agent")
				continue
			}
		}

		g.Go(func() error {
			start := time.Now()
			candidates, err := runAgent(gctx, agent, task, perAgentTimeout)
			latencyMS := float64(time.Since(start).Milliseconds())

			mu.Lock()
			if err != nil {
				failed[id] = true
				log.Warn().Err(err).Str("agent", id).Str("request", task.RequestID).Msg("research agent failed")
			} else {
				merged = append(merged, candidates...)
			}
			mu.Unlock()

			if opt != nil {
				opt.RecordAgentRun(id, len(candidates), latencyMS, err != nil)
			}
			return nil
		})
	}

	_ = g.Wait()
	return merged, failed
}

// runAgent wraps one agent call with its timeout and panic recovery; a panic
// in agent code is reported as an error for that agent only.
func runAgent(ctx context.Context, agent Agent, task Task, timeout time.Duration) (candidates []domain.Candidate, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("agent", agent.ID()).Msg("research agent panicked")
			candidates = nil
			err = &agentPanicError{agentID: agent.ID(), value: r}
		}
	}()

	return agent.Search(ctx, task)
}

type agentPanicError struct {
	agentID string
	value   interface{}
}

func (e *agentPanicError) Error() string {
	return "agent " + e.agentID + " panicked during search"
}
