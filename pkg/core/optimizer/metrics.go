package optimizer

import (
	"sync"
)

// AgentMetric accumulates one research agent's lifetime counters.
type AgentMetric struct {
	TotalRuns       int     `json:"total_runs"`
	TotalCandidates int     `json:"total_candidates"`
	TotalSelected   int     `json:"total_selected"`
	TotalLatencyMS  float64 `json:"total_latency_ms"`
	ErrorCount      int     `json:"error_count"`
	ZeroYieldStreak int     `json:"zero_yield_streak"`
	TotalZeroYields int     `json:"total_zero_yields"`
}

// AvgLatencyMS is mean latency across runs; zero when no runs.
func (m AgentMetric) AvgLatencyMS() float64 {
	if m.TotalRuns == 0 {
		return 0
	}
	return m.TotalLatencyMS / float64(m.TotalRuns)
}

// AvgYield is mean candidates per run.
func (m AgentMetric) AvgYield() float64 {
	if m.TotalRuns == 0 {
		return 0
	}
	return float64(m.TotalCandidates) / float64(m.TotalRuns)
}

// KeepRate is the share of proposed candidates that made a briefing.
func (m AgentMetric) KeepRate() float64 {
	if m.TotalCandidates == 0 {
		return 0
	}
	return float64(m.TotalSelected) / float64(m.TotalCandidates)
}

// ErrorRate is the share of runs that errored.
func (m AgentMetric) ErrorRate() float64 {
	if m.TotalRuns == 0 {
		return 0
	}
	return float64(m.ErrorCount) / float64(m.TotalRuns)
}

// StageMetric accumulates a pipeline stage's run and failure counts.
type StageMetric struct {
	TotalRuns    int     `json:"total_runs"`
	FailureCount int     `json:"failure_count"`
	TotalSeconds float64 `json:"total_seconds"`
}

func (m StageMetric) FailureRate() float64 {
	if m.TotalRuns == 0 {
		return 0
	}
	return float64(m.FailureCount) / float64(m.TotalRuns)
}

// Optimizer collects metrics, holds agent disable/weight state, and owns the
// breaker set. One lock guards the metric maps.
type Optimizer struct {
	cfg      Thresholds
	Breakers *BreakerSet

	mu              sync.Mutex
	agents          map[string]*AgentMetric
	stages          map[string]*StageMetric
	disabledAgents  map[string]bool
	weightOverrides map[string]float64
}

func New(cfg Thresholds, breakerCfg BreakerConfig) *Optimizer {
	return &Optimizer{
		cfg:             cfg,
		Breakers:        NewBreakerSet(breakerCfg),
		agents:          make(map[string]*AgentMetric),
		stages:          make(map[string]*StageMetric),
		disabledAgents:  make(map[string]bool),
		weightOverrides: make(map[string]float64),
	}
}

func (o *Optimizer) agentLocked(id string) *AgentMetric {
	m, ok := o.agents[id]
	if !ok {
		m = &AgentMetric{}
		o.agents[id] = m
	}
	return m
}

// RecordAgentRun folds one fan-out result into the agent's counters and the
// circuit breaker.
func (o *Optimizer) RecordAgentRun(agentID string, candidates int, latencyMS float64, failed bool) {
	o.mu.Lock()
	m := o.agentLocked(agentID)
	m.TotalRuns++
	m.TotalLatencyMS += latencyMS
	if failed {
		m.ErrorCount++
	} else {
		m.TotalCandidates += candidates
		if candidates == 0 {
			m.ZeroYieldStreak++
			m.TotalZeroYields++
		} else {
			m.ZeroYieldStreak = 0
		}
	}
	o.mu.Unlock()

	if failed {
		o.Breakers.RecordFailure(agentID)
	} else {
		o.Breakers.RecordSuccess(agentID)
	}
}

// RecordSelection credits an agent for a candidate that made the briefing.
func (o *Optimizer) RecordSelection(agentID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.agentLocked(agentID).TotalSelected++
}

// RecordStage folds one stage execution into its counters.
func (o *Optimizer) RecordStage(stage string, seconds float64, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.stages[stage]
	if !ok {
		m = &StageMetric{}
		o.stages[stage] = m
	}
	m.TotalRuns++
	m.TotalSeconds += seconds
	if failed {
		m.FailureCount++
	}
}

// IsDisabled reports whether an agent has been administratively disabled.
func (o *Optimizer) IsDisabled(agentID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disabledAgents[agentID]
}

// WeightOverride returns the agent's weight multiplier (1.0 when unset).
func (o *Optimizer) WeightOverride(agentID string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if w, ok := o.weightOverrides[agentID]; ok {
		return w
	}
	return 1.0
}

// AgentSnapshot returns a copy of one agent's metrics.
func (o *Optimizer) AgentSnapshot(agentID string) AgentMetric {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m, ok := o.agents[agentID]; ok {
		return *m
	}
	return AgentMetric{}
}
