package optimizer

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Thresholds gate when Analyze emits a recommendation. An agent needs at
// least MinRuns history before any rule fires.
type Thresholds struct {
	MinRuns          int     `json:"min_runs"`
	MaxErrorRate     float64 `json:"max_error_rate"`
	MinAvgYield      float64 `json:"min_avg_yield"`
	MinKeepRate      float64 `json:"min_keep_rate"`
	MaxAvgLatencyMS  float64 `json:"max_avg_latency_ms"`
	MaxStageFailRate float64 `json:"max_stage_fail_rate"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinRuns:          3,
		MaxErrorRate:     0.5,
		MinAvgYield:      0.5,
		MinKeepRate:      0.1,
		MaxAvgLatencyMS:  10000,
		MaxStageFailRate: 0.3,
	}
}

// zeroYieldStreakLimit is how many consecutive empty runs mark a source as
// silently broken.
const zeroYieldStreakLimit = 5

// Recommendation is one corrective action the optimizer proposes.
type Recommendation struct {
	Target   string  `json:"target"` // agent id or stage name
	Kind     string  `json:"kind"`   // disable_agent | reduce_weight | investigate_stage
	Severity string  `json:"severity"`
	Reason   string  `json:"reason"`
	Metric   float64 `json:"metric"`
}

// Analyze walks the metric tables and returns recommendations, worst first.
func (o *Optimizer) Analyze() []Recommendation {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []Recommendation
	agentIDs := make([]string, 0, len(o.agents))
	for id := range o.agents {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)

	for _, id := range agentIDs {
		m := o.agents[id]
		if m.TotalRuns < o.cfg.MinRuns {
			continue
		}

		if m.ZeroYieldStreak >= zeroYieldStreakLimit {
			out = append(out, Recommendation{
				Target:   id,
				Kind:     "disable_agent",
				Severity: "high",
				Reason:   fmt.Sprintf("%d consecutive zero-yield runs; source may be silently broken", m.ZeroYieldStreak),
				Metric:   float64(m.ZeroYieldStreak),
			})
		}
		if rate := m.ErrorRate(); rate > o.cfg.MaxErrorRate {
			out = append(out, Recommendation{
				Target:   id,
				Kind:     "disable_agent",
				Severity: "medium",
				Reason:   fmt.Sprintf("error rate %.0f%% exceeds threshold", rate*100),
				Metric:   rate,
			})
		}
		if y := m.AvgYield(); y < o.cfg.MinAvgYield {
			out = append(out, Recommendation{
				Target:   id,
				Kind:     "reduce_weight",
				Severity: "low",
				Reason:   fmt.Sprintf("average yield %.2f candidates per run below threshold", y),
				Metric:   y,
			})
		}
		if m.TotalCandidates >= 10 {
			if kr := m.KeepRate(); kr < o.cfg.MinKeepRate {
				out = append(out, Recommendation{
					Target:   id,
					Kind:     "reduce_weight",
					Severity: "low",
					Reason:   fmt.Sprintf("keep rate %.0f%% below threshold over %d candidates", kr*100, m.TotalCandidates),
					Metric:   kr,
				})
			}
		}
		if lat := m.AvgLatencyMS(); lat > o.cfg.MaxAvgLatencyMS {
			out = append(out, Recommendation{
				Target:   id,
				Kind:     "reduce_weight",
				Severity: "medium",
				Reason:   fmt.Sprintf("average latency %.0fms exceeds threshold", lat),
				Metric:   lat,
			})
		}
	}

	stageNames := make([]string, 0, len(o.stages))
	for name := range o.stages {
		stageNames = append(stageNames, name)
	}
	sort.Strings(stageNames)
	for _, name := range stageNames {
		m := o.stages[name]
		if m.TotalRuns < o.cfg.MinRuns {
			continue
		}
		if fr := m.FailureRate(); fr > o.cfg.MaxStageFailRate {
			out = append(out, Recommendation{
				Target:   name,
				Kind:     "investigate_stage",
				Severity: "medium",
				Reason:   fmt.Sprintf("stage failure rate %.0f%% exceeds threshold", fr*100),
				Metric:   fr,
			})
		}
	}

	severityRank := map[string]int{"high": 0, "medium": 1, "low": 2}
	sort.SliceStable(out, func(a, b int) bool {
		return severityRank[out[a].Severity] < severityRank[out[b].Severity]
	})
	return out
}

// ApplyRecommendations acts on the current analysis: weight reductions always
// apply; agent disables require autoDisable. Every action is logged.
func (o *Optimizer) ApplyRecommendations(autoDisable bool) []Recommendation {
	recs := o.Analyze()

	o.mu.Lock()
	defer o.mu.Unlock()

	var applied []Recommendation
	for _, r := range recs {
		switch r.Kind {
		case "disable_agent":
			if !autoDisable {
				continue
			}
			o.disabledAgents[r.Target] = true
			log.Warn().Str("agent", r.Target).Str("reason", r.Reason).Msg("agent disabled by optimizer")
		case "reduce_weight":
			current := 1.0
			if w, ok := o.weightOverrides[r.Target]; ok {
				current = w
			}
			next := current * 0.5
			if next < 0.1 {
				next = 0.1
			}
			o.weightOverrides[r.Target] = next
			log.Info().Str("agent", r.Target).Float64("weight", next).Str("reason", r.Reason).Msg("agent weight reduced")
		default:
			continue
		}
		applied = append(applied, r)
	}
	return applied
}

// Snapshot is the persisted optimizer state.
type Snapshot struct {
	DisabledAgents  map[string]bool        `json:"disabled_agents"`
	WeightOverrides map[string]float64     `json:"weight_overrides"`
	Agents          map[string]AgentMetric `json:"agents"`
}

// Persist captures the optimizer's state for optimizer.json.
func (o *Optimizer) Persist() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		DisabledAgents:  make(map[string]bool, len(o.disabledAgents)),
		WeightOverrides: make(map[string]float64, len(o.weightOverrides)),
		Agents:          make(map[string]AgentMetric, len(o.agents)),
	}
	for id, v := range o.disabledAgents {
		snap.DisabledAgents[id] = v
	}
	for id, w := range o.weightOverrides {
		snap.WeightOverrides[id] = w
	}
	for id, m := range o.agents {
		snap.Agents[id] = *m
	}
	return snap
}

// Restore loads persisted state, discarding malformed entries.
func (o *Optimizer) Restore(snap Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for id, v := range snap.DisabledAgents {
		if id != "" && v {
			o.disabledAgents[id] = true
		}
	}
	for id, w := range snap.WeightOverrides {
		if id == "" || w != w || w <= 0 || w > 1 {
			continue
		}
		o.weightOverrides[id] = w
	}
	for id, m := range snap.Agents {
		if id == "" || m.TotalRuns < 0 {
			continue
		}
		copied := m
		o.agents[id] = &copied
	}
}
