package intel

import (
	"sort"
	"strings"
	"sync"

	"intel_briefing/pkg/core/domain"
)

// TrendConfig tunes the per-topic velocity anomaly detector.
type TrendConfig struct {
	BaselineDecay    float64 `json:"baseline_decay"`    // weight kept from the old baseline
	AnomalyThreshold float64 `json:"anomaly_threshold"` // velocity/baseline ratio for "emerging"
	MaxTopics        int     `json:"max_topics"`
}

func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		BaselineDecay:    0.8,
		AnomalyThreshold: 2.0,
		MaxTopics:        500,
	}
}

// baselineFloor prevents division spikes after heavy decay: the anomaly score
// can never exceed velocity/0.1 regardless of baseline history.
const baselineFloor = 0.1

type topicBaseline struct {
	velocity float64
}

// TrendDetector maintains exponentially decayed per-topic baselines with an
// LRU cap on the topic table.
type TrendDetector struct {
	cfg TrendConfig

	mu        sync.Mutex
	baselines map[string]*topicBaseline
	order     []string // LRU order, oldest first
}

func NewTrendDetector(cfg TrendConfig) *TrendDetector {
	if cfg.MaxTopics <= 0 {
		cfg.MaxTopics = 500
	}
	if cfg.BaselineDecay <= 0 || cfg.BaselineDecay >= 1 {
		cfg.BaselineDecay = 0.8
	}
	return &TrendDetector{cfg: cfg, baselines: make(map[string]*topicBaseline)}
}

// Observe folds the current window's candidates into the baselines and
// returns a signal per topic seen, sorted by anomaly score descending.
func (d *TrendDetector) Observe(candidates []domain.Candidate) []domain.TrendSignal {
	velocity := make(map[string]float64)
	for i := range candidates {
		topic := strings.ToLower(candidates[i].Topic)
		if topic == "" {
			continue
		}
		velocity[topic]++
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]domain.TrendSignal, 0, len(velocity))
	for topic, v := range velocity {
		b := d.touchLocked(topic)

		base := b.velocity
		if base < baselineFloor {
			base = baselineFloor
		}
		anomaly := v / base

		out = append(out, domain.TrendSignal{
			Topic:        topic,
			Velocity:     v,
			Baseline:     b.velocity,
			AnomalyScore: anomaly,
			IsEmerging:   anomaly >= d.cfg.AnomalyThreshold && v > 0,
		})

		b.velocity = d.cfg.BaselineDecay*b.velocity + (1-d.cfg.BaselineDecay)*v
		if b.velocity < baselineFloor {
			b.velocity = baselineFloor
		}
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].AnomalyScore != out[b].AnomalyScore {
			return out[a].AnomalyScore > out[b].AnomalyScore
		}
		return out[a].Topic < out[b].Topic
	})
	return out
}

// touchLocked returns (creating if needed) the baseline for a topic, evicting
// the least recently seen topic at capacity. Caller holds d.mu.
func (d *TrendDetector) touchLocked(topic string) *topicBaseline {
	b, ok := d.baselines[topic]
	if ok {
		for i, t := range d.order {
			if t == topic {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
		d.order = append(d.order, topic)
		return b
	}

	if len(d.baselines) >= d.cfg.MaxTopics && len(d.order) > 0 {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.baselines, oldest)
	}
	b = &topicBaseline{velocity: baselineFloor}
	d.baselines[topic] = b
	d.order = append(d.order, topic)
	return b
}

// Snapshot returns baseline velocities per topic for persistence.
func (d *TrendDetector) Snapshot() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]float64, len(d.baselines))
	for topic, b := range d.baselines {
		out[topic] = b.velocity
	}
	return out
}

// Restore loads persisted baselines, flooring invalid values.
func (d *TrendDetector) Restore(snapshot map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for topic, v := range snapshot {
		if topic == "" || v != v || v < 0 {
			continue
		}
		if v < baselineFloor {
			v = baselineFloor
		}
		b := d.touchLocked(topic)
		b.velocity = v
	}
}

// ForceBaseline overrides a topic's baseline. Test hook.
func (d *TrendDetector) ForceBaseline(topic string, v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.touchLocked(strings.ToLower(topic))
	b.velocity = v
}
