package intel

import (
	"strings"
	"sync"
	"time"

	"intel_briefing/pkg/core/domain"
)

// UrgencyConfig tunes the urgency/lifecycle detector.
type UrgencyConfig struct {
	CriticalKeywords []string `json:"critical_keywords"`
	BreakingKeywords []string `json:"breaking_keywords"`
	ElevatedKeywords []string `json:"elevated_keywords"`

	VelocityWindowMinutes   int     `json:"velocity_window_minutes"`
	BreakingSourceThreshold int     `json:"breaking_source_threshold"`
	RecencyElevatedMinutes  int     `json:"recency_elevated_minutes"`
	WaningNoveltyThreshold  float64 `json:"waning_novelty_threshold"`
	MaxTopics               int     `json:"max_topics"`
}

func DefaultUrgencyConfig() UrgencyConfig {
	return UrgencyConfig{
		CriticalKeywords: []string{"nuclear", "invasion", "assassination", "state of emergency", "mass casualty"},
		BreakingKeywords: []string{"breaking", "just in", "explosion", "crash", "resigns", "coup", "default"},
		ElevatedKeywords: []string{"warns", "sanctions", "escalat", "probe", "recall", "outage", "strike"},

		VelocityWindowMinutes:   90,
		BreakingSourceThreshold: 3,
		RecencyElevatedMinutes:  30,
		WaningNoveltyThreshold:  0.2,
		MaxTopics:               500,
	}
}

// topicState tracks per-topic activity across requests so lifecycle stages
// can compare against the previous window.
type topicState struct {
	lastVelocity int
	lastSeen     time.Time
}

// UrgencyDetector assigns urgency and lifecycle to candidates using keyword
// hits, per-topic source velocity, and recency.
type UrgencyDetector struct {
	cfg UrgencyConfig

	mu     sync.Mutex
	topics map[string]*topicState
	order  []string // LRU order, oldest first
}

func NewUrgencyDetector(cfg UrgencyConfig) *UrgencyDetector {
	if cfg.MaxTopics <= 0 {
		cfg.MaxTopics = 500
	}
	return &UrgencyDetector{cfg: cfg, topics: make(map[string]*topicState)}
}

// keywordUrgency scans title+summary against the configured keyword lists.
func (d *UrgencyDetector) keywordUrgency(c *domain.Candidate) domain.Urgency {
	text := strings.ToLower(c.Title + " " + c.Summary)
	contains := func(words []string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}
	switch {
	case contains(d.cfg.CriticalKeywords):
		return domain.UrgencyCritical
	case contains(d.cfg.BreakingKeywords):
		return domain.UrgencyBreaking
	case contains(d.cfg.ElevatedKeywords):
		return domain.UrgencyElevated
	default:
		return domain.UrgencyRoutine
	}
}

// raise bumps urgency one notch, saturating at critical.
func raise(u domain.Urgency) domain.Urgency {
	switch u {
	case domain.UrgencyRoutine:
		return domain.UrgencyElevated
	case domain.UrgencyElevated:
		return domain.UrgencyBreaking
	default:
		return domain.UrgencyCritical
	}
}

// Detect classifies the batch in place and returns it.
func (d *UrgencyDetector) Detect(candidates []domain.Candidate, now time.Time) []domain.Candidate {
	window := time.Duration(d.cfg.VelocityWindowMinutes) * time.Minute

	// Velocity: distinct sources per topic within the window.
	sourcesByTopic := make(map[string]map[string]bool)
	noveltySum := make(map[string]float64)
	noveltyCount := make(map[string]int)
	for i := range candidates {
		c := &candidates[i]
		topic := strings.ToLower(c.Topic)
		if now.Sub(c.CreatedAt) <= window {
			if sourcesByTopic[topic] == nil {
				sourcesByTopic[topic] = make(map[string]bool)
			}
			sourcesByTopic[topic][c.Source] = true
		}
		noveltySum[topic] += c.Novelty
		noveltyCount[topic]++
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range candidates {
		c := &candidates[i]
		topic := strings.ToLower(c.Topic)
		velocity := len(sourcesByTopic[topic])

		urgency := d.keywordUrgency(c)
		if velocity >= d.cfg.BreakingSourceThreshold {
			urgency = raise(urgency)
		}
		if now.Sub(c.CreatedAt) <= time.Duration(d.cfg.RecencyElevatedMinutes)*time.Minute {
			urgency = domain.MaxUrgency(urgency, domain.UrgencyElevated)
		}
		c.Urgency = domain.MaxUrgency(c.Urgency, urgency)

		state := d.touchLocked(topic, now)
		meanNovelty := 0.0
		if noveltyCount[topic] > 0 {
			meanNovelty = noveltySum[topic] / float64(noveltyCount[topic])
		}
		c.Lifecycle = classifyLifecycle(state, velocity, meanNovelty, now, window, d.cfg.WaningNoveltyThreshold)
	}

	// Commit this window's velocities after classification so "rising" is
	// judged against the previous request, not this one.
	for topic, srcs := range sourcesByTopic {
		if state, ok := d.topics[topic]; ok {
			state.lastVelocity = len(srcs)
			state.lastSeen = now
		}
	}

	return candidates
}

func classifyLifecycle(state *topicState, velocity int, meanNovelty float64, now time.Time, window time.Duration, waningThreshold float64) domain.Lifecycle {
	switch {
	case state.lastSeen.IsZero():
		return domain.LifecycleDeveloping
	case now.Sub(state.lastSeen) > window:
		return domain.LifecycleResolved
	case velocity > state.lastVelocity:
		return domain.LifecycleBreaking
	case meanNovelty < waningThreshold:
		return domain.LifecycleWaning
	default:
		return domain.LifecycleOngoing
	}
}

// touchLocked returns the topic state, creating it and LRU-evicting when the
// topic table exceeds the cap. Caller holds d.mu.
func (d *UrgencyDetector) touchLocked(topic string, now time.Time) *topicState {
	state, ok := d.topics[topic]
	if ok {
		for i, t := range d.order {
			if t == topic {
				d.order = append(d.order[:i], d.order[i+1:]...)
				break
			}
		}
		d.order = append(d.order, topic)
		return state
	}

	if len(d.topics) >= d.cfg.MaxTopics && len(d.order) > 0 {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.topics, oldest)
	}
	state = &topicState{}
	d.topics[topic] = state
	d.order = append(d.order, topic)
	return state
}
