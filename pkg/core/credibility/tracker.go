// Package credibility maintains per-source reliability aggregates and scores
// candidates by how much their source has earned trust.
package credibility

import (
	"sync"

	"intel_briefing/pkg/core/domain"
)

// SourceReliability is the per-source aggregate.
type SourceReliability struct {
	ReliabilityScore   float64 `json:"reliability"`
	HistoricalAccuracy float64 `json:"accuracy"`
	CorroborationRate  float64 `json:"corroboration"`
	TotalItemsSeen     int     `json:"seen"`
}

// TrustFactor is the weighted mix of the three rates.
func (s SourceReliability) TrustFactor() float64 {
	return 0.5*s.ReliabilityScore + 0.3*s.HistoricalAccuracy + 0.2*s.CorroborationRate
}

// TierSeeds maps source names to their tier; tiers seed the base reliability.
type TierSeeds struct {
	Tier1    []string `json:"tier1"`
	Tier1b   []string `json:"tier1b"`
	Academic []string `json:"academic"`
	Tier2    []string `json:"tier2"`
}

const (
	tier1Base    = 0.92
	tier1bBase   = 0.80
	academicBase = 0.78
	tier2Base    = 0.58
	unknownBase  = 0.50

	corroborationBump = 0.02
	minReliability    = 0.10
)

// DefaultTierSeeds covers the common wire and reference sources out of the
// box; operators extend the tiers through configuration.
func DefaultTierSeeds() TierSeeds {
	return TierSeeds{
		Tier1:    []string{"reuters", "ap", "afp", "bloomberg"},
		Tier1b:   []string{"bbc", "ft", "wsj", "economist"},
		Academic: []string{"nature", "science", "arxiv"},
		Tier2:    []string{"techcrunch", "politico", "axios"},
	}
}

// Tracker holds all source aggregates behind one lock.
type Tracker struct {
	mu      sync.RWMutex
	sources map[string]*SourceReliability
}

// NewTracker seeds the tracker from configured tiers.
func NewTracker(seeds TierSeeds) *Tracker {
	t := &Tracker{sources: make(map[string]*SourceReliability)}
	seed := func(names []string, base float64) {
		for _, name := range names {
			t.sources[name] = &SourceReliability{
				ReliabilityScore:   base,
				HistoricalAccuracy: base,
			}
		}
	}
	seed(seeds.Tier1, tier1Base)
	seed(seeds.Tier1b, tier1bBase)
	seed(seeds.Academic, academicBase)
	seed(seeds.Tier2, tier2Base)
	return t
}

// getOrSeedLocked must be called with t.mu held for writing.
func (t *Tracker) getOrSeedLocked(source string) *SourceReliability {
	s, ok := t.sources[source]
	if !ok {
		s = &SourceReliability{
			ReliabilityScore:   unknownBase,
			HistoricalAccuracy: unknownBase,
		}
		t.sources[source] = s
	}
	if s.ReliabilityScore < minReliability {
		s.ReliabilityScore = minReliability
	}
	return s
}

// RecordItem counts one seen item for the candidate's source.
func (t *Tracker) RecordItem(c domain.Candidate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.getOrSeedLocked(c.Source)
	s.TotalItemsSeen++
}

// RecordCorroboration bumps the corroboration rate of both sources, capped at 1.
func (t *Tracker) RecordCorroboration(a, b string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range []string{a, b} {
		s := t.getOrSeedLocked(name)
		s.CorroborationRate += corroborationBump
		if s.CorroborationRate > 1 {
			s.CorroborationRate = 1
		}
	}
}

// ScoreCandidate mixes the source trust factor with the candidate's own
// evidence score.
func (t *Tracker) ScoreCandidate(c domain.Candidate) float64 {
	return 0.6*t.TrustFactor(c.Source) + 0.4*c.Evidence
}

// TrustFactor returns the trust factor for a source (unknown sources get the
// neutral base).
func (t *Tracker) TrustFactor(source string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.sources[source]; ok {
		return s.TrustFactor()
	}
	return SourceReliability{
		ReliabilityScore:   unknownBase,
		HistoricalAccuracy: unknownBase,
	}.TrustFactor()
}

// Snapshot copies all aggregates for persistence and analytics.
func (t *Tracker) Snapshot() map[string]SourceReliability {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]SourceReliability, len(t.sources))
	for name, s := range t.sources {
		out[name] = *s
	}
	return out
}

// Restore loads persisted aggregates, clamping out-of-range rates.
func (t *Tracker) Restore(snapshot map[string]SourceReliability) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, s := range snapshot {
		if name == "" {
			continue
		}
		rec := s
		rec.ReliabilityScore = clamp01(rec.ReliabilityScore)
		rec.HistoricalAccuracy = clamp01(rec.HistoricalAccuracy)
		rec.CorroborationRate = clamp01(rec.CorroborationRate)
		if rec.TotalItemsSeen < 0 {
			rec.TotalItemsSeen = 0
		}
		t.sources[name] = &rec
	}
}

func clamp01(v float64) float64 {
	if v != v || v < 0 { // NaN or negative
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
