// Package prefs owns per-user configuration and learned state: weights,
// filters, collections, and the optimistic version counter every mutation bumps.
package prefs

import (
	"math"
	"time"
)

const (
	MaxWeights       = 100
	MaxTrackedStores = 20
	MaxBookmarks     = 50
	MaxCustomSources = 10
	MaxPresets       = 10
)

// UserProfile is the per-user configuration and learned state. All mutation
// goes through the Store so the version counter stays consistent.
type UserProfile struct {
	UserID string `json:"user_id"`

	TopicWeights  map[string]float64 `json:"topic_weights"`  // [-1,1]
	SourceWeights map[string]float64 `json:"source_weights"` // [-2,2]

	Tone            string `json:"tone"`
	Format          string `json:"format"`
	MaxItems        int    `json:"max_items"`
	BriefingCadence string `json:"briefing_cadence"`
	Timezone        string `json:"timezone"`

	MutedTopics       []string `json:"muted_topics,omitempty"`
	RegionsOfInterest []string `json:"regions_of_interest,omitempty"`
	WatchlistCrypto   []string `json:"watchlist_crypto,omitempty"`
	WatchlistStocks   []string `json:"watchlist_stocks,omitempty"`
	ConfidenceMin     float64  `json:"confidence_min"`
	UrgencyMin        string   `json:"urgency_min,omitempty"`
	MaxPerSource      int      `json:"max_per_source"`

	AlertKeywords         []string `json:"alert_keywords,omitempty"`
	AlertGeoriskThreshold float64  `json:"alert_georisk_threshold"`
	AlertTrendThreshold   float64  `json:"alert_trend_threshold"`

	TrackedStories []string                      `json:"tracked_stories,omitempty"`
	Bookmarks      []string                      `json:"bookmarks,omitempty"`
	Presets        map[string]map[string]float64 `json:"presets,omitempty"` // name -> topic weight snapshot
	CustomSources  []string                      `json:"custom_sources,omitempty"`

	Email      string `json:"email,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`

	// Version is bumped by every mutation; UpdateIfCurrent compares against it.
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// NewProfile creates a profile with sane defaults.
func NewProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:        userID,
		TopicWeights:  make(map[string]float64),
		SourceWeights: make(map[string]float64),
		Tone:          "neutral",
		Format:        "digest",
		MaxItems:      8,
		MaxPerSource:  3,
		CreatedAt:     time.Now().UTC(),
	}
}

// clampFinite returns v clamped to [lo,hi], or def when non-finite.
func clampFinite(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// setWeight writes a weight into m, enforcing the cap. At capacity, zero
// entries are pruned first; if still full, new keys are refused.
func setWeight(m map[string]float64, key string, v float64) {
	if _, exists := m[key]; !exists && len(m) >= MaxWeights {
		for k, w := range m {
			if w == 0 {
				delete(m, k)
			}
		}
		if len(m) >= MaxWeights {
			return
		}
	}
	m[key] = v
}

// validate enforces caps and float sanity on a restored profile. Invalid
// values collapse to defaults instead of failing the restore.
func (p *UserProfile) validate() {
	if p.TopicWeights == nil {
		p.TopicWeights = make(map[string]float64)
	}
	if p.SourceWeights == nil {
		p.SourceWeights = make(map[string]float64)
	}
	for k, v := range p.TopicWeights {
		p.TopicWeights[k] = clampFinite(v, -1, 1, 0)
	}
	for k, v := range p.SourceWeights {
		p.SourceWeights[k] = clampFinite(v, -2, 2, 0)
	}
	trimWeights(p.TopicWeights)
	trimWeights(p.SourceWeights)

	p.ConfidenceMin = clampFinite(p.ConfidenceMin, 0, 1, 0)
	p.AlertGeoriskThreshold = clampFinite(p.AlertGeoriskThreshold, 0, 1, 0)
	p.AlertTrendThreshold = clampFinite(p.AlertTrendThreshold, 0, 100, 0)

	if p.MaxItems <= 0 || p.MaxItems > 50 {
		p.MaxItems = 8
	}
	if p.MaxPerSource <= 0 {
		p.MaxPerSource = 3
	}

	p.TrackedStories = capList(p.TrackedStories, MaxTrackedStores)
	p.Bookmarks = capList(p.Bookmarks, MaxBookmarks)
	p.CustomSources = capList(p.CustomSources, MaxCustomSources)
	if len(p.Presets) > MaxPresets {
		n := 0
		trimmed := make(map[string]map[string]float64, MaxPresets)
		for name, snap := range p.Presets {
			if n >= MaxPresets {
				break
			}
			trimmed[name] = snap
			n++
		}
		p.Presets = trimmed
	}
}

func capList(list []string, max int) []string {
	if len(list) > max {
		return list[:max]
	}
	return list
}

// trimWeights drops excess entries when a restored map exceeds the cap,
// pruning zero weights first.
func trimWeights(m map[string]float64) {
	if len(m) <= MaxWeights {
		return
	}
	for k, v := range m {
		if v == 0 {
			delete(m, k)
			if len(m) <= MaxWeights {
				return
			}
		}
	}
	for k := range m {
		delete(m, k)
		if len(m) <= MaxWeights {
			return
		}
	}
}

// clone deep-copies the profile for snapshotting.
func (p *UserProfile) clone() *UserProfile {
	cp := *p
	cp.TopicWeights = copyFloatMap(p.TopicWeights)
	cp.SourceWeights = copyFloatMap(p.SourceWeights)
	cp.MutedTopics = append([]string(nil), p.MutedTopics...)
	cp.RegionsOfInterest = append([]string(nil), p.RegionsOfInterest...)
	cp.WatchlistCrypto = append([]string(nil), p.WatchlistCrypto...)
	cp.WatchlistStocks = append([]string(nil), p.WatchlistStocks...)
	cp.AlertKeywords = append([]string(nil), p.AlertKeywords...)
	cp.TrackedStories = append([]string(nil), p.TrackedStories...)
	cp.Bookmarks = append([]string(nil), p.Bookmarks...)
	cp.CustomSources = append([]string(nil), p.CustomSources...)
	if p.Presets != nil {
		cp.Presets = make(map[string]map[string]float64, len(p.Presets))
		for name, snap := range p.Presets {
			cp.Presets[name] = copyFloatMap(snap)
		}
	}
	return &cp
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
