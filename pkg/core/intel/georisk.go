package intel

import (
	"sort"
	"strings"
	"sync"

	"intel_briefing/pkg/core/domain"
)

// GeoRiskConfig tunes the regional risk index.
type GeoRiskConfig struct {
	EscalationThreshold float64 `json:"escalation_threshold"`
	MaxDrivers          int     `json:"max_drivers"`
}

func DefaultGeoRiskConfig() GeoRiskConfig {
	return GeoRiskConfig{EscalationThreshold: 0.1, MaxDrivers: 3}
}

// regionKeywords maps canonical regions to trigger terms found in titles and
// summaries. Operator-extensible via pipelines config in a later pass.
var regionKeywords = map[string][]string{
	"eastern-europe": {"ukraine", "russia", "belarus", "kyiv", "moscow", "crimea"},
	"middle-east":    {"israel", "iran", "gaza", "lebanon", "syria", "tehran", "red sea"},
	"east-asia":      {"china", "taiwan", "beijing", "taipei", "south china sea", "north korea"},
	"south-asia":     {"india", "pakistan", "kashmir", "delhi"},
	"western-europe": {"nato", "european union", "brussels", "germany", "france"},
	"north-america":  {"washington", "white house", "congress", "federal reserve", "canada"},
	"latin-america":  {"venezuela", "brazil", "mexico", "argentina"},
	"africa":         {"sahel", "nigeria", "ethiopia", "sudan", "red sea"},
}

// riskDriverWeight scores how much one keyword hit moves a region's level.
type driverHit struct {
	keyword string
	weight  float64
}

// GeoRiskIndex computes per-region risk levels and tracks the previous
// snapshot so escalation deltas survive across requests.
type GeoRiskIndex struct {
	cfg GeoRiskConfig

	mu       sync.Mutex
	previous map[string]float64
}

func NewGeoRiskIndex(cfg GeoRiskConfig) *GeoRiskIndex {
	return &GeoRiskIndex{cfg: cfg, previous: make(map[string]float64)}
}

// ExtractRegions scans a candidate's text for region keywords and stamps the
// matches onto the candidate (set semantics).
func ExtractRegions(c *domain.Candidate) []string {
	text := strings.ToLower(c.Title + " " + c.Summary)
	for region, words := range regionKeywords {
		for _, w := range words {
			if strings.Contains(text, w) {
				addRegion(c, region)
				break
			}
		}
	}
	return c.Regions
}

func addRegion(c *domain.Candidate, region string) {
	for _, r := range c.Regions {
		if r == region {
			return
		}
	}
	c.Regions = append(c.Regions, region)
}

// Assess extracts regions for the batch and computes one GeoRisk per region
// touched, with escalation deltas against the previous snapshot.
func (g *GeoRiskIndex) Assess(candidates []domain.Candidate) []domain.GeoRisk {
	levels := make(map[string]float64)
	counts := make(map[string]int)
	drivers := make(map[string][]driverHit)

	for i := range candidates {
		c := &candidates[i]
		ExtractRegions(c)
		contribution := 0.5*float64(c.Urgency.Rank())/3.0 + 0.3*c.Evidence + 0.2*c.Novelty
		text := strings.ToLower(c.Title + " " + c.Summary)
		for _, region := range c.Regions {
			levels[region] += contribution
			counts[region]++
			for _, w := range regionKeywords[region] {
				if strings.Contains(text, w) {
					drivers[region] = append(drivers[region], driverHit{keyword: w, weight: contribution})
				}
			}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	regions := make([]string, 0, len(levels))
	for region := range levels {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	out := make([]domain.GeoRisk, 0, len(regions))
	for _, region := range regions {
		level := domain.Clamp01(levels[region] / float64(counts[region]))
		prev := g.previous[region]
		delta := level - prev
		out = append(out, domain.GeoRisk{
			Region:          region,
			RiskLevel:       level,
			PreviousLevel:   prev,
			EscalationDelta: delta,
			IsEscalating:    delta > g.cfg.EscalationThreshold,
			Drivers:         topDrivers(drivers[region], g.cfg.MaxDrivers),
		})
		g.previous[region] = level
	}
	return out
}

// topDrivers ranks keywords by total moved weight and returns the top k.
func topDrivers(hits []driverHit, k int) []string {
	byKeyword := make(map[string]float64)
	for _, h := range hits {
		byKeyword[h.keyword] += h.weight
	}
	keywords := make([]string, 0, len(byKeyword))
	for kw := range byKeyword {
		keywords = append(keywords, kw)
	}
	sort.Slice(keywords, func(a, b int) bool {
		if byKeyword[keywords[a]] != byKeyword[keywords[b]] {
			return byKeyword[keywords[a]] > byKeyword[keywords[b]]
		}
		return keywords[a] < keywords[b]
	})
	if len(keywords) > k {
		keywords = keywords[:k]
	}
	return keywords
}

// Snapshot returns the last-known level per region for persistence.
func (g *GeoRiskIndex) Snapshot() map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]float64, len(g.previous))
	for region, level := range g.previous {
		out[region] = level
	}
	return out
}

// Restore loads a persisted snapshot, discarding non-finite levels.
func (g *GeoRiskIndex) Restore(snapshot map[string]float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for region, level := range snapshot {
		if region == "" || level != level || level < 0 || level > 1 {
			continue
		}
		g.previous[region] = level
	}
}
