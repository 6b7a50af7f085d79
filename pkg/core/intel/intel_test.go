package intel

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"intel_briefing/pkg/core/domain"
)

func cand(id, title, summary, source, topic string, evidence float64) domain.Candidate {
	return domain.Candidate{
		ID:        id,
		Title:     title,
		Summary:   summary,
		URL:       "https://news.site/" + id,
		Source:    source,
		Topic:     topic,
		Evidence:  evidence,
		Urgency:   domain.UrgencyRoutine,
		Lifecycle: domain.LifecycleDeveloping,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCorroborationAcrossSources(t *testing.T) {
	a := cand("a", "Central bank raises rates by 50 basis points", "The central bank raised interest rates citing inflation pressure", "reuters", "economy", 0.8)
	b := cand("b", "Central bank raises interest rates amid inflation", "Rates raised by 50 basis points as inflation pressure persists", "ap", "economy", 0.7)
	c := cand("c", "Football transfer window closes", "A completely unrelated sports story about transfers", "espn", "sports", 0.5)

	var pairs int
	d := NewCorroborationDetector()
	d.OnCorroborated = func(x, y string) { pairs++ }

	out := d.Detect([]domain.Candidate{a, b, c})

	if len(out[0].CorroboratedBy) != 1 || out[0].CorroboratedBy[0] != "ap" {
		t.Errorf("Expected a corroborated by ap, got %v", out[0].CorroboratedBy)
	}
	if len(out[1].CorroboratedBy) != 1 || out[1].CorroboratedBy[0] != "reuters" {
		t.Errorf("Expected b corroborated by reuters, got %v", out[1].CorroboratedBy)
	}
	if len(out[2].CorroboratedBy) != 0 {
		t.Errorf("Unrelated candidate should not be corroborated: %v", out[2].CorroboratedBy)
	}
	if pairs != 1 {
		t.Errorf("Expected exactly one corroboration callback, got %d", pairs)
	}
}

func TestCorroborationSkipsPlaceholderAndEmptyURLs(t *testing.T) {
	a := cand("a", "Central bank raises rates by 50 basis points", "Inflation pressure", "reuters", "economy", 0.8)
	b := cand("b", "Central bank raises rates by 50 basis points", "Inflation pressure", "ap", "economy", 0.7)
	a.URL = ""
	b.URL = "https://example.com/item"

	out := NewCorroborationDetector().Detect([]domain.Candidate{a, b})
	if len(out[0].CorroboratedBy) != 0 || len(out[1].CorroboratedBy) != 0 {
		t.Error("placeholder/empty URL candidates must be excluded from corroboration")
	}
}

func TestDiversityEnforcement(t *testing.T) {
	weights := domain.DefaultScoringWeights()
	var in []domain.Candidate
	for i := 0; i < 5; i++ {
		c := cand(fmt.Sprintf("r%d", i), fmt.Sprintf("Story %d", i), "s", "reuters", "tech", float64(i)/5)
		in = append(in, c)
	}
	in = append(in, cand("x", "Other story", "s", "ap", "tech", 0.5))

	out := EnforceDiversity(in, 2, weights)

	counts := make(map[string]int)
	for _, c := range out {
		counts[c.Source]++
	}
	if counts["reuters"] != 2 {
		t.Errorf("Expected reuters capped at 2, got %d", counts["reuters"])
	}
	if counts["ap"] != 1 {
		t.Errorf("ap item should survive, got %d", counts["ap"])
	}

	// The survivors should be the highest-composite reuters items.
	for _, c := range out {
		if c.Source == "reuters" && c.Evidence < 0.6 {
			t.Errorf("low-scoring reuters item %s should have been dropped", c.ID)
		}
	}
}

func TestUrgencyKeywordsAndRecency(t *testing.T) {
	d := NewUrgencyDetector(DefaultUrgencyConfig())
	now := time.Now().UTC()

	critical := cand("c1", "Nuclear facility struck", "Reports of a strike near the plant", "reuters", "geopolitics", 0.9)
	stale := cand("c2", "Quarterly earnings roundup", "Companies reported earnings last week", "ap", "markets", 0.3)
	stale.CreatedAt = now.Add(-6 * time.Hour)

	out := d.Detect([]domain.Candidate{critical, stale}, now)

	if out[0].Urgency != domain.UrgencyCritical {
		t.Errorf("Expected critical urgency, got %s", out[0].Urgency)
	}
	// Fresh item is at least elevated via recency even without keywords.
	fresh := cand("c3", "Quiet diplomatic meeting", "Routine consultations continue", "ap", "geopolitics", 0.3)
	out = d.Detect([]domain.Candidate{fresh}, now)
	if out[0].Urgency.Rank() < domain.UrgencyElevated.Rank() {
		t.Errorf("Fresh item should be at least elevated, got %s", out[0].Urgency)
	}
	if stale.Urgency == domain.UrgencyCritical {
		t.Error("stale routine item should not be critical")
	}
}

func TestUrgencyVelocityRaisesOneNotch(t *testing.T) {
	cfg := DefaultUrgencyConfig()
	cfg.BreakingSourceThreshold = 3
	cfg.RecencyElevatedMinutes = 0 // isolate the velocity effect
	d := NewUrgencyDetector(cfg)
	now := time.Now().UTC()

	var in []domain.Candidate
	for i, src := range []string{"reuters", "ap", "bbc"} {
		in = append(in, cand(fmt.Sprintf("v%d", i), "Port disruption reported", "Shipping delayed at the port", src, "logistics", 0.5))
	}
	out := d.Detect(in, now)
	for _, c := range out {
		if c.Urgency.Rank() < domain.UrgencyElevated.Rank() {
			t.Errorf("velocity across 3 sources should raise urgency, got %s", c.Urgency)
		}
	}
}

func TestLifecycleFirstSightingIsDeveloping(t *testing.T) {
	d := NewUrgencyDetector(DefaultUrgencyConfig())
	out := d.Detect([]domain.Candidate{cand("l1", "New topic appears", "first sighting", "reuters", "fusion-energy", 0.5)}, time.Now().UTC())
	if out[0].Lifecycle != domain.LifecycleDeveloping {
		t.Errorf("Expected developing on first sighting, got %s", out[0].Lifecycle)
	}
}

func TestClusterMergesSameStory(t *testing.T) {
	weights := domain.DefaultScoringWeights()
	a := cand("a", "Chipmaker announces record quarterly revenue", "The chipmaker posted record revenue on datacenter demand", "reuters", "tech", 0.9)
	b := cand("b", "Record revenue for chipmaker on datacenter demand", "Quarterly revenue hit a record driven by datacenter sales", "ap", "tech", 0.6)
	c := cand("c", "Volcano erupts in Iceland", "An eruption began overnight near the fissure", "bbc", "natural-disasters", 0.8)

	threads := Cluster([]domain.Candidate{a, b, c}, DefaultClusterConfig(), weights, func(domain.Candidate) float64 { return 0.7 })

	if len(threads) != 2 {
		t.Fatalf("Expected 2 threads, got %d", len(threads))
	}

	var merged domain.NarrativeThread
	for _, th := range threads {
		if len(th.Candidates) == 2 {
			merged = th
		}
	}
	if merged.ThreadID == "" {
		t.Fatal("Expected a merged thread of 2 candidates")
	}
	if merged.SourceCount != 2 {
		t.Errorf("Expected 2 distinct sources, got %d", merged.SourceCount)
	}
	// Headline comes from the highest-composite member.
	if merged.Headline != a.Title {
		t.Errorf("Expected headline from highest-composite candidate, got %q", merged.Headline)
	}
	if merged.Confidence == nil || merged.Confidence.Low > merged.Confidence.Mid || merged.Confidence.Mid > merged.Confidence.High {
		t.Errorf("Confidence band malformed: %+v", merged.Confidence)
	}
}

func TestClusterDeterministicUnderShuffle(t *testing.T) {
	weights := domain.DefaultScoringWeights()
	var in []domain.Candidate
	for i := 0; i < 8; i++ {
		in = append(in, cand(fmt.Sprintf("s%d", i), fmt.Sprintf("Unique story number %d entirely", i), fmt.Sprintf("body %d", i), "reuters", "tech", 0.5))
	}

	base := Cluster(in, DefaultClusterConfig(), weights, nil)

	shuffled := append([]domain.Candidate(nil), in...)
	rand.New(rand.NewSource(42)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	again := Cluster(shuffled, DefaultClusterConfig(), weights, nil)

	if len(base) != len(again) {
		t.Fatalf("Thread count changed under shuffle: %d vs %d", len(base), len(again))
	}
	for i := range base {
		if base[i].Headline != again[i].Headline || len(base[i].Candidates) != len(again[i].Candidates) {
			t.Errorf("Thread %d differs under shuffle: %q vs %q", i, base[i].Headline, again[i].Headline)
		}
	}
}

func TestClusterDisabledCredibilityYieldsZeroBand(t *testing.T) {
	threads := Cluster([]domain.Candidate{cand("a", "Some story", "body", "reuters", "tech", 0.5)}, DefaultClusterConfig(), domain.DefaultScoringWeights(), nil)
	if threads[0].Confidence == nil || threads[0].Confidence.Mid != 0 {
		t.Errorf("Expected zero band when credibility is disabled, got %+v", threads[0].Confidence)
	}
}

func TestGeoRiskEscalation(t *testing.T) {
	g := NewGeoRiskIndex(DefaultGeoRiskConfig())

	quiet := cand("g1", "Minor border statement from Moscow", "Officials commented on the border", "reuters", "geopolitics", 0.2)
	quiet.Urgency = domain.UrgencyRoutine
	first := g.Assess([]domain.Candidate{quiet})
	if len(first) != 1 || first[0].Region != "eastern-europe" {
		t.Fatalf("Expected eastern-europe risk, got %+v", first)
	}
	if first[0].PreviousLevel != 0 {
		t.Errorf("First assessment should have zero previous level, got %v", first[0].PreviousLevel)
	}

	hot := cand("g2", "Breaking: strikes reported near Kyiv", "Multiple explosions reported in Kyiv overnight", "reuters", "geopolitics", 0.9)
	hot.Urgency = domain.UrgencyCritical
	second := g.Assess([]domain.Candidate{hot})
	if !second[0].IsEscalating {
		t.Errorf("Expected escalation, got %+v", second[0])
	}
	if len(second[0].Drivers) == 0 {
		t.Error("Expected drivers for the escalating region")
	}
}

func TestTrendBaselineFloorBoundsAnomaly(t *testing.T) {
	d := NewTrendDetector(DefaultTrendConfig())
	d.ForceBaseline("fusion", 0.001)

	signals := d.Observe([]domain.Candidate{cand("t1", "Fusion breakthrough", "body", "reuters", "fusion", 0.5)})
	if len(signals) != 1 {
		t.Fatalf("Expected one signal, got %d", len(signals))
	}
	// velocity=1, floor=0.1, so anomaly can never exceed 10.
	if signals[0].AnomalyScore > 10 {
		t.Errorf("Anomaly score exceeded floor bound: %v", signals[0].AnomalyScore)
	}
	if !signals[0].IsEmerging {
		t.Error("Tiny baseline with fresh velocity should be emerging")
	}
}

func TestTrendBaselineDecays(t *testing.T) {
	d := NewTrendDetector(DefaultTrendConfig())
	burst := make([]domain.Candidate, 5)
	for i := range burst {
		burst[i] = cand(fmt.Sprintf("b%d", i), "Topic burst", "body", "reuters", "ai", 0.5)
	}
	d.Observe(burst)
	snap := d.Snapshot()
	if snap["ai"] <= baselineFloor {
		t.Errorf("Baseline should rise after a burst, got %v", snap["ai"])
	}

	// A later single item against the raised baseline is not emerging.
	signals := d.Observe([]domain.Candidate{cand("b9", "Topic burst", "body", "reuters", "ai", 0.5)})
	if signals[0].IsEmerging {
		t.Errorf("Single item against raised baseline should not be emerging: %+v", signals[0])
	}
}

func TestTrendTopicCapEvicts(t *testing.T) {
	cfg := DefaultTrendConfig()
	cfg.MaxTopics = 3
	d := NewTrendDetector(cfg)
	for i := 0; i < 10; i++ {
		d.Observe([]domain.Candidate{cand(fmt.Sprintf("e%d", i), "t", "b", "reuters", fmt.Sprintf("topic-%d", i), 0.5)})
	}
	if got := len(d.Snapshot()); got > 3 {
		t.Errorf("Topic table exceeded cap: %d", got)
	}
}
