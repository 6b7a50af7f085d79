package domain

import (
	"math"
	"strings"
	"testing"
)

func validCandidate() Candidate {
	return Candidate{
		ID:           "c1",
		Title:        "Ceasefire talks resume",
		Summary:      "Delegations met for a third round of talks.",
		URL:          "https://example.com/a",
		Source:       "reuters",
		Topic:        "geopolitics",
		DiscoveredBy: "agent-wire",
		Evidence:     0.8,
		Novelty:      0.6,
	}
}

func TestSanitizeClampsScores(t *testing.T) {
	c := validCandidate()
	c.Evidence = math.NaN()
	c.Novelty = math.Inf(1)
	c.PreferenceFit = -0.5
	c.PredictionSignal = 1.7

	c.Sanitize()

	if c.Evidence != 0 {
		t.Errorf("Expected NaN evidence clamped to 0, got %v", c.Evidence)
	}
	if c.Novelty != 0 {
		t.Errorf("Expected +Inf novelty clamped to 0, got %v", c.Novelty)
	}
	if c.PreferenceFit != 0 {
		t.Errorf("Expected negative pref fit clamped to 0, got %v", c.PreferenceFit)
	}
	if c.PredictionSignal != 1 {
		t.Errorf("Expected oversized signal clamped to 1, got %v", c.PredictionSignal)
	}
}

func TestSanitizeClearsBadURLScheme(t *testing.T) {
	c := validCandidate()
	c.URL = "javascript:alert(1)"
	c.Sanitize()
	if c.URL != "" {
		t.Errorf("Expected javascript URL cleared, got %q", c.URL)
	}

	c = validCandidate()
	c.URL = "https://example.com/ok"
	c.Sanitize()
	if c.URL == "" {
		t.Error("https URL should survive sanitization")
	}
}

func TestSanitizeStripsControlAndBidi(t *testing.T) {
	c := validCandidate()
	c.Title = "Breaking‮ news\x00 item"
	c.Sanitize()
	if strings.ContainsRune(c.Title, '‮') {
		t.Error("bidi override should be stripped")
	}
	if strings.ContainsRune(c.Title, 0) {
		t.Error("NUL should be stripped")
	}
}

func TestSanitizeTruncatesLongFields(t *testing.T) {
	c := validCandidate()
	c.Title = strings.Repeat("a", 600)
	c.Summary = strings.Repeat("b", 3000)
	c.Sanitize()
	if len(c.Title) != 500 {
		t.Errorf("Expected title capped at 500, got %d", len(c.Title))
	}
	if len(c.Summary) != 2000 {
		t.Errorf("Expected summary capped at 2000, got %d", len(c.Summary))
	}
}

func TestSanitizeAllDropsInvalidAndDuplicates(t *testing.T) {
	good := validCandidate()
	noTitle := validCandidate()
	noTitle.ID = "c2"
	noTitle.Title = "   "
	dup := validCandidate() // same id as good

	out := SanitizeAll([]Candidate{good, noTitle, dup})
	if len(out) != 1 {
		t.Fatalf("Expected 1 survivor, got %d", len(out))
	}
	if out[0].ID != "c1" {
		t.Errorf("Expected c1 to survive, got %s", out[0].ID)
	}
}

func TestScoringWeightsValidate(t *testing.T) {
	if err := DefaultScoringWeights().Validate(); err != nil {
		t.Fatalf("default weights should validate: %v", err)
	}

	bad := ScoringWeights{Evidence: 0.5, Novelty: 0.5, PreferenceFit: 0.5}
	if err := bad.Validate(); err == nil {
		t.Error("weights summing to 1.5 should be rejected")
	}

	nan := DefaultScoringWeights()
	nan.Evidence = math.NaN()
	if err := nan.Validate(); err == nil {
		t.Error("NaN weight should be rejected")
	}
}

func TestComposite(t *testing.T) {
	c := validCandidate()
	c.Evidence, c.Novelty, c.PreferenceFit, c.PredictionSignal = 1, 1, 1, 1
	got := c.Composite(DefaultScoringWeights())
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Expected composite 1.0 for all-ones scores, got %v", got)
	}
}

func TestConfidenceBandLabel(t *testing.T) {
	cases := []struct {
		mid  float64
		want string
	}{
		{0.9, "high"},
		{0.80, "high"},
		{0.6, "moderate"},
		{0.55, "moderate"},
		{0.2, "low"},
	}
	for _, tc := range cases {
		b := ConfidenceBand{Mid: tc.mid}
		if got := b.Label(); got != tc.want {
			t.Errorf("mid=%v: expected %q, got %q", tc.mid, tc.want, got)
		}
	}
}

func TestClampBandOrdering(t *testing.T) {
	b := ClampBand(ConfidenceBand{Low: 0.9, Mid: 0.5, High: 0.2})
	if b.Low > b.Mid || b.Mid > b.High {
		t.Errorf("band not ordered: %+v", b)
	}
	if b.High > 1 || b.Low < 0 {
		t.Errorf("band out of range: %+v", b)
	}
}

func TestUrgencyOrdering(t *testing.T) {
	if MaxUrgency(UrgencyRoutine, UrgencyCritical) != UrgencyCritical {
		t.Error("critical should outrank routine")
	}
	if ParseUrgency("nonsense") != UrgencyRoutine {
		t.Error("unknown urgency should parse as routine")
	}
	if UrgencyBreaking.Rank() <= UrgencyElevated.Rank() {
		t.Error("breaking should outrank elevated")
	}
}
