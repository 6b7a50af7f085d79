package optimizer

import (
	"strings"
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	s := NewBreakerSet(BreakerConfig{FailureThreshold: 3, RecoverySeconds: 300})

	for i := 0; i < 2; i++ {
		s.RecordFailure("a1")
	}
	if got := s.State("a1"); got != BreakerClosed {
		t.Fatalf("Expected CLOSED below threshold, got %s", got)
	}
	s.RecordFailure("a1")
	if got := s.State("a1"); got != BreakerOpen {
		t.Fatalf("Expected OPEN at threshold, got %s", got)
	}
	if s.Allow("a1") {
		t.Error("OPEN breaker must not admit calls")
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	s := NewBreakerSet(BreakerConfig{FailureThreshold: 1, RecoverySeconds: 60})
	base := time.Now()
	s.now = func() time.Time { return base }

	s.RecordFailure("a1")
	if s.Allow("a1") {
		t.Fatal("OPEN breaker admitted a call before recovery")
	}

	s.now = func() time.Time { return base.Add(61 * time.Second) }
	if !s.Allow("a1") {
		t.Fatal("Recovery window elapsed, probe should be admitted")
	}
	if s.State("a1") != BreakerHalfOpen {
		t.Errorf("Expected HALF_OPEN, got %s", s.State("a1"))
	}
	if s.Allow("a1") {
		t.Error("HALF_OPEN admits exactly one probe")
	}
}

func TestBreakerProbeSuccessResetsCounter(t *testing.T) {
	s := NewBreakerSet(BreakerConfig{FailureThreshold: 2, RecoverySeconds: 1})
	base := time.Now()
	s.now = func() time.Time { return base }

	s.RecordFailure("a1")
	s.RecordFailure("a1")
	s.now = func() time.Time { return base.Add(2 * time.Second) }
	if !s.Allow("a1") {
		t.Fatal("Probe should be admitted")
	}
	s.RecordSuccess("a1")
	if s.State("a1") != BreakerClosed {
		t.Fatalf("Expected CLOSED after probe success, got %s", s.State("a1"))
	}

	// The consecutive-failure counter must have been reset: one new failure
	// is below the threshold of 2.
	s.RecordFailure("a1")
	if s.State("a1") != BreakerClosed {
		t.Error("Counter was not reset on success; breaker reopened on first failure")
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	s := NewBreakerSet(BreakerConfig{FailureThreshold: 5, RecoverySeconds: 1})
	base := time.Now()
	s.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		s.RecordFailure("a1")
	}
	s.now = func() time.Time { return base.Add(2 * time.Second) }
	if !s.Allow("a1") {
		t.Fatal("Probe should be admitted")
	}
	s.RecordFailure("a1")
	if s.State("a1") != BreakerOpen {
		t.Errorf("Failed probe must reopen, got %s", s.State("a1"))
	}
}

func TestZeroYieldStreakRecommendation(t *testing.T) {
	o := New(DefaultThresholds(), DefaultBreakerConfig())
	for i := 0; i < 5; i++ {
		o.RecordAgentRun("quiet", 0, 100, false)
	}

	recs := o.Analyze()
	found := false
	for _, r := range recs {
		if r.Target == "quiet" && r.Severity == "high" {
			found = true
			if want := "silently broken"; !strings.Contains(r.Reason, want) {
				t.Errorf("Reason should mention %q, got %q", want, r.Reason)
			}
		}
	}
	if !found {
		t.Errorf("Expected high-severity zero-yield recommendation, got %v", recs)
	}
}

func TestYieldStreakResetsOnCandidates(t *testing.T) {
	o := New(DefaultThresholds(), DefaultBreakerConfig())
	for i := 0; i < 4; i++ {
		o.RecordAgentRun("a1", 0, 100, false)
	}
	o.RecordAgentRun("a1", 3, 100, false)

	if m := o.AgentSnapshot("a1"); m.ZeroYieldStreak != 0 {
		t.Errorf("Streak should reset on yield, got %d", m.ZeroYieldStreak)
	}
	if m := o.AgentSnapshot("a1"); m.TotalZeroYields != 4 {
		t.Errorf("Total zero yields should persist, got %d", m.TotalZeroYields)
	}
}

func TestMinRunsGateSuppressesRecommendations(t *testing.T) {
	o := New(DefaultThresholds(), DefaultBreakerConfig())
	o.RecordAgentRun("new", 0, 50000, true)
	o.RecordAgentRun("new", 0, 50000, true)

	if recs := o.Analyze(); len(recs) != 0 {
		t.Errorf("Agents with fewer than 3 runs must not trigger recommendations: %v", recs)
	}
}

func TestApplyRecommendationsDisableGate(t *testing.T) {
	o := New(DefaultThresholds(), DefaultBreakerConfig())
	for i := 0; i < 5; i++ {
		o.RecordAgentRun("quiet", 0, 100, false)
	}

	o.ApplyRecommendations(false)
	if o.IsDisabled("quiet") {
		t.Error("autoDisable=false must not disable agents")
	}

	o.ApplyRecommendations(true)
	if !o.IsDisabled("quiet") {
		t.Error("autoDisable=true should disable the broken agent")
	}
	if w := o.WeightOverride("quiet"); w >= 1.0 {
		t.Errorf("Low-yield agent should have reduced weight, got %v", w)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	o := New(DefaultThresholds(), DefaultBreakerConfig())
	for i := 0; i < 5; i++ {
		o.RecordAgentRun("quiet", 0, 100, false)
	}
	o.ApplyRecommendations(true)
	snap := o.Persist()

	fresh := New(DefaultThresholds(), DefaultBreakerConfig())
	snap.WeightOverrides["bogus"] = -3 // invalid, discarded on restore
	fresh.Restore(snap)

	if !fresh.IsDisabled("quiet") {
		t.Error("Disabled state lost across restore")
	}
	if fresh.AgentSnapshot("quiet").TotalRuns != 5 {
		t.Error("Agent metrics lost across restore")
	}
	if w := fresh.WeightOverride("bogus"); w != 1.0 {
		t.Errorf("Invalid weight override should be discarded, got %v", w)
	}
}
