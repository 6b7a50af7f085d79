package research

import (
	"context"
	"fmt"
	"testing"
	"time"

	"intel_briefing/pkg/core/config"
	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/optimizer"
)

type stubAgent struct {
	id    string
	items []domain.Candidate
	err   error
	panic bool
	delay time.Duration
}

func (a *stubAgent) ID() string { return a.id }

func (a *stubAgent) Search(ctx context.Context, task Task) ([]domain.Candidate, error) {
	if a.panic {
		panic("boom")
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.items, a.err
}

func mkCandidates(source string, n int) []domain.Candidate {
	out := make([]domain.Candidate, n)
	for i := range out {
		out[i] = domain.Candidate{
			ID: fmt.Sprintf("%s-%d", source, i), Title: "t", Source: source, Topic: "tech",
		}
	}
	return out
}

func TestFanOutMergesAndIsolatesFailures(t *testing.T) {
	agents := []Agent{
		&stubAgent{id: "good", items: mkCandidates("good", 3)},
		&stubAgent{id: "broken", err: fmt.Errorf("upstream 500")},
		&stubAgent{id: "panicky", panic: true},
	}
	opt := optimizer.New(optimizer.DefaultThresholds(), optimizer.DefaultBreakerConfig())

	merged, failed := FanOut(context.Background(), agents, Task{RequestID: "req-1"}, opt, time.Second)

	if len(merged) != 3 {
		t.Errorf("Expected 3 candidates from the healthy agent, got %d", len(merged))
	}
	if !failed["broken"] || !failed["panicky"] {
		t.Errorf("Failures not recorded: %v", failed)
	}
	if failed["good"] {
		t.Error("Healthy agent marked failed")
	}
	if opt.AgentSnapshot("broken").ErrorCount != 1 {
		t.Error("Failure not recorded in optimizer metrics")
	}
	if opt.AgentSnapshot("good").TotalCandidates != 3 {
		t.Error("Yield not recorded in optimizer metrics")
	}
}

func TestFanOutRespectsPerAgentTimeout(t *testing.T) {
	agents := []Agent{
		&stubAgent{id: "slow", items: mkCandidates("slow", 2), delay: 500 * time.Millisecond},
		&stubAgent{id: "fast", items: mkCandidates("fast", 1)},
	}

	merged, failed := FanOut(context.Background(), agents, Task{}, nil, 50*time.Millisecond)

	if len(merged) != 1 {
		t.Errorf("Only the fast agent should contribute, got %d candidates", len(merged))
	}
	if !failed["slow"] {
		t.Error("Timed-out agent must be marked failed")
	}
}

func TestFanOutSkipsOpenBreakerAndDisabled(t *testing.T) {
	opt := optimizer.New(optimizer.DefaultThresholds(), optimizer.BreakerConfig{FailureThreshold: 1, RecoverySeconds: 3600})
	opt.Breakers.RecordFailure("tripped")

	agents := []Agent{
		&stubAgent{id: "tripped", items: mkCandidates("tripped", 5)},
		&stubAgent{id: "ok", items: mkCandidates("ok", 1)},
	}

	merged, failed := FanOut(context.Background(), agents, Task{}, opt, time.Second)

	if len(merged) != 1 {
		t.Errorf("Tripped agent should be skipped, got %d candidates", len(merged))
	}
	if failed["tripped"] {
		t.Error("Skipped agents are not failures")
	}
}

func TestSimulatedAgentProducesPlaceholderURLs(t *testing.T) {
	agent, err := NewAgent(config.AgentSpec{ID: "sim1", Kind: "simulated"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := agent.Search(context.Background(), Task{
		WeightedTopics: map[string]float64{"geopolitics": 0.9, "economy": 0.5},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("Expected simulated candidates")
	}
	for _, c := range out {
		if c.ID == "" || c.Source != "sim1" || c.DiscoveredBy != "sim1" {
			t.Errorf("Candidate missing provenance: %+v", c)
		}
		if c.URL == "" {
			t.Error("Simulated candidates should carry placeholder URLs")
		}
	}
}

func TestTopTopicsOrdering(t *testing.T) {
	task := Task{WeightedTopics: map[string]float64{"a": 0.2, "b": 0.9, "c": 0.5}}
	got := task.TopTopics(2)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Expected [b c], got %v", got)
	}
}

func TestNewAgentValidation(t *testing.T) {
	if _, err := NewAgent(config.AgentSpec{ID: "h", Kind: "http"}); err == nil {
		t.Error("http agent without endpoint should be rejected")
	}
	if _, err := NewAgent(config.AgentSpec{ID: "x", Kind: "carrier-pigeon"}); err == nil {
		t.Error("unknown kind should be rejected")
	}
}
