package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"intel_briefing/pkg/core/config"
	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/llm"
	"intel_briefing/pkg/core/research"
)

const testPipelinesJSON = `{
	"stages": {"enrichment": false},
	"limits": {
		"max_concurrent_requests": 1,
		"pipeline_timeout_seconds": 30,
		"agent_timeout_seconds": 5
	}
}`

func testPersonasConfig() *config.PersonasConfig {
	return &config.PersonasConfig{
		Chair: "chair",
		Personas: []config.PersonaSpec{
			{
				ID:            "skeptic",
				Dimensions:    map[string]float64{"evidence": 1.0},
				KeepThreshold: 0.05,
				ConfidenceMin: 0.3,
				ConfidenceMax: 0.95,
				Influence:     1.0,
			},
			{
				ID:            "scout",
				Dimensions:    map[string]float64{"evidence": 1.0},
				KeepThreshold: 0.05,
				ConfidenceMin: 0.3,
				ConfidenceMax: 0.95,
				Influence:     1.0,
			},
			{
				ID:            "chair",
				Dimensions:    map[string]float64{"evidence": 1.0},
				KeepThreshold: 0.05,
				ConfidenceMin: 0.3,
				ConfidenceMax: 0.95,
				Influence:     2.0,
			},
		},
	}
}

func testAgents(t *testing.T) []research.Agent {
	t.Helper()
	specs := []config.AgentSpec{
		{ID: "sim-alpha", Kind: "simulated", Capabilities: map[string]float64{"geopolitics": 0.9}, Enabled: true},
		{ID: "sim-beta", Kind: "simulated", Capabilities: map[string]float64{"economy": 0.8}, Enabled: true},
	}
	agents := make([]research.Agent, 0, len(specs))
	for _, spec := range specs {
		agent, err := research.NewAgent(spec)
		if err != nil {
			t.Fatalf("NewAgent(%s): %v", spec.ID, err)
		}
		agents = append(agents, agent)
	}
	return agents
}

func newTestEngine(t *testing.T, agents []research.Agent) *Engine {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pipelines.json")
	if err := os.WriteFile(cfgPath, []byte(testPipelinesJSON), 0644); err != nil {
		t.Fatalf("write pipelines config: %v", err)
	}
	holder := config.NewPipelinesHolder(cfgPath)
	manager := llm.NewManager(llm.Config{})
	return New(holder, testPersonasConfig(), agents, manager, nil, filepath.Join(dir, "state"))
}

func TestHandleRequestDeliversBriefing(t *testing.T) {
	e := newTestEngine(t, testAgents(t))

	payload, err := e.HandleRequestPayload(context.Background(), "user-1", "geopolitics briefing", nil, 5)
	if err != nil {
		t.Fatalf("HandleRequestPayload: %v", err)
	}
	if !strings.HasPrefix(payload.RequestID, "req-") {
		t.Errorf("Expected req- prefixed request id, got %q", payload.RequestID)
	}
	if payload.BriefingType != domain.BriefingOnDemand {
		t.Errorf("Expected on_demand briefing, got %q", payload.BriefingType)
	}
	if payload.Metadata.PipelineHealth.TotalCandidates == 0 {
		t.Error("Expected candidates from simulated agents")
	}
	if len(payload.Items) == 0 {
		t.Error("Expected at least one report item with a permissive panel")
	}
	if len(payload.Items) > 5 {
		t.Errorf("Expected at most 5 items, got %d", len(payload.Items))
	}
	for _, item := range payload.Items {
		if item.WhyItMatters == "" {
			t.Errorf("Item %s missing why-it-matters narrative", item.Candidate.ID)
		}
	}
	if trace := e.Audit.GetRequestTrace(payload.RequestID); len(trace) == 0 {
		t.Error("Expected audit events for the request")
	}
}

func TestHandleRequestBusy(t *testing.T) {
	e := newTestEngine(t, testAgents(t))
	fixed := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }
	if err := e.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer e.sem.Release(1)

	payload, err := e.HandleRequestPayload(context.Background(), "user-2", "anything", nil, 3)
	if err != ErrBusy {
		t.Fatalf("Expected ErrBusy, got %v", err)
	}
	if payload.Metadata.ErrorType != "busy" {
		t.Errorf("Expected busy error type, got %q", payload.Metadata.ErrorType)
	}
	if len(payload.Items) != 0 {
		t.Errorf("Expected no items on a busy rejection, got %d", len(payload.Items))
	}
	if !payload.GeneratedAt.Equal(fixed) {
		t.Errorf("Expected error payload stamped from the engine clock, got %v", payload.GeneratedAt)
	}
}

func TestBusyRejectionDoesNotStartCooldown(t *testing.T) {
	e := newTestEngine(t, testAgents(t))
	if err := e.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := e.HandleRequestPayload(context.Background(), "user-cd", "first", nil, 3); err != ErrBusy {
		e.sem.Release(1)
		t.Fatalf("Expected ErrBusy while the slot is held, got %v", err)
	}
	e.sem.Release(1)

	payload, err := e.HandleRequestPayload(context.Background(), "user-cd", "retry", nil, 3)
	if err != nil {
		t.Fatalf("Expected retry after busy rejection to run, got %v", err)
	}
	if payload.Metadata.ErrorType == "rate_limited" {
		t.Error("Busy rejection must not start the per-user cooldown")
	}
}

func TestHandleRequestPerUserCooldown(t *testing.T) {
	e := newTestEngine(t, testAgents(t))

	if _, err := e.HandleRequestPayload(context.Background(), "user-rl", "first", nil, 3); err != nil {
		t.Fatalf("first request: %v", err)
	}
	payload, err := e.HandleRequestPayload(context.Background(), "user-rl", "second", nil, 3)
	if err != ErrBusy {
		t.Fatalf("Expected ErrBusy on immediate repeat, got %v", err)
	}
	if payload.Metadata.ErrorType != "rate_limited" {
		t.Errorf("Expected rate_limited error type, got %q", payload.Metadata.ErrorType)
	}
	if _, err := e.HandleRequestPayload(context.Background(), "user-other", "first", nil, 3); err != nil {
		t.Errorf("Expected a different user to pass the cooldown, got %v", err)
	}
}

type stalledAgent struct{ id string }

func (a *stalledAgent) ID() string { return a.id }

func (a *stalledAgent) Search(ctx context.Context, task research.Task) ([]domain.Candidate, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestHandleRequestTimeout(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pipelines.json")
	cfg := `{
		"stages": {"enrichment": false},
		"limits": {
			"max_concurrent_requests": 1,
			"pipeline_timeout_seconds": 1,
			"agent_timeout_seconds": 5
		}
	}`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("write pipelines config: %v", err)
	}
	holder := config.NewPipelinesHolder(cfgPath)
	manager := llm.NewManager(llm.Config{})
	e := New(holder, testPersonasConfig(), []research.Agent{&stalledAgent{id: "stalled"}}, manager, nil, filepath.Join(dir, "state"))

	payload, err := e.HandleRequestPayload(context.Background(), "user-3", "anything", nil, 3)
	if err != ErrTimeout {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if len(payload.Items) != 0 {
		t.Errorf("Expected no partial items on timeout, got %d", len(payload.Items))
	}
	if payload.Metadata.ErrorType != "timeout" {
		t.Errorf("Expected timeout error type, got %q", payload.Metadata.ErrorType)
	}
}

func TestRunStagePanicIsolated(t *testing.T) {
	e := newTestEngine(t, testAgents(t))
	health := domain.PipelineHealth{}

	e.runStage(context.Background(), "clustering", "req-test-panic", &health, func() error {
		panic("boom")
	})

	if len(health.StagesFailed) != 1 || health.StagesFailed[0] != "clustering" {
		t.Fatalf("Expected clustering in stages_failed, got %v", health.StagesFailed)
	}
	trace := e.Audit.GetRequestTrace("req-test-panic")
	if len(trace) == 0 {
		t.Error("Expected an audit event for the failed stage")
	}
}

func TestApplyUserFeedback(t *testing.T) {
	e := newTestEngine(t, nil)

	changes := e.ApplyUserFeedback("user-fb", "more crypto, mute celebrity")
	if changes["topic:crypto"] != 0.2 {
		t.Errorf("Expected +0.2 crypto delta, got %v", changes["topic:crypto"])
	}
	profile := e.Prefs.Get("user-fb")
	if profile.TopicWeights["crypto"] != 0.2 {
		t.Errorf("Expected crypto weight 0.2, got %v", profile.TopicWeights["crypto"])
	}
	found := false
	for _, topic := range profile.MutedTopics {
		if topic == "celebrity" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected celebrity muted, got %v", profile.MutedTopics)
	}
}

func TestAlertDeduperCooldown(t *testing.T) {
	d := newAlertDeduper()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return current }

	if !d.shouldSend("u1", "georisk", "kyiv") {
		t.Fatal("Expected first alert to send")
	}
	current = current.Add(30 * time.Minute)
	if d.shouldSend("u1", "georisk", "kyiv") {
		t.Error("Expected repeat within cooldown to be suppressed")
	}
	if !d.shouldSend("u1", "georisk", "moscow") {
		t.Error("Expected different key to send")
	}
	current = current.Add(2 * time.Hour)
	if !d.shouldSend("u1", "georisk", "kyiv") {
		t.Error("Expected alert to send after cooldown expired")
	}
}

func TestEvaluateKeywordAlerts(t *testing.T) {
	e := newTestEngine(t, nil)
	profile := e.Prefs.Get("user-kw")
	profile.AlertKeywords = []string{"ceasefire"}

	payload := domain.DeliveryPayload{
		Items: []domain.ReportItem{
			{Candidate: domain.Candidate{ID: "c1", Title: "Ceasefire talks resume in the region"}},
		},
	}

	alerts := e.evaluateAlerts(profile, payload)
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 keyword alert, got %d", len(alerts))
	}
	if alerts[0].Type != "keyword" || alerts[0].Key != "ceasefire" {
		t.Errorf("Unexpected alert %+v", alerts[0])
	}
	if repeat := e.evaluateAlerts(profile, payload); len(repeat) != 0 {
		t.Errorf("Expected dedup to suppress repeat, got %d alerts", len(repeat))
	}
}

func TestShowMoreConsumesReserve(t *testing.T) {
	e := newTestEngine(t, nil)
	e.reserves.set("user-sm", []domain.Candidate{
		{ID: "r1", Title: "Reserve item one", Summary: "First reserve summary."},
		{ID: "r2", Title: "Reserve item two", Summary: "Second reserve summary."},
	})

	first := e.ShowMore(context.Background(), "user-sm", 1)
	if len(first) != 1 || first[0].Candidate.ID != "r1" {
		t.Fatalf("Expected r1 first, got %+v", first)
	}
	second := e.ShowMore(context.Background(), "user-sm", 5)
	if len(second) != 1 || second[0].Candidate.ID != "r2" {
		t.Fatalf("Expected r2 next, got %+v", second)
	}
	if third := e.ShowMore(context.Background(), "user-sm", 1); third != nil {
		t.Errorf("Expected empty reserve, got %d items", len(third))
	}
}

func TestWebhookDisablesAfterConsecutiveFailures(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := newWebhookDeliverer()
	d.validate = func(context.Context, string) error { return nil }

	ctx := context.Background()
	for i := 0; i < webhookDisableThreshold; i++ {
		if d.Deliver(ctx, "user-wh", server.URL, "title", "body") {
			t.Fatalf("Expected delivery %d to fail", i)
		}
	}
	if hits != webhookDisableThreshold {
		t.Fatalf("Expected %d attempts before disable, got %d", webhookDisableThreshold, hits)
	}
	if d.Deliver(ctx, "user-wh", server.URL, "title", "body") {
		t.Error("Expected disabled webhook to refuse delivery")
	}
	if hits != webhookDisableThreshold {
		t.Errorf("Expected no request after disable, got %d total", hits)
	}

	d.Reenable("user-wh")
	d.Deliver(ctx, "user-wh", server.URL, "title", "body")
	if hits != webhookDisableThreshold+1 {
		t.Errorf("Expected delivery attempt after reenable, got %d total", hits)
	}
}

func TestWebhookRedirectTargetsRevalidated(t *testing.T) {
	internalHits := 0
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		internalHits++
		w.WriteHeader(http.StatusOK)
	}))
	defer internal.Close()

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL, http.StatusFound)
	}))
	defer hook.Close()

	d := newWebhookDeliverer()
	d.validate = func(_ context.Context, raw string) error {
		if strings.HasPrefix(raw, hook.URL) {
			return nil
		}
		return fmt.Errorf("blocked address in %s", raw)
	}

	if d.Deliver(context.Background(), "user-rd", hook.URL, "title", "body") {
		t.Error("Expected delivery to fail when the redirect target is blocked")
	}
	if internalHits != 0 {
		t.Errorf("Expected redirect target to receive nothing, got %d posts", internalHits)
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pipelines.json")
	if err := os.WriteFile(cfgPath, []byte(testPipelinesJSON), 0644); err != nil {
		t.Fatalf("write pipelines config: %v", err)
	}
	stateDir := filepath.Join(dir, "state")
	manager := llm.NewManager(llm.Config{})

	e1 := New(config.NewPipelinesHolder(cfgPath), testPersonasConfig(), nil, manager, nil, stateDir)
	e1.ApplyUserFeedback("user-persist", "more geopolitics")
	e1.PersistState()

	e2 := New(config.NewPipelinesHolder(cfgPath), testPersonasConfig(), nil, manager, nil, stateDir)
	profile := e2.Prefs.Get("user-persist")
	if profile.TopicWeights["geopolitics"] != 0.2 {
		t.Errorf("Expected restored geopolitics weight 0.2, got %v", profile.TopicWeights["geopolitics"])
	}
}
