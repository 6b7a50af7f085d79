package audit

import (
	"fmt"
	"strings"
	"testing"
)

func TestTraceOrderPreserved(t *testing.T) {
	trail := NewTrail(10)
	trail.Record("request_start", "req-1", nil)
	trail.Record("stage_complete", "req-1", map[string]interface{}{"stage": "research"})
	trail.Record("request_start", "req-2", nil)
	trail.Record("stage_complete", "req-1", map[string]interface{}{"stage": "enrichment"})

	trace := trail.GetRequestTrace("req-1")
	if len(trace) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(trace))
	}
	if trace[0].Type != "request_start" || trace[2].Details["stage"] != "enrichment" {
		t.Errorf("Trace out of order: %+v", trace)
	}
	if len(trail.GetRequestTrace("req-2")) != 1 {
		t.Error("req-2 trace should be isolated")
	}
}

func TestExpertVotesGroupedByExpert(t *testing.T) {
	trail := NewTrail(10)
	trail.Record("vote", "req-1", map[string]interface{}{"expert_id": "skeptic", "keep": true})
	trail.Record("vote", "req-1", map[string]interface{}{"expert_id": "scout", "keep": false})
	trail.Record("vote", "req-1", map[string]interface{}{"expert_id": "skeptic", "keep": false})
	trail.Record("stage_complete", "req-1", nil)

	votes := trail.GetExpertVotes("req-1")
	if len(votes["skeptic"]) != 2 || len(votes["scout"]) != 1 {
		t.Errorf("Vote grouping wrong: %v", votes)
	}
}

func TestTrimEvictsOldestRequestsWhole(t *testing.T) {
	trail := NewTrail(10) // trim threshold is 12, batch is 2
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("req-%d", i)
		trail.Record("start", id, nil)
		trail.Record("end", id, nil)
	}
	if got := trail.RequestCount(); got != 12 {
		t.Fatalf("No trim expected at threshold, got %d requests", got)
	}

	trail.Record("start", "req-12", nil)
	if got := trail.RequestCount(); got != 11 {
		t.Errorf("Expected batch eviction down to 11 requests, got %d", got)
	}
	if len(trail.GetRequestTrace("req-0")) != 0 {
		t.Error("Oldest request should be fully evicted")
	}
	if len(trail.GetRequestTrace("req-1")) != 0 {
		t.Error("Eviction batch should cover the two oldest requests")
	}
	if len(trail.GetRequestTrace("req-2")) != 2 {
		t.Error("Surviving requests must keep their whole trace")
	}
}

func TestFormatRequestReport(t *testing.T) {
	trail := NewTrail(10)
	trail.Record("request_start", "req-1", map[string]interface{}{"user": "u1"})

	report := trail.FormatRequestReport("req-1")
	if !strings.Contains(report, "req-1") || !strings.Contains(report, "request_start") {
		t.Errorf("Report missing fields: %s", report)
	}
	if !strings.Contains(trail.FormatRequestReport("missing"), "no audit events") {
		t.Error("Missing request should produce an explanatory report")
	}
}
