package editorial

import (
	"context"
	"strings"
	"testing"

	"intel_briefing/pkg/core/domain"
)

type fakeRecorder struct {
	events []map[string]interface{}
}

func (r *fakeRecorder) Record(eventType, requestID string, details map[string]interface{}) {
	details["event_type"] = eventType
	r.events = append(r.events, details)
}

func newItem() domain.ReportItem {
	return Compose(domain.Candidate{
		ID:      "a",
		Title:   "Central bank raises rates",
		Summary: "The central bank raised rates by 50 basis points. Markets reacted sharply. Analysts were divided.",
		Source:  "reuters",
		Topic:   "economy",
		Urgency: domain.UrgencyElevated,
	})
}

func TestComposeDraftsAllFields(t *testing.T) {
	item := newItem()
	if item.WhyItMatters == "" || item.WhatChanged == "" || item.PredictiveOutlook == "" {
		t.Fatalf("Compose left fields empty: %+v", item)
	}
	if item.WhyItMatters == item.Candidate.Summary {
		t.Error("Narrative must not equal the raw summary")
	}
}

func TestStyleAgentAppliesToneAndRecords(t *testing.T) {
	rec := &fakeRecorder{}
	agent := &StyleAgent{Rec: rec}
	item := newItem()

	agent.Rewrite(context.Background(), "req-1", &item, "urgent")

	if !strings.HasPrefix(item.WhyItMatters, "Act on this: ") {
		t.Errorf("Urgent tone not applied: %q", item.WhyItMatters)
	}
	if len(rec.events) != 3 {
		t.Fatalf("Expected 3 review events, got %d", len(rec.events))
	}
	for _, e := range rec.events {
		if e["agent"] != "style" {
			t.Errorf("Wrong agent tag: %v", e["agent"])
		}
		if _, ok := e["changed"]; !ok {
			t.Error("Review event missing changed flag")
		}
	}
}

func TestStyleAgentNeutralToneKeepsDraft(t *testing.T) {
	agent := &StyleAgent{}
	item := newItem()
	before := item.WhyItMatters
	agent.Rewrite(context.Background(), "req-1", &item, "neutral")
	if item.WhyItMatters != before {
		t.Errorf("Neutral tone should keep the draft: %q", item.WhyItMatters)
	}
}

func TestGuardNarrativeFallsBackToTitle(t *testing.T) {
	c := domain.Candidate{Title: "Some headline", Summary: "the raw summary text"}
	if got := guardNarrative("", c); got != "Some headline." {
		t.Errorf("Empty narrative should fall back to title, got %q", got)
	}
	if got := guardNarrative("the raw summary text", c); got != "Some headline." {
		t.Errorf("Summary-equal narrative must be replaced, got %q", got)
	}
	if got := guardNarrative("distinct analysis", c); got != "distinct analysis" {
		t.Errorf("Distinct narrative should pass through, got %q", got)
	}
}

func TestClarityAgentStripsFillerAndCapsSentences(t *testing.T) {
	rec := &fakeRecorder{}
	agent := &ClarityAgent{Rec: rec}
	item := newItem()
	item.WhyItMatters = "It is important to note that this matters. It really does. Basically, a third sentence here."

	agent.Polish("req-1", &item)

	if strings.Contains(strings.ToLower(item.WhyItMatters), "important to note") {
		t.Errorf("Filler survived: %q", item.WhyItMatters)
	}
	if n := len(splitSentences(item.WhyItMatters)); n > 2 {
		t.Errorf("Expected at most 2 sentences, got %d: %q", n, item.WhyItMatters)
	}
	if len(rec.events) != 3 {
		t.Errorf("Expected 3 review events, got %d", len(rec.events))
	}
}

func TestClarityAgentInjectsWatchpoint(t *testing.T) {
	agent := &ClarityAgent{}
	item := newItem()
	item.PredictiveOutlook = "The situation remains fluid."

	agent.Polish("req-1", &item)

	lower := strings.ToLower(item.PredictiveOutlook)
	if !strings.Contains(lower, "watch") {
		t.Errorf("Outlook missing watchpoint: %q", item.PredictiveOutlook)
	}
}

func TestClarityAgentLeavesActionableOutlook(t *testing.T) {
	agent := &ClarityAgent{}
	item := newItem()
	item.PredictiveOutlook = "Monitor the next data release for confirmation."

	agent.Polish("req-1", &item)
	if strings.Count(strings.ToLower(item.PredictiveOutlook), "watch") > 0 &&
		!strings.Contains(item.PredictiveOutlook, "Monitor") {
		t.Errorf("Actionable outlook should be untouched: %q", item.PredictiveOutlook)
	}
}

func TestAdjacentReadsUseTopicTemplates(t *testing.T) {
	agent := &ClarityAgent{}
	item := newItem() // topic economy
	agent.Polish("req-1", &item)

	if len(item.AdjacentReads) == 0 {
		t.Fatal("Expected adjacent reads")
	}
	if !strings.Contains(item.AdjacentReads[0], "data release") {
		t.Errorf("Economy template expected, got %v", item.AdjacentReads)
	}

	item.Candidate.Topic = "unmapped-topic"
	agent.Polish("req-1", &item)
	if !strings.Contains(item.AdjacentReads[0], "original source") {
		t.Errorf("Default template expected, got %v", item.AdjacentReads)
	}
}
