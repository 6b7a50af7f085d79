// Package domain defines the data model shared by every pipeline stage:
// candidates, report items, narrative threads, and the final delivery payload.
package domain

import (
	"time"
)

// Urgency classifies how quickly an item should surface.
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyElevated Urgency = "elevated"
	UrgencyBreaking Urgency = "breaking"
	UrgencyCritical Urgency = "critical"
)

// urgencyRanks gives urgencies a severity order for comparisons and filters.
var urgencyRanks = map[Urgency]int{
	UrgencyRoutine:  0,
	UrgencyElevated: 1,
	UrgencyBreaking: 2,
	UrgencyCritical: 3,
}

// Rank returns the severity order of the urgency. Unknown values rank as routine.
func (u Urgency) Rank() int {
	return urgencyRanks[u]
}

// ParseUrgency maps a user-supplied string to an Urgency, falling back to routine.
func ParseUrgency(s string) Urgency {
	u := Urgency(s)
	if _, ok := urgencyRanks[u]; ok {
		return u
	}
	return UrgencyRoutine
}

// MaxUrgency returns the more severe of two urgencies.
func MaxUrgency(a, b Urgency) Urgency {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Lifecycle tracks where a story sits in its arc.
type Lifecycle string

const (
	LifecycleDeveloping Lifecycle = "developing"
	LifecycleBreaking   Lifecycle = "breaking"
	LifecycleOngoing    Lifecycle = "ongoing"
	LifecycleWaning     Lifecycle = "waning"
	LifecycleResolved   Lifecycle = "resolved"
)

var lifecycleRanks = map[Lifecycle]int{
	LifecycleDeveloping: 1,
	LifecycleBreaking:   4,
	LifecycleOngoing:    3,
	LifecycleWaning:     2,
	LifecycleResolved:   0,
}

// Rank orders lifecycles by display priority (breaking first, resolved last).
func (l Lifecycle) Rank() int {
	return lifecycleRanks[l]
}

// MaxLifecycle returns the higher-priority of two lifecycle stages.
func MaxLifecycle(a, b Lifecycle) Lifecycle {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// BriefingType identifies what kind of briefing a payload represents.
type BriefingType string

const (
	BriefingOnDemand  BriefingType = "on_demand"
	BriefingScheduled BriefingType = "scheduled"
	BriefingAlert     BriefingType = "alert"
)

// Candidate is one scored news item proposed by a single research agent.
type Candidate struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	URL          string `json:"url"`
	Source       string `json:"source"`
	Topic        string `json:"topic"`
	DiscoveredBy string `json:"discovered_by"`

	// Scores, each clamped to [0,1] by Validate.
	Evidence         float64 `json:"evidence"`
	Novelty          float64 `json:"novelty"`
	PreferenceFit    float64 `json:"preference_fit"`
	PredictionSignal float64 `json:"prediction_signal"`

	Urgency   Urgency   `json:"urgency"`
	Lifecycle Lifecycle `json:"lifecycle"`

	Regions          []string `json:"regions,omitempty"`
	CorroboratedBy   []string `json:"corroborated_by,omitempty"`
	ContrarianSignal string   `json:"contrarian_signal,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ConfidenceBand expresses a low/mid/high confidence interval with assumptions.
type ConfidenceBand struct {
	Low            float64  `json:"low"`
	Mid            float64  `json:"mid"`
	High           float64  `json:"high"`
	KeyAssumptions []string `json:"key_assumptions,omitempty"`
}

// Label buckets the band by its midpoint.
func (b ConfidenceBand) Label() string {
	switch {
	case b.Mid >= 0.80:
		return "high"
	case b.Mid >= 0.55:
		return "moderate"
	default:
		return "low"
	}
}

// NarrativeThread is a cluster of candidates judged to be the same story.
type NarrativeThread struct {
	ThreadID    string          `json:"thread_id"`
	Headline    string          `json:"headline"`
	Candidates  []Candidate     `json:"candidates"`
	Lifecycle   Lifecycle       `json:"lifecycle"`
	Urgency     Urgency         `json:"urgency"`
	SourceCount int             `json:"source_count"`
	Confidence  *ConfidenceBand `json:"confidence,omitempty"`
	Score       float64         `json:"thread_score"`
}

// ReportItem is a candidate promoted into the final briefing with generated analysis.
type ReportItem struct {
	Candidate         Candidate       `json:"candidate"`
	WhyItMatters      string          `json:"why_it_matters"`
	WhatChanged       string          `json:"what_changed"`
	PredictiveOutlook string          `json:"predictive_outlook"`
	AdjacentReads     []string        `json:"adjacent_reads,omitempty"`
	Confidence        *ConfidenceBand `json:"confidence,omitempty"`
	ThreadID          string          `json:"thread_id,omitempty"`
	ContrarianNote    string          `json:"contrarian_note,omitempty"`
}

// GeoRisk is the per-region risk assessment produced by the geo-risk index.
type GeoRisk struct {
	Region          string   `json:"region"`
	RiskLevel       float64  `json:"risk_level"`
	PreviousLevel   float64  `json:"previous_level"`
	EscalationDelta float64  `json:"escalation_delta"`
	IsEscalating    bool     `json:"is_escalating"`
	Drivers         []string `json:"drivers,omitempty"`
}

// TrendSignal is the per-topic velocity anomaly produced by the trend detector.
type TrendSignal struct {
	Topic        string  `json:"topic"`
	Velocity     float64 `json:"velocity"`
	Baseline     float64 `json:"baseline_velocity"`
	AnomalyScore float64 `json:"anomaly_score"`
	IsEmerging   bool    `json:"is_emerging"`
}

// PipelineHealth summarizes what actually ran for one request.
type PipelineHealth struct {
	AgentsTotal        int      `json:"agents_total"`
	AgentsContributing int      `json:"agents_contributing"`
	AgentsFailed       []string `json:"agents_failed,omitempty"`
	StagesEnabled      []string `json:"stages_enabled,omitempty"`
	StagesFailed       []string `json:"stages_failed,omitempty"`
	TotalCandidates    int      `json:"total_candidates"`
}

// DeliveryPayload is the immutable result of one briefing request.
type DeliveryPayload struct {
	UserID       string            `json:"user_id"`
	RequestID    string            `json:"request_id"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Items        []ReportItem      `json:"items"`
	BriefingType BriefingType      `json:"briefing_type"`
	Threads      []NarrativeThread `json:"threads,omitempty"`
	GeoRisks     []GeoRisk         `json:"geo_risks,omitempty"`
	Trends       []TrendSignal     `json:"trends,omitempty"`
	Metadata     PayloadMetadata   `json:"metadata"`
}

// PayloadMetadata carries diagnostics and error context alongside the items.
type PayloadMetadata struct {
	PipelineHealth PipelineHealth `json:"pipeline_health"`
	ErrorType      string         `json:"error_type,omitempty"`
	ErrorDetail    string         `json:"error_detail,omitempty"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
}
