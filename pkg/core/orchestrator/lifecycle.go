// Package orchestrator compiles briefing requests into research tasks and
// tracks each request's lifecycle through the pipeline stages.
package orchestrator

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Stage is one pipeline lifecycle position.
type Stage string

const (
	StageQueued          Stage = "QUEUED"
	StageCompilingBrief  Stage = "COMPILING_BRIEF"
	StageResearching     Stage = "RESEARCHING"
	StageEnriching       Stage = "ENRICHING"
	StageExpertReview    Stage = "EXPERT_REVIEW"
	StageEditorialReview Stage = "EDITORIAL_REVIEW"
	StageFormatting      Stage = "FORMATTING"
	StageDelivering      Stage = "DELIVERING"
	StageComplete        Stage = "COMPLETE"
	StageFailed          Stage = "FAILED"
)

// Transition records one lifecycle advance with the time spent in the stage
// being left.
type Transition struct {
	From           Stage     `json:"from"`
	To             Stage     `json:"to"`
	At             time.Time `json:"at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
}

// Lifecycle is the mutable stage record for one request.
type Lifecycle struct {
	RequestID string

	mu          sync.Mutex
	current     Stage
	enteredAt   time.Time
	transitions []Transition
	failReason  string
	now         func() time.Time
}

func NewLifecycle(requestID string) *Lifecycle {
	l := &Lifecycle{
		RequestID: requestID,
		current:   StageQueued,
		now:       time.Now,
	}
	l.enteredAt = l.now()
	return l
}

// Advance moves to the next stage, recording elapsed seconds in the stage
// being left.
func (l *Lifecycle) Advance(next Stage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.enteredAt).Seconds()
	l.transitions = append(l.transitions, Transition{
		From:           l.current,
		To:             next,
		At:             now,
		ElapsedSeconds: elapsed,
	})
	log.Debug().
		Str("request", l.RequestID).
		Str("from", string(l.current)).
		Str("to", string(next)).
		Float64("elapsed_s", elapsed).
		Msg("lifecycle transition")
	l.current = next
	l.enteredAt = now
}

// Fail terminates the lifecycle with a reason.
func (l *Lifecycle) Fail(reason string) {
	l.Advance(StageFailed)
	l.mu.Lock()
	l.failReason = reason
	l.mu.Unlock()
}

// Current returns the present stage.
func (l *Lifecycle) Current() Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// FailReason returns the failure reason, empty unless FAILED.
func (l *Lifecycle) FailReason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failReason
}

// Transitions returns a copy of the transition history.
func (l *Lifecycle) Transitions() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transition(nil), l.transitions...)
}

// TotalSeconds is the wall time from creation to the last transition.
func (l *Lifecycle) TotalSeconds() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0.0
	for _, t := range l.transitions {
		total += t.ElapsedSeconds
	}
	return total
}
