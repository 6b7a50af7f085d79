// Package optimizer tracks per-agent and per-stage performance, recommends
// corrective actions, and gates failing agents behind circuit breakers.
package optimizer

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BreakerState is the circuit breaker's position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig tunes failure tolerance and recovery timing.
type BreakerConfig struct {
	FailureThreshold int `json:"failure_threshold"`
	RecoverySeconds  int `json:"recovery_seconds"`
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, RecoverySeconds: 300}
}

type breaker struct {
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool
}

// BreakerSet holds one circuit breaker per agent under a single lock.
type BreakerSet struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	breakers map[string]*breaker
}

func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoverySeconds <= 0 {
		cfg.RecoverySeconds = 300
	}
	return &BreakerSet{
		cfg:      cfg,
		now:      time.Now,
		breakers: make(map[string]*breaker),
	}
}

func (s *BreakerSet) get(agentID string) *breaker {
	b, ok := s.breakers[agentID]
	if !ok {
		b = &breaker{state: BreakerClosed}
		s.breakers[agentID] = b
	}
	return b
}

// Allow reports whether the agent may run now. An OPEN breaker transitions to
// HALF_OPEN once the recovery window has elapsed, and HALF_OPEN admits exactly
// one probe at a time.
func (s *BreakerSet) Allow(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(agentID)
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if s.now().Sub(b.openedAt) >= time.Duration(s.cfg.RecoverySeconds)*time.Second {
			b.state = BreakerHalfOpen
			b.probeInFlight = true
			log.Info().Str("agent", agentID).Msg("circuit breaker half-open, admitting probe")
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker and resets the consecutive-failure counter.
// The reset matters: without it a closed breaker re-opens on the first failure
// after recovery.
func (s *BreakerSet) RecordSuccess(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(agentID)
	if b.state != BreakerClosed {
		log.Info().Str("agent", agentID).Msg("circuit breaker closed after successful probe")
	}
	b.state = BreakerClosed
	b.consecutiveFailures = 0
	b.probeInFlight = false
}

// RecordFailure counts a failure; the breaker opens at the threshold, and a
// failed HALF_OPEN probe re-opens immediately.
func (s *BreakerSet) RecordFailure(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.get(agentID)
	b.consecutiveFailures++
	b.probeInFlight = false

	if b.state == BreakerHalfOpen || b.consecutiveFailures >= s.cfg.FailureThreshold {
		if b.state != BreakerOpen {
			log.Warn().Str("agent", agentID).Int("failures", b.consecutiveFailures).Msg("circuit breaker opened")
		}
		b.state = BreakerOpen
		b.openedAt = s.now()
	}
}

// State returns the agent's current breaker state.
func (s *BreakerSet) State(agentID string) BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(agentID).state
}
