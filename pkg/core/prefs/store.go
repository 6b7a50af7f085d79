package prefs

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store holds all profiles behind one mutex. Profiles are created lazily on
// first reference. Every mutator bumps the profile version under the lock.
type Store struct {
	mu       sync.Mutex
	profiles map[string]*UserProfile
}

func NewStore() *Store {
	return &Store{profiles: make(map[string]*UserProfile)}
}

// getOrCreateLocked must be called with s.mu held.
func (s *Store) getOrCreateLocked(userID string) *UserProfile {
	p, ok := s.profiles[userID]
	if !ok {
		p = NewProfile(userID)
		s.profiles[userID] = p
	}
	return p
}

// Get returns a snapshot copy of the profile, creating it if absent.
func (s *Store) Get(userID string) *UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(userID).clone()
}

// Update applies mutate to the profile under the lock and bumps the version.
// Returns the new version.
func (s *Store) Update(userID string, mutate func(*UserProfile)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrCreateLocked(userID)
	mutate(p)
	p.Version++
	return p.Version
}

// UpdateIfCurrent applies mutate only when the caller's expected version still
// matches. On mismatch it returns nil without mutating; otherwise the updated
// profile snapshot.
func (s *Store) UpdateIfCurrent(userID string, expectedVersion uint64, mutate func(*UserProfile)) *UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.getOrCreateLocked(userID)
	if p.Version != expectedVersion {
		return nil
	}
	mutate(p)
	p.Version++
	return p.clone()
}

// SetTopicWeight clamps and writes one topic weight, respecting the map cap.
func (s *Store) SetTopicWeight(userID, topic string, weight float64) uint64 {
	return s.Update(userID, func(p *UserProfile) {
		setWeight(p.TopicWeights, topic, clampFinite(weight, -1, 1, 0))
	})
}

// AdjustTopicWeight shifts a topic weight by delta, clamped to [-1,1].
func (s *Store) AdjustTopicWeight(userID, topic string, delta float64) uint64 {
	return s.Update(userID, func(p *UserProfile) {
		setWeight(p.TopicWeights, topic, clampFinite(p.TopicWeights[topic]+delta, -1, 1, 0))
	})
}

// AdjustSourceWeight shifts a source weight by delta, clamped to [-2,2].
func (s *Store) AdjustSourceWeight(userID, source string, delta float64) uint64 {
	return s.Update(userID, func(p *UserProfile) {
		setWeight(p.SourceWeights, source, clampFinite(p.SourceWeights[source]+delta, -2, 2, 0))
	})
}

// Snapshot deep-copies all profiles for persistence.
func (s *Store) Snapshot() map[string]*UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*UserProfile, len(s.profiles))
	for id, p := range s.profiles {
		out[id] = p.clone()
	}
	return out
}

// Restore loads persisted profiles, validating each entry. Invalid entries are
// repaired in place (caps enforced, non-finite floats reset) rather than
// crashing startup.
func (s *Store) Restore(profiles map[string]*UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range profiles {
		if p == nil || id == "" {
			log.Warn().Str("user", id).Msg("Discarding empty profile on restore")
			continue
		}
		p.UserID = id
		p.validate()
		s.profiles[id] = p
	}
	log.Info().Int("count", len(s.profiles)).Msg("Preference store restored")
}

// Count returns the number of loaded profiles.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}
