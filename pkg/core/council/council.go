package council

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"intel_briefing/pkg/core/config"
	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/llm"
)

// flipConfidenceCeiling bounds which votes the chair may overturn: a vote held
// at or above this confidence stands even against the weighted consensus.
const flipConfidenceCeiling = 0.6

// ExpertStats tracks a persona's long-run voting record for persistence and
// influence adjustment.
type ExpertStats struct {
	Influence  float64 `json:"influence"`
	Accuracy   float64 `json:"accuracy"` // agreement rate with final decisions
	TotalVotes int     `json:"total_votes"`
}

// Council is the expert panel. Persona definitions come from personas.json;
// voting statistics accumulate across requests under the lock.
type Council struct {
	personas *config.PersonasConfig
	llm      *llm.Manager
	now      func() time.Time

	mu    sync.Mutex
	stats map[string]*ExpertStats
}

func NewCouncil(personas *config.PersonasConfig, manager *llm.Manager) *Council {
	c := &Council{
		personas: personas,
		llm:      manager,
		now:      time.Now,
		stats:    make(map[string]*ExpertStats),
	}
	for _, p := range personas.Personas {
		c.stats[p.ID] = &ExpertStats{Influence: p.Influence}
	}
	return c
}

// influence returns the persona's effective arbitration weight, preferring
// any persisted override over the config default.
func (c *Council) influence(id string, fallback float64) float64 {
	if s, ok := c.stats[id]; ok && s.Influence > 0 {
		return s.Influence
	}
	return fallback
}

// Select votes on every candidate, arbitrates splits, and partitions accepted
// candidates into selected and reserve by composite rank.
func (c *Council) Select(ctx context.Context, candidates []domain.Candidate, maxItems, minVotesToAccept int, weights domain.ScoringWeights) (selected, reserve []domain.Candidate, record *DebateRecord) {
	now := c.now()
	panel := c.personas.Personas
	required := RequiredVotes(minVotesToAccept, len(panel))

	record = &DebateRecord{
		ChairID:   c.personas.Chair,
		StartedAt: now,
	}
	for _, p := range panel {
		record.Panel = append(record.Panel, p.ID)
	}

	var provider llm.Provider
	if c.llm != nil {
		provider = c.llm.GetProvider("expert")
	}

	var accepted []domain.Candidate

	for _, cand := range candidates {
		debate := CandidateDebate{
			CandidateID: cand.ID,
			Title:       cand.Title,
			Required:    required,
		}

		for _, p := range panel {
			var v Vote
			if provider != nil {
				v = LLMVote(ctx, provider, p, cand, now)
			} else {
				v = HeuristicVote(p, cand, now)
			}
			debate.Votes = append(debate.Votes, v)
		}

		c.arbitrate(&debate)

		for _, v := range debate.Votes {
			if v.Keep {
				debate.KeepVotes++
			}
		}
		debate.Accepted = debate.KeepVotes >= required
		if debate.Accepted {
			accepted = append(accepted, cand)
		}

		c.recordOutcome(&debate)
		record.Debates = append(record.Debates, debate)
	}

	sortByComposite(accepted, weights)
	accepted = dedupeByTitle(accepted)

	if maxItems <= 0 || maxItems > len(accepted) {
		maxItems = len(accepted)
	}
	selected = accepted[:maxItems]
	reserve = accepted[maxItems:]

	log.Info().
		Int("candidates", len(candidates)).
		Int("selected", len(selected)).
		Int("reserve", len(reserve)).
		Int("required_votes", required).
		Msg("council selection complete")
	return selected, reserve, record
}

// arbitrate runs the chair's second pass on a split debate: votes that oppose
// the influence-weighted consensus and are held with low confidence get
// flipped and flagged.
func (c *Council) arbitrate(debate *CandidateDebate) {
	keeps := 0
	for _, v := range debate.Votes {
		if v.Keep {
			keeps++
		}
	}
	if keeps == 0 || keeps == len(debate.Votes) {
		return // unanimous, nothing to arbitrate
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	weighted := 0.0
	for i, p := range c.personas.Personas {
		if i >= len(debate.Votes) {
			break
		}
		v := debate.Votes[i]
		inf := c.influence(p.ID, p.Influence)
		if v.Keep {
			weighted += inf * v.Confidence
		} else {
			weighted -= inf * v.Confidence
		}
	}
	consensus := weighted > 0

	for i := range debate.Votes {
		v := &debate.Votes[i]
		if v.Keep != consensus && v.Confidence < flipConfidenceCeiling {
			v.Keep = consensus
			v.Flipped = true
			v.Rationale += " [flipped by chair arbitration]"
			debate.Arbitrated = true
		}
	}
}

// recordOutcome folds the debate's final decision into each expert's accuracy
// as an exponential moving average of agreement.
func (c *Council) recordOutcome(debate *CandidateDebate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range debate.Votes {
		s, ok := c.stats[v.ExpertID]
		if !ok {
			s = &ExpertStats{Influence: 1.0}
			c.stats[v.ExpertID] = s
		}
		agreed := 0.0
		if v.Keep == debate.Accepted {
			agreed = 1.0
		}
		if s.TotalVotes == 0 {
			s.Accuracy = agreed
		} else {
			s.Accuracy = 0.9*s.Accuracy + 0.1*agreed
		}
		s.TotalVotes++
	}
}

// Snapshot returns per-expert stats for persistence.
func (c *Council) Snapshot() map[string]ExpertStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]ExpertStats, len(c.stats))
	for id, s := range c.stats {
		out[id] = *s
	}
	return out
}

// Restore loads persisted expert stats, discarding malformed entries.
func (c *Council) Restore(snapshot map[string]ExpertStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range snapshot {
		if id == "" || s.TotalVotes < 0 || s.Accuracy != s.Accuracy || s.Accuracy < 0 || s.Accuracy > 1 {
			continue
		}
		copied := s
		c.stats[id] = &copied
	}
}
