// Package council runs candidate selection through a panel of weighted expert
// personas: each persona votes keep/drop with a confidence, a chair arbitrates
// split decisions, and accepted candidates are ranked and deduplicated.
package council

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"intel_briefing/pkg/core/config"
	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/llm"
	"intel_briefing/pkg/core/utils"
)

// Vote is one persona's judgment on one candidate.
type Vote struct {
	ExpertID    string  `json:"expert_id"`
	CandidateID string  `json:"candidate_id"`
	Keep        bool    `json:"keep"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale"`
	RiskNote    string  `json:"risk_note,omitempty"`
	Flipped     bool    `json:"flipped,omitempty"` // chair arbitration changed this vote
	ViaLLM      bool    `json:"via_llm,omitempty"`
}

// CandidateDebate is the full voting record for one candidate.
type CandidateDebate struct {
	CandidateID string `json:"candidate_id"`
	Title       string `json:"title"`
	Votes       []Vote `json:"votes"`
	KeepVotes   int    `json:"keep_votes"`
	Required    int    `json:"required"`
	Accepted    bool   `json:"accepted"`
	Arbitrated  bool   `json:"arbitrated"`
}

// DebateRecord collects every candidate debate from one selection pass.
type DebateRecord struct {
	Debates   []CandidateDebate `json:"debates"`
	ChairID   string            `json:"chair_id"`
	Panel     []string          `json:"panel"`
	StartedAt time.Time         `json:"started_at"`
}

// llmVoteSchema is the JSON shape the voting prompt asks providers for.
type llmVoteSchema struct {
	Keep       bool    `json:"keep"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	RiskNote   string  `json:"risk_note"`
}

// dimensionValue maps a persona dimension name onto a candidate-derived score
// in [0,1]. Unknown dimensions contribute zero.
func dimensionValue(name string, c domain.Candidate, now time.Time) float64 {
	switch name {
	case "evidence":
		return c.Evidence
	case "novelty":
		return c.Novelty
	case "preference_fit":
		return c.PreferenceFit
	case "prediction_signal":
		return c.PredictionSignal
	case "urgency":
		return float64(c.Urgency.Rank()) / 3.0
	case "corroboration":
		v := float64(len(c.CorroboratedBy)) / 2.0
		if v > 1 {
			v = 1
		}
		return v
	case "recency":
		age := now.Sub(c.CreatedAt)
		if age <= 0 {
			return 1
		}
		if age >= 24*time.Hour {
			return 0
		}
		return 1 - age.Hours()/24
	default:
		return 0
	}
}

// HeuristicVote computes a persona's dimension-weighted score for a candidate.
func HeuristicVote(p config.PersonaSpec, c domain.Candidate, now time.Time) Vote {
	var sum, weightSum float64
	topDim, topContribution := "", -1.0
	for dim, w := range p.Dimensions {
		if w <= 0 {
			continue
		}
		v := dimensionValue(dim, c, now)
		sum += w * v
		weightSum += w
		if w*v > topContribution {
			topContribution = w * v
			topDim = dim
		}
	}
	score := 0.0
	if weightSum > 0 {
		score = sum / weightSum
	}

	keep := score >= p.KeepThreshold
	confidence := score
	if confidence < p.ConfidenceMin {
		confidence = p.ConfidenceMin
	}
	if confidence > p.ConfidenceMax {
		confidence = p.ConfidenceMax
	}

	verdict := "keep"
	if !keep {
		verdict = "drop"
	}
	return Vote{
		ExpertID:    p.ID,
		CandidateID: c.ID,
		Keep:        keep,
		Confidence:  confidence,
		Rationale:   fmt.Sprintf("%s: scored %.2f against threshold %.2f, strongest on %s", verdict, score, p.KeepThreshold, topDim),
		RiskNote:    riskNote(c),
	}
}

// riskNote surfaces the most pressing sourcing concern for a candidate.
func riskNote(c domain.Candidate) string {
	switch {
	case len(c.CorroboratedBy) == 0 && c.Evidence < 0.4:
		return "single-source claim with weak evidence"
	case len(c.CorroboratedBy) == 0:
		return "not yet corroborated by a second source"
	case c.Novelty > 0.8 && c.Evidence < 0.5:
		return "novel but thinly evidenced"
	default:
		return ""
	}
}

// LLMVote asks a provider for a structured vote. Any transport or parse
// failure falls back to the heuristic vote.
func LLMVote(ctx context.Context, provider llm.Provider, p config.PersonaSpec, c domain.Candidate, now time.Time) Vote {
	if provider == nil {
		return HeuristicVote(p, c, now)
	}

	prompt := fmt.Sprintf(`Evaluate this news item for inclusion in an intelligence briefing.

Title: %s
Summary: %s
Source: %s
Topic: %s
Evidence: %.2f  Novelty: %.2f  Urgency: %s  Corroborated by: %d source(s)

Respond with JSON only:
{"keep": true|false, "confidence": 0.0-1.0, "rationale": "one sentence", "risk_note": "one sentence or empty"}`,
		utils.SanitizePromptField(c.Title, 300),
		utils.SanitizePromptField(c.Summary, 800),
		utils.SanitizePromptField(c.Source, 100),
		utils.SanitizePromptField(c.Topic, 100),
		c.Evidence, c.Novelty, c.Urgency, len(c.CorroboratedBy))

	response, err := provider.GenerateResponse(ctx, prompt, p.SystemPrompt, map[string]interface{}{"json_mode": true})
	if err != nil {
		log.Debug().Err(err).Str("expert", p.ID).Msg("LLM vote failed, using heuristic")
		return HeuristicVote(p, c, now)
	}

	var parsed llmVoteSchema
	if err := utils.SmartParse(response, &parsed); err != nil {
		log.Debug().Err(err).Str("expert", p.ID).Msg("LLM vote unparseable, using heuristic")
		return HeuristicVote(p, c, now)
	}

	confidence := domain.Clamp01(parsed.Confidence)
	if confidence < p.ConfidenceMin {
		confidence = p.ConfidenceMin
	}
	if confidence > p.ConfidenceMax {
		confidence = p.ConfidenceMax
	}
	return Vote{
		ExpertID:    p.ID,
		CandidateID: c.ID,
		Keep:        parsed.Keep,
		Confidence:  confidence,
		Rationale:   strings.TrimSpace(parsed.Rationale),
		RiskNote:    strings.TrimSpace(parsed.RiskNote),
		ViaLLM:      true,
	}
}

// RequiredVotes clamps the configured acceptance threshold to [1, panel size].
// Zero or negative means simple majority.
func RequiredVotes(minVotes, panelSize int) int {
	if panelSize < 1 {
		return 1
	}
	if minVotes <= 0 {
		minVotes = (panelSize + 1) / 2
	}
	if minVotes < 1 {
		minVotes = 1
	}
	if minVotes > panelSize {
		minVotes = panelSize
	}
	return minVotes
}

// dedupeByTitle drops later candidates whose lowercased title was seen before.
func dedupeByTitle(candidates []domain.Candidate) []domain.Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c.Title))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// sortByComposite orders candidates by composite score descending, ties by ID
// for stable output.
func sortByComposite(candidates []domain.Candidate, weights domain.ScoringWeights) {
	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a].Composite(weights), candidates[b].Composite(weights)
		if ca != cb {
			return ca > cb
		}
		return candidates[a].ID < candidates[b].ID
	})
}
