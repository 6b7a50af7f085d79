package prefs

import (
	"strings"
)

// feedbackStep is the weight delta applied per "more X" / "less X" phrase.
const feedbackStep = 0.2

// ApplyFeedback parses free-text feedback like "more geopolitics, less crypto,
// mute celebrity" and applies each recognized change as its own mutation (so
// the version counter advances once per change). Returns a change map of
// "topic:<name>" / "source:<name>" to the applied delta.
func (s *Store) ApplyFeedback(userID, text string) map[string]float64 {
	changes := make(map[string]float64)

	for _, clause := range splitClauses(text) {
		fields := strings.Fields(clause)
		if len(fields) < 2 {
			continue
		}
		verb := strings.ToLower(fields[0])
		target := strings.ToLower(strings.Join(fields[1:], " "))

		switch verb {
		case "more":
			s.AdjustTopicWeight(userID, target, feedbackStep)
			changes["topic:"+target] += feedbackStep
		case "less":
			s.AdjustTopicWeight(userID, target, -feedbackStep)
			changes["topic:"+target] -= feedbackStep
		case "mute":
			s.Update(userID, func(p *UserProfile) {
				for _, t := range p.MutedTopics {
					if t == target {
						return
					}
				}
				p.MutedTopics = append(p.MutedTopics, target)
			})
			changes["muted:"+target] = 1
		case "unmute":
			s.Update(userID, func(p *UserProfile) {
				kept := p.MutedTopics[:0]
				for _, t := range p.MutedTopics {
					if t != target {
						kept = append(kept, t)
					}
				}
				p.MutedTopics = kept
			})
			changes["muted:"+target] = 0
		case "trust":
			s.AdjustSourceWeight(userID, target, feedbackStep)
			changes["source:"+target] += feedbackStep
		case "distrust":
			s.AdjustSourceWeight(userID, target, -feedbackStep)
			changes["source:"+target] -= feedbackStep
		}
	}

	return changes
}

func splitClauses(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
