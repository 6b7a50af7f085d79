// Package intel holds the per-request enrichment stages that sit between
// research fan-out and expert selection: corroboration, diversity, urgency,
// clustering, geo-risk, and trend detection. Every stage tolerates missing
// upstream enrichment so individual stages can be disabled in pipelines.json.
package intel

import (
	"strings"
)

// stopwords excluded from token-set comparison; keeps similarity focused on
// content-bearing terms.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "with": true, "at": true,
	"by": true, "is": true, "are": true, "was": true, "as": true, "its": true,
	"after": true, "over": true, "from": true, "has": true, "have": true,
}

// tokenSet lowercases and tokenizes text into a set of content words.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		set[tok] = true
	}
	return set
}

// jaccard computes token-set similarity between two sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// textSimilarity compares two (title, summary) pairs by token-set overlap.
func textSimilarity(titleA, summaryA, titleB, summaryB string) float64 {
	return jaccard(tokenSet(titleA+" "+summaryA), tokenSet(titleB+" "+summaryB))
}
