package enrich

import (
	"sort"
	"strings"
	"unicode"
)

// paragraphScore ranks a paragraph for extractive summarization. News follows
// the inverted pyramid, so position dominates, with length, named-entity
// density, numeric density, and direct quotes as secondary signals.
func paragraphScore(text string, index, total int) float64 {
	if isBoilerplate(text) {
		return 0
	}

	score := 0.0
	if total > 1 {
		score += 0.4 * (1.0 - float64(index)/float64(total-1))
	} else {
		score += 0.4
	}

	words := strings.Fields(text)
	n := len(words)
	switch {
	case n >= 15 && n <= 60:
		score += 0.2
	case n > 60:
		score += 0.1
	}

	entities := 0
	numbers := 0
	for i, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if trimmed == "" {
			continue
		}
		if i > 0 && unicode.IsUpper([]rune(trimmed)[0]) {
			entities++
		}
		if strings.IndexFunc(trimmed, unicode.IsDigit) >= 0 {
			numbers++
		}
	}
	if n > 0 {
		score += 0.2 * minFloat(float64(entities)/float64(n)*4, 1.0)
		score += 0.1 * minFloat(float64(numbers)/float64(n)*8, 1.0)
	}

	if strings.ContainsAny(text, "\"“”") {
		score += 0.1
	}
	return score
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// ExtractiveSummary picks the top-scoring paragraphs, re-ordered to document
// order, joined into a short summary. Returns "" when nothing scores.
func ExtractiveSummary(paragraphs []string, maxParagraphs int) string {
	if len(paragraphs) == 0 {
		return ""
	}
	if maxParagraphs <= 0 {
		maxParagraphs = 2
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, 0, len(paragraphs))
	for i, p := range paragraphs {
		if s := paragraphScore(p, i, len(paragraphs)); s > 0 {
			ranked = append(ranked, scored{index: i, score: s})
		}
	}
	if len(ranked) == 0 {
		return ""
	}

	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	if len(ranked) > maxParagraphs {
		ranked = ranked[:maxParagraphs]
	}
	sort.Slice(ranked, func(a, b int) bool { return ranked[a].index < ranked[b].index })

	parts := make([]string, 0, len(ranked))
	for _, r := range ranked {
		parts = append(parts, paragraphs[r.index])
	}
	return strings.Join(parts, " ")
}
