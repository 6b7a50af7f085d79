// Package editorial turns selected candidates into briefing prose and then
// polishes it: a style agent matches the user's tone, a clarity agent strips
// filler and enforces sentence shape. Both have LLM-backed variants that fall
// back to the heuristics on any failure.
package editorial

import (
	"fmt"
	"strings"

	"intel_briefing/pkg/core/domain"
)

// Recorder receives review events; the audit trail satisfies this.
type Recorder interface {
	Record(eventType, requestID string, details map[string]interface{})
}

// Compose drafts the initial narrative fields for a selected candidate.
// The draft is deliberately mechanical; the style and clarity agents rework it.
func Compose(c domain.Candidate) domain.ReportItem {
	item := domain.ReportItem{Candidate: c}

	subject := strings.TrimSpace(c.Title)
	if subject == "" {
		subject = "this development"
	}

	item.WhyItMatters = fmt.Sprintf("%s signals movement in %s that affects your tracked interests.", subject, orDefault(c.Topic, "this area"))
	item.WhatChanged = fmt.Sprintf("New reporting from %s: %s", orDefault(c.Source, "the wire"), firstSentence(c.Summary, subject))

	switch {
	case c.Urgency.Rank() >= domain.UrgencyBreaking.Rank():
		item.PredictiveOutlook = fmt.Sprintf("Expect rapid follow-on developments in %s over the next 24-48 hours.", orDefault(c.Topic, "this story"))
	case len(c.CorroboratedBy) > 0:
		item.PredictiveOutlook = fmt.Sprintf("Corroborated by %d source(s); the story is likely to consolidate rather than reverse.", len(c.CorroboratedBy))
	default:
		item.PredictiveOutlook = "Single-sourced so far; treat the framing as provisional until corroborated."
	}

	if c.ContrarianSignal != "" {
		item.ContrarianNote = c.ContrarianSignal
	}
	return item
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// firstSentence returns the leading sentence of text, or the fallback when
// the text is empty.
func firstSentence(text, fallback string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.Index(text, sep); idx > 0 {
			return text[:idx+1]
		}
	}
	return text
}

// splitSentences breaks text on terminal punctuation, keeping the punctuation.
func splitSentences(text string) []string {
	var out []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				out = append(out, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}
