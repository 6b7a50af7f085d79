package editorial

import (
	"fmt"
	"regexp"
	"strings"

	"intel_briefing/pkg/core/domain"
)

// fillerPatterns are removed wherever they appear; matching is case-insensitive.
var fillerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bit is important to note that\s*`),
	regexp.MustCompile(`(?i)\bit should be noted that\s*`),
	regexp.MustCompile(`(?i)\bin order to\b`),
	regexp.MustCompile(`(?i)\bat the end of the day,?\s*`),
	regexp.MustCompile(`(?i)\bneedless to say,?\s*`),
	regexp.MustCompile(`(?i)\bbasically,?\s*`),
	regexp.MustCompile(`(?i)\b(very|really|extremely)\s+`),
}

// adjacentReadTemplates seed follow-up suggestions per topic; the default row
// is used for topics without a dedicated set.
var adjacentReadTemplates = map[string][]string{
	"geopolitics": {
		"Track the official statements from the involved governments for position shifts.",
		"Compare coverage across regional and Western outlets for framing gaps.",
	},
	"economy": {
		"Check the next scheduled data release for confirmation of the trend.",
		"Watch central bank commentary for a policy response.",
	},
	"technology": {
		"Look for independent benchmarks or replication before drawing conclusions.",
		"Watch competitor responses over the coming week.",
	},
	"": {
		"Follow the original source for updates as the story develops.",
		"Look for a second independent source before acting on this.",
	},
}

// watchpointTerms mark an outlook as already actionable.
var watchpointTerms = []string{"watch", "expect", "monitor", "track", "look for"}

// ClarityAgent strips filler, enforces a one-to-two sentence shape, injects a
// watchpoint into outlooks that lack one, and rewrites adjacent reads from
// topic templates.
type ClarityAgent struct {
	Rec Recorder
}

// Polish cleans one item in place and records review events.
func (a *ClarityAgent) Polish(requestID string, item *domain.ReportItem) {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"why_it_matters", &item.WhyItMatters},
		{"what_changed", &item.WhatChanged},
		{"predictive_outlook", &item.PredictiveOutlook},
	}

	for _, f := range fields {
		before := *f.ptr
		after := stripFiller(before)
		after = capSentences(after, 2)
		if f.name == "predictive_outlook" {
			after = ensureWatchpoint(after, item.Candidate.Topic)
		}
		after = guardNarrative(after, item.Candidate)
		*f.ptr = after

		if a.Rec != nil {
			a.Rec.Record("review", requestID, map[string]interface{}{
				"agent":      "clarity",
				"field":      f.name,
				"before_len": len(before),
				"after_len":  len(after),
				"changed":    before != after,
			})
		}
	}

	item.AdjacentReads = adjacentReads(item.Candidate.Topic)
}

func stripFiller(text string) string {
	for _, re := range fillerPatterns {
		text = re.ReplaceAllString(text, "")
	}
	return strings.Join(strings.Fields(text), " ")
}

// capSentences keeps at most n sentences.
func capSentences(text string, n int) string {
	sentences := splitSentences(text)
	if len(sentences) <= n {
		return text
	}
	return strings.Join(sentences[:n], " ")
}

// ensureWatchpoint appends a concrete watch instruction when the outlook has
// no actionable verb.
func ensureWatchpoint(outlook, topic string) string {
	lower := strings.ToLower(outlook)
	for _, term := range watchpointTerms {
		if strings.Contains(lower, term) {
			return outlook
		}
	}
	outlook = strings.TrimSpace(outlook)
	if outlook != "" && !strings.HasSuffix(outlook, ".") {
		outlook += "."
	}
	return strings.TrimSpace(outlook + fmt.Sprintf(" Watch for follow-up reporting on %s in the next cycle.", orDefault(strings.ToLower(topic), "this story")))
}

func adjacentReads(topic string) []string {
	if reads, ok := adjacentReadTemplates[strings.ToLower(topic)]; ok {
		return append([]string(nil), reads...)
	}
	return append([]string(nil), adjacentReadTemplates[""]...)
}
