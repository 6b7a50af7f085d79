package editorial

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/llm"
	"intel_briefing/pkg/core/utils"
)

// StyleAgent rewrites narrative fields to match the user's requested tone.
// The rewritten text must never equal the candidate's raw summary; when a
// rewrite comes back empty, the candidate's title is the fallback, never the
// summary.
type StyleAgent struct {
	LLM *llm.Manager
	Rec Recorder
}

// tonePrefixes shape the heuristic rewrite per tone.
var tonePrefixes = map[string]string{
	"analytical": "Assessment: ",
	"casual":     "Heads up: ",
	"urgent":     "Act on this: ",
}

// Rewrite restyles one item in place and records a review event per field.
func (a *StyleAgent) Rewrite(ctx context.Context, requestID string, item *domain.ReportItem, tone string) {
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
		after := a.restyle(ctx, before, tone, item.Candidate)
		after = guardNarrative(after, item.Candidate)
		*f.ptr = after

		if a.Rec != nil {
			a.Rec.Record("review", requestID, map[string]interface{}{
				"agent":      "style",
				"field":      f.name,
				"before_len": len(before),
				"after_len":  len(after),
				"changed":    before != after,
			})
		}
	}
}

// restyle runs the LLM rewrite when a provider is keyed, heuristic otherwise.
func (a *StyleAgent) restyle(ctx context.Context, text, tone string, c domain.Candidate) string {
	if a.LLM != nil {
		if provider := a.LLM.GetProvider("editorial"); provider != nil {
			prompt := fmt.Sprintf(
				"Rewrite the following briefing line in a %s tone. One or two sentences, no preamble.\n\nContext: %s\n\nLine: %s",
				utils.SanitizePromptField(tone, 40),
				utils.SanitizePromptField(c.Title, 300),
				utils.SanitizePromptField(text, 600))
			response, err := provider.GenerateResponse(ctx, prompt,
				"You are an editor for a personal intelligence briefing. Respond only with the rewritten line.", nil)
			if err == nil {
				if out := strings.TrimSpace(response); out != "" {
					return out
				}
			} else {
				log.Debug().Err(err).Msg("style rewrite fell back to heuristic")
			}
		}
	}
	return heuristicRestyle(text, tone)
}

func heuristicRestyle(text, tone string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	prefix, ok := tonePrefixes[strings.ToLower(tone)]
	if !ok {
		return text // neutral and unknown tones keep the draft
	}
	if strings.HasPrefix(text, prefix) {
		return text
	}
	return prefix + text
}

// guardNarrative enforces the two hard rules on generated narrative: never
// equal to the raw summary, and empty falls back to the title.
func guardNarrative(text string, c domain.Candidate) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, strings.TrimSpace(c.Summary)) {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			return "No analysis available."
		}
		return title + "."
	}
	return text
}
