package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

const (
	maxTitleLen   = 500
	maxSummaryLen = 2000
)

// allowedSchemes for candidate URLs; anything else is cleared, not rejected.
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ftp":   true,
	"":      true,
}

// bidi override and directional formatting characters that must not survive
// into rendered briefings.
var bidiOverrides = map[rune]bool{
	'‪': true, '‫': true, '‬': true, '‭': true, '‮': true,
	'⁦': true, '⁧': true, '⁨': true, '⁩': true,
	'‎': true, '‏': true, '؜': true,
}

// CleanText NFC-normalizes s and strips control characters and bidi overrides.
func CleanText(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if bidiOverrides[r] {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Sanitize normalizes a candidate's text fields, clamps its scores, and clears
// URLs with disallowed schemes. It mutates the candidate in place.
func (c *Candidate) Sanitize() {
	c.Title = truncate(CleanText(strings.TrimSpace(c.Title)), maxTitleLen)
	c.Summary = truncate(CleanText(strings.TrimSpace(c.Summary)), maxSummaryLen)
	c.Source = CleanText(strings.TrimSpace(c.Source))
	c.Topic = CleanText(strings.TrimSpace(c.Topic))

	c.Evidence = Clamp01(c.Evidence)
	c.Novelty = Clamp01(c.Novelty)
	c.PreferenceFit = Clamp01(c.PreferenceFit)
	c.PredictionSignal = Clamp01(c.PredictionSignal)

	if c.URL != "" {
		parsed, err := url.Parse(c.URL)
		if err != nil || !allowedSchemes[strings.ToLower(parsed.Scheme)] {
			c.URL = ""
		}
	}

	if c.Urgency.Rank() == 0 && c.Urgency != UrgencyRoutine {
		c.Urgency = UrgencyRoutine
	}
	if _, ok := lifecycleRanks[c.Lifecycle]; !ok {
		c.Lifecycle = LifecycleDeveloping
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
}

// Validate reports whether the candidate satisfies the core invariants after
// sanitization: non-empty identity fields and all scores in range.
func (c *Candidate) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("candidate missing id")
	}
	if c.Title == "" {
		return fmt.Errorf("candidate %s missing title", c.ID)
	}
	if c.Source == "" {
		return fmt.Errorf("candidate %s missing source", c.ID)
	}
	if c.Topic == "" {
		return fmt.Errorf("candidate %s missing topic", c.ID)
	}
	return nil
}

// SanitizeAll sanitizes and validates a batch. Invalid candidates and duplicate
// ids are dropped with a warning; survivors are returned in input order.
func SanitizeAll(candidates []Candidate) []Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for i := range candidates {
		c := candidates[i]
		c.Sanitize()
		if err := c.Validate(); err != nil {
			log.Warn().Err(err).Str("agent", c.DiscoveredBy).Msg("Dropping invalid candidate")
			continue
		}
		if seen[c.ID] {
			log.Warn().Str("id", c.ID).Msg("Dropping duplicate candidate id")
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}
