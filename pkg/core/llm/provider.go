// Package llm abstracts the model providers used for summarization, expert
// voting, and editorial rewrites. Providers fail with errors; callers fall
// back to heuristics, never retry loops.
package llm

import (
	"context"
)

// Provider is the interface for all LLM providers.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt string, systemPrompt string, options map[string]interface{}) (string, error)
	// Keyed reports whether the provider has credentials configured. Unkeyed
	// providers are skipped so the pipeline can fall back to heuristics fast.
	Keyed() bool
}
