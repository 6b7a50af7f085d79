package domain

import (
	"fmt"
	"math"
)

// ScoringWeights combines the four candidate scores into a composite.
// The weights must sum to 1; LoadPipelines rejects configs that violate this.
type ScoringWeights struct {
	Evidence         float64 `json:"evidence"`
	Novelty          float64 `json:"novelty"`
	PreferenceFit    float64 `json:"preference_fit"`
	PredictionSignal float64 `json:"prediction_signal"`
}

// DefaultScoringWeights mirrors the shipped pipelines.json defaults.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Evidence:         0.35,
		Novelty:          0.25,
		PreferenceFit:    0.25,
		PredictionSignal: 0.15,
	}
}

// Validate checks that all weights are finite, non-negative, and sum to 1.
func (w ScoringWeights) Validate() error {
	for name, v := range map[string]float64{
		"evidence":          w.Evidence,
		"novelty":           w.Novelty,
		"preference_fit":    w.PreferenceFit,
		"prediction_signal": w.PredictionSignal,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("scoring weight %s is invalid: %v", name, v)
		}
	}
	sum := w.Evidence + w.Novelty + w.PreferenceFit + w.PredictionSignal
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("scoring weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// Composite computes the weighted combination of the candidate's four scores.
func (c *Candidate) Composite(w ScoringWeights) float64 {
	return w.Evidence*c.Evidence +
		w.Novelty*c.Novelty +
		w.PreferenceFit*c.PreferenceFit +
		w.PredictionSignal*c.PredictionSignal
}

// Clamp01 forces v into [0,1]; non-finite values collapse to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampBand orders and clamps a confidence band so low <= mid <= high, all in [0,1].
func ClampBand(b ConfidenceBand) ConfidenceBand {
	b.Low = Clamp01(b.Low)
	b.Mid = Clamp01(b.Mid)
	b.High = Clamp01(b.High)
	if b.Mid < b.Low {
		b.Mid = b.Low
	}
	if b.High < b.Mid {
		b.High = b.Mid
	}
	return b
}
