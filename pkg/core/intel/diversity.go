package intel

import (
	"sort"

	"intel_briefing/pkg/core/domain"
)

// EnforceDiversity caps how many candidates any single source can contribute.
// Each source's group is sorted by composite score descending and trimmed to
// maxPerSource; relative input order of survivors is preserved.
func EnforceDiversity(candidates []domain.Candidate, maxPerSource int, weights domain.ScoringWeights) []domain.Candidate {
	if maxPerSource <= 0 {
		return candidates
	}

	bySource := make(map[string][]int)
	for i := range candidates {
		bySource[candidates[i].Source] = append(bySource[candidates[i].Source], i)
	}

	keep := make(map[int]bool, len(candidates))
	for _, idxs := range bySource {
		sort.SliceStable(idxs, func(a, b int) bool {
			return candidates[idxs[a]].Composite(weights) > candidates[idxs[b]].Composite(weights)
		})
		for rank, idx := range idxs {
			if rank < maxPerSource {
				keep[idx] = true
			}
		}
	}

	out := make([]domain.Candidate, 0, len(keep))
	for i := range candidates {
		if keep[i] {
			out = append(out, candidates[i])
		}
	}
	return out
}
