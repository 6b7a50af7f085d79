package intel

import (
	"fmt"
	"sort"

	"intel_briefing/pkg/core/domain"
)

// ClusterConfig tunes narrative-thread clustering.
type ClusterConfig struct {
	SimilarityThreshold float64 `json:"similarity_threshold"`
	CrossSourceFactor   float64 `json:"cross_source_factor"` // scales similarity for cross-source pairs
	SourceBonusCap      float64 `json:"source_bonus_cap"`
}

func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		SimilarityThreshold: 0.4,
		CrossSourceFactor:   1.15,
		SourceBonusCap:      0.2,
	}
}

// CredibilityScorer lets clustering derive confidence bands without a hard
// dependency on the tracker; nil means the credibility stage is disabled and
// bands fall back to zero.
type CredibilityScorer func(domain.Candidate) float64

// Cluster groups candidates into narrative threads by greedy pairwise merge.
// Clustering is deterministic for a given input set regardless of order:
// candidates are canonicalized by id before merging.
func Cluster(candidates []domain.Candidate, cfg ClusterConfig, weights domain.ScoringWeights, cred CredibilityScorer) []domain.NarrativeThread {
	if len(candidates) == 0 {
		return nil
	}

	sorted := append([]domain.Candidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	// Union-find over canonicalized candidates.
	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			sim := textSimilarity(sorted[i].Title, sorted[i].Summary, sorted[j].Title, sorted[j].Summary)
			if sorted[i].Source != sorted[j].Source {
				sim *= cfg.CrossSourceFactor
			}
			if sim >= cfg.SimilarityThreshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]domain.Candidate)
	var roots []int
	for i := range sorted {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], sorted[i])
	}
	sort.Ints(roots)

	threads := make([]domain.NarrativeThread, 0, len(roots))
	for n, root := range roots {
		members := groups[root]
		threads = append(threads, buildThread(fmt.Sprintf("thread-%d", n+1), members, cfg, weights, cred))
	}

	// Threads ordered by score descending for downstream assembly.
	sort.SliceStable(threads, func(a, b int) bool { return threads[a].Score > threads[b].Score })
	return threads
}

func buildThread(id string, members []domain.Candidate, cfg ClusterConfig, weights domain.ScoringWeights, cred CredibilityScorer) domain.NarrativeThread {
	thread := domain.NarrativeThread{
		ThreadID:   id,
		Candidates: members,
		Lifecycle:  domain.LifecycleResolved,
		Urgency:    domain.UrgencyRoutine,
	}

	sources := make(map[string]bool)
	best := -1.0
	sum := 0.0
	for _, c := range members {
		comp := c.Composite(weights)
		sum += comp
		if comp > best {
			best = comp
			thread.Headline = c.Title
		}
		thread.Lifecycle = domain.MaxLifecycle(thread.Lifecycle, c.Lifecycle)
		thread.Urgency = domain.MaxUrgency(thread.Urgency, c.Urgency)
		sources[c.Source] = true
	}
	thread.SourceCount = len(sources)

	// Guard: never divide by zero on an empty cluster.
	if len(members) == 0 {
		thread.Confidence = &domain.ConfidenceBand{}
		return thread
	}

	avg := sum / float64(len(members))
	sourceBonus := 0.05 * float64(thread.SourceCount-1)
	if sourceBonus > cfg.SourceBonusCap {
		sourceBonus = cfg.SourceBonusCap
	}
	urgencyBonus := 0.05 * float64(thread.Urgency.Rank())
	thread.Score = domain.Clamp01(avg + sourceBonus + urgencyBonus)

	if cred != nil {
		credSum := 0.0
		for _, c := range members {
			credSum += cred(c)
		}
		mid := domain.Clamp01(credSum / float64(len(members)))
		spread := 0.15
		band := domain.ClampBand(domain.ConfidenceBand{
			Low:  mid - spread,
			Mid:  mid,
			High: mid + spread,
			KeyAssumptions: []string{
				fmt.Sprintf("%d corroborating source(s)", thread.SourceCount),
			},
		})
		thread.Confidence = &band
	} else {
		thread.Confidence = &domain.ConfidenceBand{}
	}

	return thread
}
