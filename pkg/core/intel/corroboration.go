package intel

import (
	"net/url"
	"strings"

	"intel_briefing/pkg/core/domain"
)

// placeholderHosts are synthetic URLs emitted by simulated agents; items
// pointing at them carry no independent sourcing and are skipped.
var placeholderHosts = map[string]bool{
	"example.com":     true,
	"www.example.com": true,
	"example.org":     true,
	"localhost":       true,
	"placeholder":     true,
}

// CorroborationDetector cross-references candidates from distinct sources
// within the same topic and records mutual corroboration.
type CorroborationDetector struct {
	Threshold float64 // similarity required to count as the same event
	// OnCorroborated, when set, is invoked once per corroborated source pair
	// so the credibility tracker can record it.
	OnCorroborated func(sourceA, sourceB string)
}

func NewCorroborationDetector() *CorroborationDetector {
	return &CorroborationDetector{Threshold: 0.45}
}

// skippable reports whether a candidate is excluded from corroboration:
// empty URL or a placeholder host. This gate is intentionally narrow.
func skippable(c *domain.Candidate) bool {
	if c.URL == "" {
		return true
	}
	parsed, err := url.Parse(c.URL)
	if err != nil {
		return true
	}
	return placeholderHosts[strings.ToLower(parsed.Hostname())]
}

// Detect mutates each candidate's CorroboratedBy with the sources of similar
// items reported by other sources on the same topic. Set semantics: a source
// appears at most once per candidate.
func (d *CorroborationDetector) Detect(candidates []domain.Candidate) []domain.Candidate {
	// Bucket by topic to avoid cross-topic comparisons.
	buckets := make(map[string][]int)
	for i := range candidates {
		if skippable(&candidates[i]) {
			continue
		}
		topic := strings.ToLower(candidates[i].Topic)
		buckets[topic] = append(buckets[topic], i)
	}

	for _, idxs := range buckets {
		for x := 0; x < len(idxs); x++ {
			for y := x + 1; y < len(idxs); y++ {
				a, b := &candidates[idxs[x]], &candidates[idxs[y]]
				if a.Source == b.Source {
					continue
				}
				sim := textSimilarity(a.Title, a.Summary, b.Title, b.Summary)
				if sim < d.Threshold {
					continue
				}
				addedA := addSource(&a.CorroboratedBy, b.Source)
				addedB := addSource(&b.CorroboratedBy, a.Source)
				if (addedA || addedB) && d.OnCorroborated != nil {
					d.OnCorroborated(a.Source, b.Source)
				}
			}
		}
	}
	return candidates
}

// addSource appends src if absent, returning whether it was added.
func addSource(list *[]string, src string) bool {
	for _, s := range *list {
		if s == src {
			return false
		}
	}
	*list = append(*list, src)
	return true
}
