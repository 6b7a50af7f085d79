package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"intel_briefing/pkg/core/config"
	"intel_briefing/pkg/core/prefs"
	"intel_briefing/pkg/core/research"
)

const promptBoost = 0.3

// defaultTopics seed research when a profile has no topic weights yet.
var defaultTopics = map[string]float64{
	"geopolitics": 0.6,
	"economy":     0.6,
	"technology":  0.5,
	"markets":     0.4,
}

// CompileBrief turns a request into a research task with weighted topics and
// a fresh lifecycle in QUEUED.
func CompileBrief(userID, prompt string, profile *prefs.UserProfile, maxItems int) (research.Task, *Lifecycle) {
	requestID := fmt.Sprintf("req-%d-%s", time.Now().Unix(), userPrefix(userID))

	weighted := make(map[string]float64)
	if profile != nil && len(profile.TopicWeights) > 0 {
		for topic, w := range profile.TopicWeights {
			weighted[topic] = w
		}
	} else {
		for topic, w := range defaultTopics {
			weighted[topic] = w
		}
	}

	// Topics named in the prompt get a boost; unseen prompt words become new
	// low-weight topics only when they match a known topic keyword.
	lowerPrompt := strings.ToLower(prompt)
	for topic := range weighted {
		if topic != "" && strings.Contains(lowerPrompt, strings.ToLower(topic)) {
			weighted[topic] += promptBoost
			if weighted[topic] > 1.0 {
				weighted[topic] = 1.0
			}
		}
	}

	var regions []string
	if profile != nil {
		regions = append(regions, profile.RegionsOfInterest...)
		for _, region := range profile.RegionsOfInterest {
			key := strings.ToLower(region)
			if w, ok := weighted[key]; ok {
				weighted[key] = min1(w + promptBoost)
			}
		}
		// Muted topics never reach research.
		for _, muted := range profile.MutedTopics {
			delete(weighted, strings.ToLower(muted))
		}
	}

	task := research.Task{
		RequestID:      requestID,
		UserID:         userID,
		Prompt:         prompt,
		WeightedTopics: weighted,
		Regions:        regions,
		MaxItems:       maxItems,
	}
	return task, NewLifecycle(requestID)
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// userPrefix keeps request ids short and greppable.
func userPrefix(userID string) string {
	runes := []rune(userID)
	if len(runes) > 8 {
		runes = runes[:8]
	}
	if len(runes) == 0 {
		return "anon"
	}
	return string(runes)
}

// AgentScore ranks an agent's fit for a task:
// sum(topic_weight * capability) + 0.1 * source_priority.
func AgentScore(spec config.AgentSpec, task research.Task) float64 {
	score := 0.0
	for topic, weight := range task.WeightedTopics {
		score += weight * spec.Capabilities[topic]
	}
	return score + 0.1*spec.SourcePriority
}

// SelectAgents orders enabled agents by fit, best first. The ordering is
// advisory; callers may still fan out to every agent.
func SelectAgents(specs []config.AgentSpec, task research.Task) []config.AgentSpec {
	var enabled []config.AgentSpec
	for _, s := range specs {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	sort.SliceStable(enabled, func(a, b int) bool {
		sa, sb := AgentScore(enabled[a], task), AgentScore(enabled[b], task)
		if sa != sb {
			return sa > sb
		}
		return enabled[a].ID < enabled[b].ID
	})
	return enabled
}
