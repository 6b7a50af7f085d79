// Package research fans a briefing task out to news-source agents and merges
// their candidates. Agents run concurrently behind per-agent timeouts and
// circuit breakers; one misbehaving agent never takes down the batch.
package research

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"intel_briefing/pkg/core/config"
	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/utils"
)

// Task is one research assignment compiled by the orchestrator.
type Task struct {
	RequestID      string             `json:"request_id"`
	UserID         string             `json:"user_id"`
	Prompt         string             `json:"prompt"`
	WeightedTopics map[string]float64 `json:"weighted_topics"`
	Regions        []string           `json:"regions,omitempty"`
	MaxItems       int                `json:"max_items"`
}

// TopTopics returns the task's topics ordered by weight descending, capped at n.
func (t Task) TopTopics(n int) []string {
	topics := make([]string, 0, len(t.WeightedTopics))
	for topic := range t.WeightedTopics {
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(a, b int) bool {
		wa, wb := t.WeightedTopics[topics[a]], t.WeightedTopics[topics[b]]
		if wa != wb {
			return wa > wb
		}
		return topics[a] < topics[b]
	})
	if n > 0 && len(topics) > n {
		topics = topics[:n]
	}
	return topics
}

// Agent is one news source.
type Agent interface {
	ID() string
	Search(ctx context.Context, task Task) ([]domain.Candidate, error)
}

// NewAgent builds an agent from its config entry.
func NewAgent(spec config.AgentSpec) (Agent, error) {
	switch spec.Kind {
	case "http":
		if spec.Endpoint == "" {
			return nil, fmt.Errorf("http agent %s has no endpoint", spec.ID)
		}
		return &HTTPAgent{
			spec:   spec,
			client: &http.Client{Timeout: time.Duration(spec.TimeoutSeconds) * time.Second},
		}, nil
	case "simulated", "":
		return &SimulatedAgent{spec: spec}, nil
	default:
		return nil, fmt.Errorf("unknown agent kind %q for %s", spec.Kind, spec.ID)
	}
}

// HTTPAgent queries a JSON news API. The endpoint is expected to return a
// candidate array; lenient parsing absorbs fenced or mildly broken output.
type HTTPAgent struct {
	spec   config.AgentSpec
	client *http.Client
}

func (a *HTTPAgent) ID() string { return a.spec.ID }

func (a *HTTPAgent) Search(ctx context.Context, task Task) ([]domain.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", a.spec.Endpoint, nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	for _, topic := range task.TopTopics(5) {
		q.Add("topic", topic)
	}
	if task.MaxItems > 0 {
		q.Set("limit", fmt.Sprintf("%d", task.MaxItems*2))
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/json")
	if a.spec.AuthEnv != "" {
		if key := os.Getenv(a.spec.AuthEnv); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent %s request failed: %w", a.spec.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent %s returned status %d", a.spec.ID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var wire struct {
		Candidates []domain.Candidate `json:"candidates"`
	}
	if err := utils.SmartParse(string(body), &wire); err != nil {
		return nil, fmt.Errorf("agent %s response unparseable: %w", a.spec.ID, err)
	}

	for i := range wire.Candidates {
		c := &wire.Candidates[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.Source == "" {
			c.Source = a.spec.ID
		}
		c.DiscoveredBy = a.spec.ID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now().UTC()
		}
	}
	return wire.Candidates, nil
}

// SimulatedAgent fabricates plausible candidates for development and tests.
// Its URLs point at a placeholder host so corroboration ignores them.
type SimulatedAgent struct {
	spec config.AgentSpec
}

func (a *SimulatedAgent) ID() string { return a.spec.ID }

var simulatedHeadlines = []string{
	"%s sector sees renewed activity after policy shift",
	"Analysts split on latest %s developments",
	"New report outlines risks in %s landscape",
	"%s update: officials signal change in approach",
}

func (a *SimulatedAgent) Search(ctx context.Context, task Task) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	topics := task.TopTopics(3)
	if len(topics) == 0 {
		topics = []string{"general"}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var out []domain.Candidate
	for _, topic := range topics {
		capability := a.spec.Capabilities[topic]
		n := 1 + rng.Intn(2)
		for i := 0; i < n; i++ {
			id := uuid.NewString()
			out = append(out, domain.Candidate{
				ID:           id,
				Title:        fmt.Sprintf(simulatedHeadlines[rng.Intn(len(simulatedHeadlines))], topic),
				Summary:      fmt.Sprintf("Simulated coverage of %s from %s.", topic, a.spec.ID),
				URL:          "https://example.com/" + id,
				Source:       a.spec.ID,
				Topic:        topic,
				DiscoveredBy: a.spec.ID,
				Evidence:     0.3 + 0.4*rng.Float64() + 0.2*capability,
				Novelty:      rng.Float64(),
				Urgency:      domain.UrgencyRoutine,
				Lifecycle:    domain.LifecycleDeveloping,
				CreatedAt:    time.Now().UTC(),
			})
		}
	}
	return out, nil
}
