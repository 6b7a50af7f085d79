// Package audit keeps an in-memory trail of pipeline events indexed by
// request, with amortized trimming so long-running processes stay bounded.
package audit

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxRequests is how many requests the trail retains before the
	// amortized trim kicks in.
	DefaultMaxRequests = 200
	// hardEventCap bounds total events regardless of request count.
	hardEventCap = 50000
)

// Event is one recorded pipeline occurrence.
type Event struct {
	Type      string                 `json:"type"`
	RequestID string                 `json:"request_id"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Trail records events and serves per-request traces. All operations,
// trimming included, run under one lock.
type Trail struct {
	maxRequests int

	mu      sync.Mutex
	events  []Event
	index   map[string][]int // request id -> positions in events
	arrival []string         // request ids in first-seen order
	now     func() time.Time
}

func NewTrail(maxRequests int) *Trail {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	return &Trail{
		maxRequests: maxRequests,
		index:       make(map[string][]int),
		now:         time.Now,
	}
}

// Record appends an event and indexes it under its request id.
func (t *Trail) Record(eventType, requestID string, details map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, seen := t.index[requestID]; !seen {
		t.arrival = append(t.arrival, requestID)
	}
	t.events = append(t.events, Event{
		Type:      eventType,
		RequestID: requestID,
		Timestamp: t.now(),
		Details:   details,
	})
	t.index[requestID] = append(t.index[requestID], len(t.events)-1)

	t.maybeTrimLocked()
}

// maybeTrimLocked drops the oldest whole requests once the index exceeds the
// cap by 20%, evicting in batches so the rebuild cost stays amortized. The
// hard event cap triggers the same batch eviction as defense in depth.
func (t *Trail) maybeTrimLocked() {
	overRequests := len(t.index) > t.maxRequests+t.maxRequests/5
	overEvents := len(t.events) > hardEventCap
	if !overRequests && !overEvents {
		return
	}

	evict := t.maxRequests / 5
	if evict < 1 {
		evict = 1
	}
	if evict > len(t.arrival) {
		evict = len(t.arrival)
	}
	drop := make(map[string]bool, evict)
	for _, id := range t.arrival[:evict] {
		drop[id] = true
	}
	t.arrival = t.arrival[evict:]

	kept := make([]Event, 0, len(t.events))
	for _, e := range t.events {
		if !drop[e.RequestID] {
			kept = append(kept, e)
		}
	}
	t.events = kept

	t.index = make(map[string][]int, len(t.arrival))
	for i, e := range t.events {
		t.index[e.RequestID] = append(t.index[e.RequestID], i)
	}
}

// GetRequestTrace returns a request's events in recording order.
func (t *Trail) GetRequestTrace(requestID string) []Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	positions := t.index[requestID]
	out := make([]Event, 0, len(positions))
	for _, pos := range positions {
		out = append(out, t.events[pos])
	}
	return out
}

// GetExpertVotes groups a request's vote events by expert id.
func (t *Trail) GetExpertVotes(requestID string) map[string][]Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string][]Event)
	for _, pos := range t.index[requestID] {
		e := t.events[pos]
		if e.Type != "vote" {
			continue
		}
		expert, _ := e.Details["expert_id"].(string)
		if expert == "" {
			expert = "unknown"
		}
		out[expert] = append(out[expert], e)
	}
	return out
}

// FormatRequestReport renders a human-readable trace for one request.
func (t *Trail) FormatRequestReport(requestID string) string {
	trace := t.GetRequestTrace(requestID)
	if len(trace) == 0 {
		return fmt.Sprintf("no audit events recorded for request %s", requestID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Request %s (%d events) ===\n", requestID, len(trace))
	for _, e := range trace {
		fmt.Fprintf(&b, "[%s] %s", e.Timestamp.Format(time.RFC3339), e.Type)
		if len(e.Details) > 0 {
			keys := make([]string, 0, len(e.Details))
			for k := range e.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
			}
			fmt.Fprintf(&b, " (%s)", strings.Join(parts, " "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RequestCount reports how many requests are currently indexed.
func (t *Trail) RequestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}
