package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/prefs"
)

// alertCooldown suppresses repeats of the same alert key per user.
const alertCooldown = time.Hour

// Alert is one triggered notification.
type Alert struct {
	UserID  string `json:"user_id"`
	Type    string `json:"type"` // georisk | trend | keyword
	Key     string `json:"key"`
	Message string `json:"message"`
}

// alertDeduper remembers when each {user}:{type}:{key} alert last fired.
// First-send detection uses map presence, not a zero-value sentinel, so a
// fresh process never suppresses the first alert.
type alertDeduper struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

func newAlertDeduper() *alertDeduper {
	return &alertDeduper{
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// shouldSend reports whether the alert may fire, recording the send when it
// does. Expired entries across the whole map are evicted on every pass.
func (d *alertDeduper) shouldSend(userID, alertType, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, ts := range d.lastSent {
		if now.Sub(ts) > alertCooldown {
			delete(d.lastSent, k)
		}
	}

	mapKey := fmt.Sprintf("%s:%s:%s", userID, alertType, key)
	if ts, present := d.lastSent[mapKey]; present && now.Sub(ts) <= alertCooldown {
		return false
	}
	d.lastSent[mapKey] = now
	return true
}

// evaluateAlerts checks a finished payload against the user's alert settings.
func (e *Engine) evaluateAlerts(profile *prefs.UserProfile, payload domain.DeliveryPayload) []Alert {
	var out []Alert

	if profile.AlertGeoriskThreshold > 0 {
		for _, g := range payload.GeoRisks {
			if g.IsEscalating && g.RiskLevel >= profile.AlertGeoriskThreshold {
				if e.alerts.shouldSend(profile.UserID, "georisk", g.Region) {
					out = append(out, Alert{
						UserID: profile.UserID,
						Type:   "georisk",
						Key:    g.Region,
						Message: fmt.Sprintf("Geo-risk escalating in %s: level %.2f (delta +%.2f)",
							g.Region, g.RiskLevel, g.EscalationDelta),
					})
				}
			}
		}
	}

	if profile.AlertTrendThreshold > 0 {
		for _, tr := range payload.Trends {
			if tr.IsEmerging && tr.AnomalyScore >= profile.AlertTrendThreshold {
				if e.alerts.shouldSend(profile.UserID, "trend", tr.Topic) {
					out = append(out, Alert{
						UserID: profile.UserID,
						Type:   "trend",
						Key:    tr.Topic,
						Message: fmt.Sprintf("Emerging topic %q: %.1fx above baseline",
							tr.Topic, tr.AnomalyScore),
					})
				}
			}
		}
	}

	for _, keyword := range profile.AlertKeywords {
		lower := strings.ToLower(keyword)
		if lower == "" {
			continue
		}
		for _, item := range payload.Items {
			text := strings.ToLower(item.Candidate.Title + " " + item.Candidate.Summary)
			if !strings.Contains(text, lower) {
				continue
			}
			if e.alerts.shouldSend(profile.UserID, "keyword", lower) {
				out = append(out, Alert{
					UserID:  profile.UserID,
					Type:    "keyword",
					Key:     lower,
					Message: fmt.Sprintf("Watched keyword %q matched: %s", keyword, item.Candidate.Title),
				})
			}
			break
		}
	}

	if len(out) > 0 {
		log.Info().Str("user", profile.UserID).Int("alerts", len(out)).Msg("alerts triggered")
	}
	return out
}
