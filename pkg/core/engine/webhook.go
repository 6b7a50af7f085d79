package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"intel_briefing/pkg/core/enrich"
)

// webhookDisableThreshold is how many consecutive delivery failures disable a
// user's webhook.
const webhookDisableThreshold = 5

// webhookDeliverer posts JSON payloads to user webhooks with per-user failure
// tracking. Validation runs on every attempt because DNS answers change.
type webhookDeliverer struct {
	client   *http.Client
	failures *boundedMap[int]
	disabled *boundedMap[bool]
	validate func(context.Context, string) error
}

func newWebhookDeliverer() *webhookDeliverer {
	d := &webhookDeliverer{
		failures: newBoundedMap[int]("webhook_failures", 500),
		disabled: newBoundedMap[bool]("webhook_disabled", 500),
		validate: enrich.ValidateFetchURL,
	}
	// Redirect hops are re-validated so a webhook cannot 302 the payload into
	// a private address.
	d.client = &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return d.validate(req.Context(), req.URL.String())
		},
	}
	return d
}

// shapeFor selects the provider payload shape by URL heuristics.
func shapeFor(url string, title, body string) interface{} {
	switch {
	case strings.Contains(url, "hooks.slack.com"):
		return map[string]interface{}{
			"text": fmt.Sprintf("*%s*\n%s", title, body),
		}
	case strings.Contains(url, "discord.com/api/webhooks"):
		return map[string]interface{}{
			"content": fmt.Sprintf("**%s**\n%s", title, body),
		}
	default:
		return map[string]interface{}{
			"title": title,
			"body":  body,
		}
	}
}

// Deliver posts one message to the user's webhook. Returns false when the
// webhook is disabled or the delivery failed.
func (d *webhookDeliverer) Deliver(ctx context.Context, userID, url, title, body string) bool {
	if url == "" {
		return false
	}
	if disabled, _ := d.disabled.get(userID); disabled {
		return false
	}

	if err := d.validate(ctx, url); err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("webhook failed validation")
		d.recordFailure(userID)
		return false
	}

	payload, err := json.Marshal(shapeFor(url, title, body))
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("webhook delivery failed")
		d.recordFailure(userID)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Str("user", userID).Msg("webhook delivery rejected")
		d.recordFailure(userID)
		return false
	}

	d.failures.set(userID, 0)
	return true
}

func (d *webhookDeliverer) recordFailure(userID string) {
	count, _ := d.failures.get(userID)
	count++
	d.failures.set(userID, count)
	if count >= webhookDisableThreshold {
		d.disabled.set(userID, true)
		log.Warn().Str("user", userID).Int("failures", count).Msg("webhook disabled after consecutive failures")
	}
}

// Reenable clears a user's webhook failure state, e.g. after they update the URL.
func (d *webhookDeliverer) Reenable(userID string) {
	d.failures.set(userID, 0)
	d.disabled.delete(userID)
}
