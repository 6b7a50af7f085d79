// Package engine wires every pipeline component together and exposes the two
// core entry points: HandleRequestPayload and ApplyUserFeedback. It owns
// backpressure, per-request deadlines, state persistence, and alerting.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"intel_briefing/pkg/core/analytics"
	"intel_briefing/pkg/core/audit"
	"intel_briefing/pkg/core/config"
	"intel_briefing/pkg/core/council"
	"intel_briefing/pkg/core/credibility"
	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/editorial"
	"intel_briefing/pkg/core/enrich"
	"intel_briefing/pkg/core/intel"
	"intel_briefing/pkg/core/llm"
	"intel_briefing/pkg/core/optimizer"
	"intel_briefing/pkg/core/persist"
	"intel_briefing/pkg/core/prefs"
	"intel_briefing/pkg/core/research"
)

var (
	// ErrBusy means the engine is at its concurrent-pipeline cap.
	ErrBusy = errors.New("engine at capacity")
	// ErrTimeout means the pipeline deadline elapsed before completion.
	ErrTimeout = errors.New("pipeline deadline exceeded")
)

// semaphoreWait bounds how long a request waits for a pipeline slot before
// giving up with ErrBusy.
const semaphoreWait = 2 * time.Second

// briefingCooldown is the minimum gap between briefing requests per user.
const briefingCooldown = 15 * time.Second

// Engine is the briefing pipeline. Construct with New.
type Engine struct {
	Prefs         *prefs.Store
	Credibility   *credibility.Tracker
	Corroboration *intel.CorroborationDetector
	Urgency       *intel.UrgencyDetector
	GeoRisk       *intel.GeoRiskIndex
	Trends        *intel.TrendDetector
	Enricher      *enrich.Enricher
	Council       *council.Council
	Style         *editorial.StyleAgent
	Clarity       *editorial.ClarityAgent
	Optimizer     *optimizer.Optimizer
	Audit         *audit.Trail
	Analytics     *analytics.Writer
	Snapshots     *persist.Store
	Pipelines     *config.PipelinesHolder
	Agents        []research.Agent

	sem         *semaphore.Weighted
	reserves    *boundedMap[[]domain.Candidate]
	lastRequest *boundedMap[time.Time]
	alerts      *alertDeduper
	webhooks    *webhookDeliverer
	now         func() time.Time
}

// New wires the engine from its configuration. Persisted state is restored
// best-effort; a missing or corrupt snapshot never blocks startup.
func New(pipelines *config.PipelinesHolder, personas *config.PersonasConfig, agents []research.Agent, manager *llm.Manager, analyticsWriter *analytics.Writer, snapshotDir string) *Engine {
	cfg := pipelines.Current()

	trail := audit.NewTrail(audit.DefaultMaxRequests)
	tracker := credibility.NewTracker(credibility.DefaultTierSeeds())

	corroboration := intel.NewCorroborationDetector()
	corroboration.OnCorroborated = tracker.RecordCorroboration

	e := &Engine{
		Prefs:         prefs.NewStore(),
		Credibility:   tracker,
		Corroboration: corroboration,
		Urgency:       intel.NewUrgencyDetector(intel.DefaultUrgencyConfig()),
		GeoRisk:       intel.NewGeoRiskIndex(intel.DefaultGeoRiskConfig()),
		Trends:        intel.NewTrendDetector(intel.DefaultTrendConfig()),
		Enricher:      enrich.NewEnricher(enrich.DefaultConfig(), manager),
		Council:       council.NewCouncil(personas, manager),
		Style:         &editorial.StyleAgent{LLM: manager, Rec: trail},
		Clarity:       &editorial.ClarityAgent{Rec: trail},
		Optimizer:     optimizer.New(optimizer.DefaultThresholds(), optimizer.DefaultBreakerConfig()),
		Audit:         trail,
		Analytics:     analyticsWriter,
		Snapshots:     persist.NewStore(snapshotDir),
		Pipelines:     pipelines,
		Agents:        agents,

		sem:         semaphore.NewWeighted(int64(cfg.Limits.MaxConcurrentRequests)),
		reserves:    newBoundedMap[[]domain.Candidate]("reserve_cache", 500),
		lastRequest: newBoundedMap[time.Time]("request_windows", 500),
		alerts:      newAlertDeduper(),
		webhooks:    newWebhookDeliverer(),
		now:         time.Now,
	}
	e.restoreState()
	return e
}

// restoreState loads every persisted collection, validating as it goes.
func (e *Engine) restoreState() {
	var profiles map[string]*prefs.UserProfile
	if e.Snapshots.LoadOrWarn("preferences", &profiles) {
		e.Prefs.Restore(profiles)
	}

	var sources map[string]credibility.SourceReliability
	if e.Snapshots.LoadOrWarn("credibility", &sources) {
		e.Credibility.Restore(sources)
	}

	var georisk map[string]float64
	if e.Snapshots.LoadOrWarn("georisk", &georisk) {
		e.GeoRisk.Restore(georisk)
	}

	var trends map[string]float64
	if e.Snapshots.LoadOrWarn("trends", &trends) {
		e.Trends.Restore(trends)
	}

	var opt optimizer.Snapshot
	if e.Snapshots.LoadOrWarn("optimizer", &opt) {
		e.Optimizer.Restore(opt)
	}

	var chair map[string]council.ExpertStats
	if e.Snapshots.LoadOrWarn("debate_chair", &chair) {
		e.Council.Restore(chair)
	}
}

// PersistState snapshots every collection. Failures are logged per collection.
func (e *Engine) PersistState() {
	save := func(name string, v interface{}) {
		if err := e.Snapshots.Save(name, v); err != nil {
			log.Warn().Err(err).Str("collection", name).Msg("state snapshot failed")
		}
	}
	save("preferences", e.Prefs.Snapshot())
	save("credibility", e.Credibility.Snapshot())
	save("georisk", e.GeoRisk.Snapshot())
	save("trends", e.Trends.Snapshot())
	save("optimizer", e.Optimizer.Persist())
	save("debate_chair", e.Council.Snapshot())
}

// ApplyUserFeedback parses natural-language feedback into preference changes
// and returns the applied deltas.
func (e *Engine) ApplyUserFeedback(userID, text string) map[string]float64 {
	changes := e.Prefs.ApplyFeedback(userID, text)
	if len(changes) > 0 {
		e.Audit.Record("preference", "feedback-"+userID, map[string]interface{}{
			"user_id": userID,
			"changes": len(changes),
		})
	}
	return changes
}

// ShowMore serves up to n items from the user's reserve cache, consuming them.
func (e *Engine) ShowMore(ctx context.Context, userID string, n int) []domain.ReportItem {
	reserve, ok := e.reserves.get(userID)
	if !ok || len(reserve) == 0 {
		return nil
	}
	if n <= 0 || n > len(reserve) {
		n = len(reserve)
	}
	take, rest := reserve[:n], reserve[n:]
	e.reserves.set(userID, rest)

	profile := e.Prefs.Get(userID)
	items := make([]domain.ReportItem, 0, len(take))
	for _, c := range take {
		item := editorial.Compose(c)
		e.Style.Rewrite(ctx, "showmore-"+userID, &item, profile.Tone)
		e.Clarity.Polish("showmore-"+userID, &item)
		items = append(items, item)
	}
	return items
}

// Shutdown persists state and closes the analytics writer.
func (e *Engine) Shutdown() {
	e.PersistState()
	e.Analytics.Close()
	log.Info().Msg("engine shut down")
}
