package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"intel_briefing/pkg/core/analytics"
	"intel_briefing/pkg/core/council"
	"intel_briefing/pkg/core/domain"
	"intel_briefing/pkg/core/editorial"
	"intel_briefing/pkg/core/intel"
	"intel_briefing/pkg/core/orchestrator"
	"intel_briefing/pkg/core/prefs"
	"intel_briefing/pkg/core/research"
)

// HandleRequestPayload runs one briefing request end to end. ErrBusy is
// returned when no pipeline slot frees up within the bounded wait; ErrTimeout
// when the pipeline deadline elapses, in which case no partial items are
// delivered.
func (e *Engine) HandleRequestPayload(ctx context.Context, userID, prompt string, weightedTopics map[string]float64, maxItems int) (domain.DeliveryPayload, error) {
	cfg := e.Pipelines.Current()

	if last, ok := e.lastRequest.get(userID); ok && e.now().Sub(last) < briefingCooldown {
		return e.errorPayload(userID, "", "rate_limited", "briefing requests are limited to one per 15s"), ErrBusy
	}

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, semaphoreWait)
	defer cancelAcquire()
	if err := e.sem.Acquire(acquireCtx, 1); err != nil {
		log.Warn().Str("user", userID).Msg("pipeline slots exhausted")
		return e.errorPayload(userID, "", "busy", "all pipeline slots in use"), ErrBusy
	}
	defer e.sem.Release(1)

	// The cooldown window starts only once a slot is held; a busy rejection
	// should not burn the user's next attempt.
	e.lastRequest.set(userID, e.now())

	deadline := time.Duration(cfg.Limits.PipelineTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	started := e.now()
	profile := e.Prefs.Get(userID)
	if maxItems <= 0 {
		maxItems = profile.MaxItems
	}
	if maxItems <= 0 {
		maxItems = cfg.Limits.MaxItems
	}

	task, lc := orchestrator.CompileBrief(userID, prompt, profile, maxItems)
	for topic, w := range weightedTopics {
		task.WeightedTopics[strings.ToLower(topic)] = domain.Clamp01(w)
	}
	requestID := task.RequestID

	e.Audit.Record("research", requestID, map[string]interface{}{
		"user_id": userID,
		"topics":  len(task.WeightedTopics),
	})

	lc.Advance(orchestrator.StageCompilingBrief)
	lc.Advance(orchestrator.StageResearching)

	agentTimeout := time.Duration(cfg.Limits.AgentTimeoutSeconds) * time.Second
	candidates, failedAgents := research.FanOut(ctx, e.Agents, task, e.Optimizer, agentTimeout)
	candidates = domain.SanitizeAll(candidates)

	health := domain.PipelineHealth{
		AgentsTotal:     len(e.Agents),
		TotalCandidates: len(candidates),
	}
	for id := range failedAgents {
		health.AgentsFailed = append(health.AgentsFailed, id)
	}
	sort.Strings(health.AgentsFailed)
	health.AgentsContributing = len(e.Agents) - len(failedAgents)
	for name, enabled := range cfg.Stages {
		if enabled {
			health.StagesEnabled = append(health.StagesEnabled, name)
		}
	}
	sort.Strings(health.StagesEnabled)

	if ctx.Err() != nil {
		lc.Fail("deadline exceeded during research")
		return e.errorPayload(userID, requestID, "timeout", "pipeline deadline exceeded"), ErrTimeout
	}
	if len(candidates) == 0 {
		lc.Fail("no candidates from any agent")
		payload := e.errorPayload(userID, requestID, "no_candidates", "every research agent returned empty")
		payload.Metadata.PipelineHealth = health
		return payload, nil
	}

	weights := cfg.Scoring
	var threads []domain.NarrativeThread
	var geoRisks []domain.GeoRisk
	var trendSignals []domain.TrendSignal

	stage := func(name string, fn func() error) {
		if enabled, ok := cfg.Stages[name]; ok && !enabled {
			return
		}
		e.runStage(ctx, name, requestID, &health, fn)
	}

	stage("credibility", func() error {
		for i := range candidates {
			e.Credibility.RecordItem(candidates[i])
		}
		return nil
	})
	stage("corroboration", func() error {
		candidates = e.Corroboration.Detect(candidates)
		return nil
	})
	stage("urgency", func() error {
		candidates = e.Urgency.Detect(candidates, e.now().UTC())
		return nil
	})

	candidates = applyUserBias(profile, candidates)

	stage("diversity", func() error {
		maxPerSource := profile.MaxPerSource
		if maxPerSource <= 0 {
			maxPerSource = cfg.Limits.MaxPerSource
		}
		candidates = intel.EnforceDiversity(candidates, maxPerSource, weights)
		return nil
	})

	lc.Advance(orchestrator.StageEnriching)
	stage("enrichment", func() error {
		candidates = e.Enricher.Enrich(ctx, candidates)
		return nil
	})

	stage("clustering", func() error {
		var scorer intel.CredibilityScorer
		if enabled, ok := cfg.Stages["credibility"]; !ok || enabled {
			scorer = e.Credibility.ScoreCandidate
		}
		threads = intel.Cluster(candidates, intel.DefaultClusterConfig(), weights, scorer)
		return nil
	})
	stage("georisk", func() error {
		geoRisks = e.GeoRisk.Assess(candidates)
		return nil
	})
	stage("trends", func() error {
		trendSignals = e.Trends.Observe(candidates)
		return nil
	})

	if ctx.Err() != nil {
		lc.Fail("deadline exceeded during intelligence stages")
		return e.errorPayload(userID, requestID, "timeout", "pipeline deadline exceeded"), ErrTimeout
	}

	lc.Advance(orchestrator.StageExpertReview)
	selected, reserve, debate := e.Council.Select(ctx, candidates, maxItems, 0, weights)
	e.recordDebate(requestID, debate)
	e.reserves.set(userID, reserve)
	for _, c := range selected {
		if c.DiscoveredBy != "" {
			e.Optimizer.RecordSelection(c.DiscoveredBy)
		}
	}

	lc.Advance(orchestrator.StageEditorialReview)
	items := make([]domain.ReportItem, 0, len(selected))
	for _, c := range selected {
		item := editorial.Compose(c)
		if enabled, ok := cfg.Stages["editorial"]; !ok || enabled {
			e.Style.Rewrite(ctx, requestID, &item, profile.Tone)
			e.Clarity.Polish(requestID, &item)
		}
		attachThread(&item, threads)
		items = append(items, item)
	}
	items = filterByProfile(items, profile)

	lc.Advance(orchestrator.StageFormatting)
	items = orderByThreadAffinity(items, weights)

	if ctx.Err() != nil {
		lc.Fail("deadline exceeded during assembly")
		return e.errorPayload(userID, requestID, "timeout", "pipeline deadline exceeded"), ErrTimeout
	}

	lc.Advance(orchestrator.StageDelivering)
	payload := domain.DeliveryPayload{
		UserID:       userID,
		RequestID:    requestID,
		GeneratedAt:  e.now().UTC(),
		Items:        items,
		BriefingType: domain.BriefingOnDemand,
		Threads:      threads,
		GeoRisks:     geoRisks,
		Trends:       trendSignals,
		Metadata: domain.PayloadMetadata{
			PipelineHealth: health,
			ElapsedSeconds: e.now().Sub(started).Seconds(),
		},
	}

	for _, alert := range e.evaluateAlerts(profile, payload) {
		if profile.WebhookURL != "" {
			e.webhooks.Deliver(ctx, userID, profile.WebhookURL, "Intel alert", alert.Message)
		}
	}

	e.Audit.Record("delivery", requestID, map[string]interface{}{
		"items":   len(items),
		"threads": len(threads),
	})

	e.Analytics.Enqueue(e.buildBatch(payload, debate, failedAgents))
	e.PersistState()

	lc.Advance(orchestrator.StageComplete)
	log.Info().
		Str("request", requestID).
		Str("user", userID).
		Int("items", len(items)).
		Float64("elapsed_s", payload.Metadata.ElapsedSeconds).
		Msg("briefing delivered")
	return payload, nil
}

// runStage executes one pipeline stage with panic isolation; failures are
// logged, audited, and appended to stages_failed, and the pipeline continues.
func (e *Engine) runStage(ctx context.Context, name, requestID string, health *domain.PipelineHealth, fn func() error) {
	start := e.now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("stage %s panicked: %v", name, r)
			}
		}()
		err = fn()
	}()
	seconds := e.now().Sub(start).Seconds()
	e.Optimizer.RecordStage(name, seconds, err != nil)

	if err != nil {
		health.StagesFailed = append(health.StagesFailed, name)
		log.Error().Err(err).Str("stage", name).Str("request", requestID).Msg("pipeline stage failed")
		e.Audit.Record("research", requestID, map[string]interface{}{
			"stage":  name,
			"failed": true,
			"error":  err.Error(),
		})
	}
}

// applyUserBias folds profile weights into preference fit and removes muted
// topics before scoring-sensitive stages run.
func applyUserBias(profile *prefs.UserProfile, candidates []domain.Candidate) []domain.Candidate {
	muted := make(map[string]bool, len(profile.MutedTopics))
	for _, topic := range profile.MutedTopics {
		muted[strings.ToLower(topic)] = true
	}
	regions := make(map[string]bool, len(profile.RegionsOfInterest))
	for _, r := range profile.RegionsOfInterest {
		regions[strings.ToLower(r)] = true
	}

	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if muted[strings.ToLower(c.Topic)] {
			continue
		}
		fit := 0.5
		fit += 0.3 * profile.TopicWeights[strings.ToLower(c.Topic)]
		fit += 0.1 * profile.SourceWeights[strings.ToLower(c.Source)] / 2.0
		for _, region := range c.Regions {
			if regions[strings.ToLower(region)] {
				fit += 0.1
				break
			}
		}
		c.PreferenceFit = domain.Clamp01(fit)
		out = append(out, c)
	}
	return out
}

// filterByProfile applies the user's confidence and urgency floors.
func filterByProfile(items []domain.ReportItem, profile *prefs.UserProfile) []domain.ReportItem {
	minUrgency := domain.ParseUrgency(profile.UrgencyMin)
	out := make([]domain.ReportItem, 0, len(items))
	for _, item := range items {
		if item.Candidate.Urgency.Rank() < minUrgency.Rank() {
			continue
		}
		if profile.ConfidenceMin > 0 && item.Confidence != nil && item.Confidence.Mid < profile.ConfidenceMin {
			continue
		}
		out = append(out, item)
	}
	return out
}

// attachThread links an item to its narrative thread and inherits the
// thread's confidence band.
func attachThread(item *domain.ReportItem, threads []domain.NarrativeThread) {
	for _, th := range threads {
		for _, member := range th.Candidates {
			if member.ID == item.Candidate.ID {
				item.ThreadID = th.ThreadID
				item.Confidence = th.Confidence
				return
			}
		}
	}
}

// orderByThreadAffinity keeps composite-descending order but pulls items of
// an already-placed thread up next to their sibling.
func orderByThreadAffinity(items []domain.ReportItem, weights domain.ScoringWeights) []domain.ReportItem {
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].Candidate.Composite(weights) > items[b].Candidate.Composite(weights)
	})

	out := make([]domain.ReportItem, 0, len(items))
	used := make([]bool, len(items))
	for i := range items {
		if used[i] {
			continue
		}
		out = append(out, items[i])
		used[i] = true
		if items[i].ThreadID == "" {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			if !used[j] && items[j].ThreadID == items[i].ThreadID {
				out = append(out, items[j])
				used[j] = true
			}
		}
	}
	return out
}

// recordDebate writes one audit event per expert vote plus a selection event.
func (e *Engine) recordDebate(requestID string, record *council.DebateRecord) {
	accepted := 0
	for _, debate := range record.Debates {
		if debate.Accepted {
			accepted++
		}
		for _, v := range debate.Votes {
			e.Audit.Record("vote", requestID, map[string]interface{}{
				"expert_id":    v.ExpertID,
				"candidate_id": v.CandidateID,
				"keep":         v.Keep,
				"confidence":   v.Confidence,
				"flipped":      v.Flipped,
			})
		}
	}
	e.Audit.Record("selection", requestID, map[string]interface{}{
		"debates":  len(record.Debates),
		"accepted": accepted,
	})
}

// buildBatch flattens the payload into analytics rows.
func (e *Engine) buildBatch(payload domain.DeliveryPayload, debate *council.DebateRecord, failedAgents map[string]bool) analytics.Batch {
	batch := analytics.Batch{
		RequestID:   payload.RequestID,
		UserID:      payload.UserID,
		GeneratedAt: payload.GeneratedAt,
		Items:       payload.Items,
		GeoRisks:    payload.GeoRisks,
		Trends:      payload.Trends,
	}

	for _, item := range payload.Items {
		batch.Candidates = append(batch.Candidates, item.Candidate)
	}
	for _, d := range debate.Debates {
		for _, v := range d.Votes {
			batch.Votes = append(batch.Votes, analytics.VoteRow{
				ExpertID:    v.ExpertID,
				CandidateID: v.CandidateID,
				Keep:        v.Keep,
				Confidence:  v.Confidence,
				Flipped:     v.Flipped,
			})
		}
	}
	for source, rel := range e.Credibility.Snapshot() {
		batch.Credibility = append(batch.Credibility, analytics.CredibilityRow{
			Source:      source,
			Reliability: rel.ReliabilityScore,
			Accuracy:    rel.HistoricalAccuracy,
			Corrobation: rel.CorroborationRate,
			ItemsSeen:   rel.TotalItemsSeen,
		})
	}
	for id, stats := range e.Council.Snapshot() {
		batch.ExpertStats = append(batch.ExpertStats, analytics.ExpertStatRow{
			ExpertID:   id,
			Influence:  stats.Influence,
			Accuracy:   stats.Accuracy,
			TotalVotes: stats.TotalVotes,
		})
	}
	for _, agent := range e.Agents {
		m := e.Optimizer.AgentSnapshot(agent.ID())
		batch.AgentRuns = append(batch.AgentRuns, analytics.AgentRun{
			AgentID:    agent.ID(),
			Candidates: m.TotalCandidates,
			LatencyMS:  m.AvgLatencyMS(),
			Failed:     failedAgents[agent.ID()],
		})
	}
	return batch
}

func (e *Engine) errorPayload(userID, requestID, errorType, detail string) domain.DeliveryPayload {
	return domain.DeliveryPayload{
		UserID:       userID,
		RequestID:    requestID,
		GeneratedAt:  e.now().UTC(),
		BriefingType: domain.BriefingOnDemand,
		Metadata: domain.PayloadMetadata{
			ErrorType:   errorType,
			ErrorDetail: detail,
		},
	}
}
