// Package analytics writes per-request snapshots to Postgres. Writers are
// fire-and-forget: a bounded queue feeds a background worker, batches are
// inserted transactionally, and no failure ever propagates to the pipeline.
package analytics

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"intel_briefing/pkg/core/domain"
)

// VoteRow is one expert vote flattened for storage.
type VoteRow struct {
	ExpertID    string
	CandidateID string
	Keep        bool
	Confidence  float64
	Flipped     bool
}

// AgentRun is one agent's contribution to a request.
type AgentRun struct {
	AgentID    string
	Candidates int
	LatencyMS  float64
	Failed     bool
}

// ExpertStatRow is one expert's long-run record.
type ExpertStatRow struct {
	ExpertID   string
	Influence  float64
	Accuracy   float64
	TotalVotes int
}

// CredibilityRow is one source's trust snapshot.
type CredibilityRow struct {
	Source      string
	Reliability float64
	Accuracy    float64
	Corrobation float64
	ItemsSeen   int
}

// Batch is everything recorded for one completed request.
type Batch struct {
	RequestID   string
	UserID      string
	GeneratedAt time.Time

	Candidates  []domain.Candidate
	Votes       []VoteRow
	Items       []domain.ReportItem
	GeoRisks    []domain.GeoRisk
	Trends      []domain.TrendSignal
	Credibility []CredibilityRow
	ExpertStats []ExpertStatRow
	AgentRuns   []AgentRun
}

// Writer drains a bounded queue of batches into Postgres.
type Writer struct {
	pool  *pgxpool.Pool
	queue chan Batch
	done  chan struct{}
}

// NewWriter connects using DATABASE_URL. A missing URL yields a nil writer,
// which is valid: every method on a nil Writer is a no-op.
func NewWriter(ctx context.Context, queueSize int) (*Writer, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, nil
	}

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if queueSize <= 0 {
		queueSize = 64
	}
	w := &Writer{
		pool:  pool,
		queue: make(chan Batch, queueSize),
		done:  make(chan struct{}),
	}
	go w.drain()
	return w, nil
}

// Enqueue hands a batch to the background worker. A full queue drops the
// batch with a log line rather than blocking the pipeline.
func (w *Writer) Enqueue(b Batch) {
	if w == nil {
		return
	}
	select {
	case w.queue <- b:
	default:
		log.Warn().Str("request", b.RequestID).Msg("analytics queue full, batch dropped")
	}
}

// Close stops accepting batches, drains the queue, and closes the pool.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	close(w.queue)
	<-w.done
	w.pool.Close()
}

func (w *Writer) drain() {
	defer close(w.done)
	for b := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := w.writeBatch(ctx, b); err != nil {
			log.Warn().Err(err).Str("request", b.RequestID).Msg("analytics batch failed")
		}
		cancel()
	}
}

// healthProbe verifies a pooled connection is alive; pgxpool replaces
// connections that fail the probe.
func (w *Writer) healthProbe(ctx context.Context) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	var one int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		// Destroy rather than return the broken connection.
		conn.Conn().Close(ctx)
		return err
	}
	return nil
}

// writeBatch inserts the whole batch in one transaction; any error rolls the
// batch back.
func (w *Writer) writeBatch(ctx context.Context, b Batch) error {
	if err := w.healthProbe(ctx); err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}

	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin analytics tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range b.Candidates {
		if _, err := tx.Exec(ctx,
			`INSERT INTO analytics_candidates
			 (request_id, candidate_id, title, source, topic, evidence, novelty, urgency, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			b.RequestID, c.ID, c.Title, c.Source, c.Topic, c.Evidence, c.Novelty, string(c.Urgency), b.GeneratedAt); err != nil {
			return fmt.Errorf("candidate insert failed: %w", err)
		}
	}

	for _, v := range b.Votes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO analytics_expert_votes
			 (request_id, expert_id, candidate_id, keep, confidence, flipped, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			b.RequestID, v.ExpertID, v.CandidateID, v.Keep, v.Confidence, v.Flipped, b.GeneratedAt); err != nil {
			return fmt.Errorf("vote insert failed: %w", err)
		}
	}

	for _, item := range b.Items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO analytics_briefing_items
			 (request_id, user_id, candidate_id, thread_id, why_it_matters, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			b.RequestID, b.UserID, item.Candidate.ID, item.ThreadID, item.WhyItMatters, b.GeneratedAt); err != nil {
			return fmt.Errorf("briefing item insert failed: %w", err)
		}
	}

	for _, g := range b.GeoRisks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO analytics_georisk
			 (request_id, region, risk_level, escalation_delta, is_escalating, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			b.RequestID, g.Region, g.RiskLevel, g.EscalationDelta, g.IsEscalating, b.GeneratedAt); err != nil {
			return fmt.Errorf("georisk insert failed: %w", err)
		}
	}

	for _, tr := range b.Trends {
		if _, err := tx.Exec(ctx,
			`INSERT INTO analytics_trends
			 (request_id, topic, velocity, baseline, anomaly_score, is_emerging, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			b.RequestID, tr.Topic, tr.Velocity, tr.Baseline, tr.AnomalyScore, tr.IsEmerging, b.GeneratedAt); err != nil {
			return fmt.Errorf("trend insert failed: %w", err)
		}
	}

	for _, cr := range b.Credibility {
		if _, err := tx.Exec(ctx,
			`INSERT INTO analytics_credibility
			 (request_id, source, reliability, accuracy, corroboration, items_seen, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			b.RequestID, cr.Source, cr.Reliability, cr.Accuracy, cr.Corrobation, cr.ItemsSeen, b.GeneratedAt); err != nil {
			return fmt.Errorf("credibility insert failed: %w", err)
		}
	}

	for _, es := range b.ExpertStats {
		if _, err := tx.Exec(ctx,
			`INSERT INTO analytics_expert_stats
			 (request_id, expert_id, influence, accuracy, total_votes, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			b.RequestID, es.ExpertID, es.Influence, es.Accuracy, es.TotalVotes, b.GeneratedAt); err != nil {
			return fmt.Errorf("expert stat insert failed: %w", err)
		}
	}

	for _, run := range b.AgentRuns {
		if _, err := tx.Exec(ctx,
			`INSERT INTO analytics_agent_performance
			 (request_id, agent_id, candidates, latency_ms, failed, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			b.RequestID, run.AgentID, run.Candidates, run.LatencyMS, run.Failed, b.GeneratedAt); err != nil {
			return fmt.Errorf("agent performance insert failed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit analytics batch: %w", err)
	}
	return nil
}

// timeSeriesTables lists every table CleanupOldRecords prunes.
var timeSeriesTables = []string{
	"analytics_candidates",
	"analytics_expert_votes",
	"analytics_briefing_items",
	"analytics_georisk",
	"analytics_trends",
	"analytics_credibility",
	"analytics_expert_stats",
	"analytics_agent_performance",
}

// CleanupOldRecords deletes rows older than the retention window across all
// time-series tables. Errors are logged per table; cleanup continues.
func (w *Writer) CleanupOldRecords(ctx context.Context, retentionDays int) {
	if w == nil || retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, table := range timeSeriesTables {
		tag, err := w.pool.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE created_at < $1", table), cutoff)
		if err != nil {
			log.Warn().Err(err).Str("table", table).Msg("analytics cleanup failed")
			continue
		}
		if rows := tag.RowsAffected(); rows > 0 {
			log.Info().Str("table", table).Int64("rows", rows).Msg("analytics rows pruned")
		}
	}
}
