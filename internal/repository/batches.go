package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
)

// BatchRun is one row of batch_runs.
type BatchRun struct {
	BatchID        string              `json:"batch_id"`
	Status         constants.JobStatus `json:"status"`
	CandidateLimit int                 `json:"candidate_limit"`
	UploadEnabled  bool                `json:"upload_enabled"`
	ReportEnabled  bool                `json:"report_enabled"`
	Listed         int                 `json:"listed"`
	Succeeded      int                 `json:"succeeded"`
	Failed         int                 `json:"failed"`
	ReportLocation string              `json:"report_location,omitempty"`
	Error          string              `json:"error,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	FinishedAt     time.Time           `json:"finished_at,omitempty"`
}

// OutcomeRow is one row of candidate_outcomes.
type OutcomeRow struct {
	BatchID       string          `json:"batch_id"`
	Index         int             `json:"index"`
	CandidateID   string          `json:"candidate_id"`
	CandidateName string          `json:"candidate_name"`
	Stage         constants.Stage `json:"stage"`
	FailedStage   constants.Stage `json:"failed_stage,omitempty"`
	ErrorClass    string          `json:"error_class,omitempty"`
	Error         string          `json:"error,omitempty"`
	Attributes    json.RawMessage `json:"attributes,omitempty"`
	Tags          []string        `json:"tags,omitempty"`
	CVPath        string          `json:"cv_path,omitempty"`
	Elapsed       time.Duration   `json:"elapsed"`
}

// BatchRepository persists run history. It satisfies pipeline.RunRecorder.
type BatchRepository struct {
	store  *Store
	logger *slog.Logger
}

var _ pipeline.RunRecorder = (*BatchRepository)(nil)

func NewBatchRepository(s *Store, logger *slog.Logger) *BatchRepository {
	if logger == nil {
		logger = s.log
	}
	return &BatchRepository{store: s, logger: logger}
}

var batchColumns = []string{
	"batch_id", "status", "candidate_limit", "upload_enabled", "report_enabled",
	"listed", "succeeded", "failed", "report_location", "error", "started_at", "finished_at",
}

func (r *BatchRepository) StartBatch(ctx context.Context, job *pipeline.Job) error {
	q, args := r.store.builder().Insert("batch_runs").
		Columns(batchColumns...).
		Values(
			job.BatchID, string(job.Status()), job.Config.CandidateLimit,
			boolInt(job.Config.UploadEnabled), boolInt(job.Config.ReportEnabled),
			0, 0, 0, "", "", job.CreatedAt.UnixMilli(), int64(0),
		).
		OnConflict(entsql.ConflictColumns("batch_id"), entsql.ResolveWithNewValues()).
		Query()
	if err := r.store.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to insert batch run", "batch_id", job.BatchID, "error", err)
		return fmt.Errorf("start batch %s: %w", job.BatchID, err)
	}
	return nil
}

func (r *BatchRepository) RecordOutcome(ctx context.Context, batchID string, o pipeline.Outcome) error {
	var attrs string
	if o.Attributes != nil {
		b, err := json.Marshal(o.Attributes)
		if err != nil {
			return fmt.Errorf("record outcome %s/%d: %w", batchID, o.Index, err)
		}
		attrs = string(b)
	}
	q, args := r.store.builder().Insert("candidate_outcomes").
		Columns("batch_id", "idx", "candidate_id", "candidate_name", "stage", "failed_stage",
			"error_class", "error", "attributes", "tags", "cv_path", "elapsed_ms").
		Values(
			batchID, o.Index, o.Candidate.ID, o.Candidate.DisplayName(), string(o.Stage), string(o.FailedStage),
			o.ErrorClass, o.Error, attrs, strings.Join(o.Tags, "\n"), o.CVPath, o.Elapsed.Milliseconds(),
		).
		OnConflict(entsql.ConflictColumns("batch_id", "idx"), entsql.ResolveWithNewValues()).
		Query()
	if err := r.store.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to insert candidate outcome", "batch_id", batchID, "candidate_id", o.Candidate.ID, "error", err)
		return fmt.Errorf("record outcome %s/%d: %w", batchID, o.Index, err)
	}
	return nil
}

func (r *BatchRepository) FinishBatch(ctx context.Context, res *pipeline.BatchResult) error {
	q, args := r.store.builder().Update("batch_runs").
		Set("status", string(res.Status)).
		Set("listed", res.Listed).
		Set("succeeded", res.Succeeded()).
		Set("failed", res.Failed()).
		Set("report_location", res.ReportLocation).
		Set("error", res.Error).
		Set("finished_at", res.FinishedAt.UnixMilli()).
		Where(entsql.EQ("batch_id", res.BatchID)).
		Query()
	if err := r.store.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to finish batch run", "batch_id", res.BatchID, "error", err)
		return fmt.Errorf("finish batch %s: %w", res.BatchID, err)
	}
	return nil
}

// ListBatches returns the most recent runs first. limit <= 0 means 50.
func (r *BatchRepository) ListBatches(ctx context.Context, limit int) ([]BatchRun, error) {
	if limit <= 0 {
		limit = 50
	}
	q, args := r.store.builder().Select(batchColumns...).
		From(entsql.Table("batch_runs")).
		OrderBy(entsql.Desc("started_at")).
		Limit(limit).
		Query()
	var rows entsql.Rows
	if err := r.store.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("failed to list batch runs", "error", err)
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []BatchRun
	for rows.Next() {
		var (
			b                 BatchRun
			status            string
			upload, report    int
			started, finished int64
		)
		if err := rows.Scan(&b.BatchID, &status, &b.CandidateLimit, &upload, &report,
			&b.Listed, &b.Succeeded, &b.Failed, &b.ReportLocation, &b.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan batch run: %w", err)
		}
		b.Status = constants.JobStatus(status)
		b.UploadEnabled = upload != 0
		b.ReportEnabled = report != 0
		b.StartedAt = fromMillis(started)
		b.FinishedAt = fromMillis(finished)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListOutcomes returns the recorded outcomes of one batch in list order.
func (r *BatchRepository) ListOutcomes(ctx context.Context, batchID string) ([]OutcomeRow, error) {
	q, args := r.store.builder().Select("batch_id", "idx", "candidate_id", "candidate_name", "stage",
		"failed_stage", "error_class", "error", "attributes", "tags", "cv_path", "elapsed_ms").
		From(entsql.Table("candidate_outcomes")).
		Where(entsql.EQ("batch_id", batchID)).
		OrderBy("idx").
		Query()
	var rows entsql.Rows
	if err := r.store.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("failed to list candidate outcomes", "batch_id", batchID, "error", err)
		return nil, fmt.Errorf("list outcomes %s: %w", batchID, err)
	}
	defer rows.Close()

	var out []OutcomeRow
	for rows.Next() {
		var (
			o                         OutcomeRow
			stage, failed, attrs, tag string
			elapsed                   int64
		)
		if err := rows.Scan(&o.BatchID, &o.Index, &o.CandidateID, &o.CandidateName, &stage,
			&failed, &o.ErrorClass, &o.Error, &attrs, &tag, &o.CVPath, &elapsed); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Stage = constants.Stage(stage)
		o.FailedStage = constants.Stage(failed)
		if attrs != "" {
			o.Attributes = json.RawMessage(attrs)
		}
		if tag != "" {
			o.Tags = strings.Split(tag, "\n")
		}
		o.Elapsed = time.Duration(elapsed) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
