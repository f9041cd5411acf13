package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/clock"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
	"github.com/joseph-ayodele/cv-pipeline/internal/ratelimit"
	"github.com/joseph-ayodele/cv-pipeline/internal/retry"
)

type CandidateSource interface {
	ListUntagged(ctx context.Context, limit int) ([]entity.Candidate, error)
}

type CVDownloader interface {
	DownloadCV(ctx context.Context, c entity.Candidate) (entity.Document, error)
}

type TagUploader interface {
	UploadTags(ctx context.Context, candidateID string, attrs entity.Attributes) error
}

type TextExtractor interface {
	ExtractText(ctx context.Context, doc entity.Document) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, text string) (entity.Attributes, []byte, error)
}

// ReportWriter persists the batch artifact and returns where it went.
type ReportWriter interface {
	Write(ctx context.Context, res *BatchResult) (string, error)
}

// RunRecorder keeps run history. Its failures are logged, never fatal.
type RunRecorder interface {
	StartBatch(ctx context.Context, job *Job) error
	RecordOutcome(ctx context.Context, batchID string, o Outcome) error
	FinishBatch(ctx context.Context, res *BatchResult) error
}

// Archiver keeps a copy of each downloaded CV and returns its location.
type Archiver interface {
	Save(ctx context.Context, c entity.Candidate, doc entity.Document) (string, error)
}

// Deps are the collaborators of an Orchestrator. Uploader is only needed
// for jobs with uploads enabled, Report only for jobs that write a report.
type Deps struct {
	Source     CandidateSource
	Downloader CVDownloader
	Uploader   TagUploader
	Extractor  TextExtractor
	Analyzer   Analyzer
	Report     ReportWriter
	// Limiter is shared by every run when set; otherwise each run gets its
	// own, configured from the job.
	Limiter *ratelimit.Limiter
	Retry   retry.Policy
	Logger  *slog.Logger
}

type Option func(*Orchestrator)

func WithSink(s Sink) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sink = s
		}
	}
}

func WithRecorder(r RunRecorder) Option { return func(o *Orchestrator) { o.recorder = r } }

func WithArchiver(a Archiver) Option { return func(o *Orchestrator) { o.archiver = a } }

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithEmptyDocumentRetries sets how many extra extraction attempts an empty
// or unreadable document gets. Default 1.
func WithEmptyDocumentRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.emptyDocRetries = n
		}
	}
}

// Orchestrator drives candidates through the fixed stage order, one at a time.
type Orchestrator struct {
	deps            Deps
	sink            Sink
	recorder        RunRecorder
	archiver        Archiver
	clock           clock.Clock
	emptyDocRetries int
	log             *slog.Logger

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	job *Job
	agg *aggregator
}

func NewOrchestrator(d Deps, opts ...Option) *Orchestrator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	o := &Orchestrator{
		deps:            d,
		sink:            nopSink{},
		clock:           clock.Real{},
		emptyDocRetries: 1,
		log:             d.Logger,
		active:          make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.deps.Retry.MaxAttempts == 0 {
		o.deps.Retry = retry.New(3, time.Second)
	}
	if o.deps.Retry.Clock == nil {
		o.deps.Retry.Clock = o.clock
	}
	if o.deps.Retry.Logger == nil {
		o.deps.Retry.Logger = o.log
	}
	return o
}

// Cancel asks a running batch to stop at the next candidate boundary.
// It returns false when no run with that id is in progress.
func (o *Orchestrator) Cancel(batchID string) bool {
	o.mu.Lock()
	r, ok := o.active[batchID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	r.job.RequestCancel()
	o.log.Info("pipeline.batch.cancel_requested", "batch_id", batchID)
	return true
}

// Progress returns a snapshot of a running batch.
func (o *Orchestrator) Progress(batchID string) (*BatchResult, bool) {
	o.mu.Lock()
	r, ok := o.active[batchID]
	o.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.agg.snapshot(), true
}

func (o *Orchestrator) checkDeps(job *Job) error {
	v := common.NewValidator().
		Field("source", o.deps.Source != nil, nonZero).
		Field("downloader", o.deps.Downloader != nil, nonZero).
		Field("extractor", o.deps.Extractor != nil, nonZero).
		Field("analyzer", o.deps.Analyzer != nil, nonZero)
	if job.Config.UploadEnabled {
		v.Field("uploader", o.deps.Uploader != nil, nonZero)
	}
	if job.Config.ReportEnabled {
		v.Field("report_writer", o.deps.Report != nil, nonZero)
	}
	if v.HasErrors() {
		return common.NewAppError("INVALID_JOB", v.ErrorMessage(), common.ErrInvalidInput)
	}
	return nil
}

func nonZero(field string, value interface{}) *common.ValidationError {
	if ok, _ := value.(bool); !ok {
		return &common.ValidationError{Field: field, Value: value, Message: "is required"}
	}
	return nil
}

// Run executes the whole batch and blocks until it ends. Per-candidate
// failures are folded into the result; only batch-fatal conditions come back
// as a *common.FatalBatchError, together with the partial result.
func (o *Orchestrator) Run(ctx context.Context, job *Job) (*BatchResult, error) {
	if job == nil {
		return nil, fmt.Errorf("nil job: %w", common.ErrInvalidInput)
	}
	if err := job.Config.Validate(); err != nil {
		return nil, err
	}
	if err := o.checkDeps(job); err != nil {
		return nil, err
	}
	if !job.start() {
		return nil, fmt.Errorf("batch %s already %s: %w", job.BatchID, job.Status(), common.ErrInvalidInput)
	}

	start := o.clock.Now()
	agg := &aggregator{res: newBatchResult(job, start)}

	o.mu.Lock()
	o.active[job.BatchID] = &activeRun{job: job, agg: agg}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, job.BatchID)
		o.mu.Unlock()
	}()

	ctx = common.WithBatchID(ctx, job.BatchID)
	log := o.log.With("batch_id", job.BatchID)
	limiter := o.limiterFor(job)

	log.Info("pipeline.batch.start",
		"candidate_limit", job.Config.CandidateLimit,
		"inter_call_delay_ms", job.Config.InterCallDelay.Milliseconds(),
		"upload_enabled", job.Config.UploadEnabled,
		"report_enabled", job.Config.ReportEnabled,
	)
	o.recordErr(log, "start", o.recorder != nil, func() error {
		return o.recorder.StartBatch(context.WithoutCancel(ctx), job)
	})

	var candidates []entity.Candidate
	_, err := o.call(ctx, limiter, o.deps.Retry, constants.ServiceRecruitee, "list_candidates", func(ctx context.Context) error {
		c, err := o.deps.Source.ListUntagged(ctx, job.Config.CandidateLimit)
		candidates = c
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return o.finish(ctx, job, agg, log, nil, true)
		}
		log.Error("pipeline.list.failed", "error", err)
		return o.finish(ctx, job, agg, log, &common.FatalBatchError{Op: "list candidates", Cause: err}, false)
	}
	if len(candidates) > job.Config.CandidateLimit {
		candidates = candidates[:job.Config.CandidateLimit]
	}
	job.setCandidates(candidates)
	total := len(candidates)
	agg.update(func(r *BatchResult) { r.Listed = total })
	log.Info("pipeline.list.ok", "candidates", total)
	o.emit(ProgressEvent{BatchID: job.BatchID, Outcome: OutcomeBatchStarted, Total: total, Status: constants.JobStatusRunning})

	cancelled := false
	for i, c := range candidates {
		if job.CancelRequested() || ctx.Err() != nil {
			cancelled = true
			log.Info("pipeline.batch.cancelled", "processed", i, "remaining", total-i)
			break
		}
		rec, err := o.processCandidate(ctx, job, limiter, c, i+1, total)
		var fatal *common.FatalBatchError
		if errors.As(err, &fatal) {
			return o.finish(ctx, job, agg, log, err, false)
		}
		o.settle(ctx, job, log, agg, rec, i+1, total)
		if err != nil {
			cancelled = true
			log.Info("pipeline.batch.interrupted", "candidate_id", c.ID, "processed", i+1, "error", err)
			break
		}
	}
	return o.finish(ctx, job, agg, log, nil, cancelled)
}

// settle folds a finished record into the result and emits its terminal event.
func (o *Orchestrator) settle(ctx context.Context, job *Job, log *slog.Logger, agg *aggregator, rec *CandidateRecord, index, total int) {
	out := rec.outcome(index, o.clock.Now())
	agg.add(out)
	ev := ProgressEvent{
		BatchID:       job.BatchID,
		CandidateID:   rec.Candidate.ID,
		CandidateName: rec.Candidate.DisplayName(),
		Stage:         out.Stage,
		Outcome:       OutcomeSucceeded,
		Index:         index,
		Total:         total,
	}
	if out.Failed() {
		ev.Stage = out.FailedStage
		ev.Outcome = OutcomeFailed
		ev.Error = out.Error
	}
	o.emit(ev)
	o.recordErr(log, "outcome", o.recorder != nil, func() error {
		return o.recorder.RecordOutcome(context.WithoutCancel(ctx), job.BatchID, out)
	})
}

// finish writes the report when one is due, settles the job status and
// hands back the final snapshot.
func (o *Orchestrator) finish(ctx context.Context, job *Job, agg *aggregator, log *slog.Logger, fatal error, cancelled bool) (*BatchResult, error) {
	wctx := context.WithoutCancel(ctx)
	status := constants.JobStatusCompleted
	if fatal != nil || cancelled {
		status = constants.JobStatusAborted
	}
	retErr := fatal
	if retErr == nil && ctx.Err() != nil {
		retErr = ctx.Err()
	}

	if fatal == nil && job.Config.ReportEnabled {
		snap := agg.snapshot()
		snap.Status = status
		loc, err := o.deps.Report.Write(wctx, snap)
		if err != nil {
			log.Error("pipeline.report.failed", "error", err)
			status = constants.JobStatusAborted
			retErr = &common.FatalBatchError{Op: "write report", Cause: err}
		} else {
			agg.update(func(r *BatchResult) { r.ReportLocation = loc })
			log.Info("pipeline.report.ok", "location", loc)
		}
	}

	now := o.clock.Now()
	agg.update(func(r *BatchResult) {
		r.Status = status
		r.FinishedAt = now
		r.Elapsed = now.Sub(r.StartedAt)
		if retErr != nil {
			r.Error = retErr.Error()
		}
	})
	job.setStatus(status)
	res := agg.snapshot()

	o.recordErr(log, "finish", o.recorder != nil, func() error { return o.recorder.FinishBatch(wctx, res) })
	o.emit(ProgressEvent{
		BatchID: job.BatchID,
		Outcome: OutcomeBatchFinished,
		Index:   res.Processed(),
		Total:   res.Listed,
		Status:  status,
		Error:   res.Error,
	})
	log.Info("pipeline.batch.done",
		"status", status,
		"listed", res.Listed,
		"processed", res.Processed(),
		"succeeded", res.Succeeded(),
		"failed", res.Failed(),
		"report", res.ReportLocation,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, retErr
}

// processCandidate runs one candidate to a terminal stage. The returned
// error is either a *common.FatalBatchError (nil record) or the context error
// when the run was interrupted mid-candidate; the record is then Failed at the
// interrupted stage and still has to be settled.
func (o *Orchestrator) processCandidate(ctx context.Context, job *Job, limiter *ratelimit.Limiter, c entity.Candidate, index, total int) (*CandidateRecord, error) {
	ctx = common.WithCandidateID(ctx, c.ID)
	log := o.log.With("batch_id", job.BatchID, "candidate_id", c.ID, "index", index, "total", total)
	rec := newRecord(c, o.clock.Now())
	o.emitStage(job, rec, index, total)

	// Downloaded
	var doc entity.Document
	n, err := o.call(ctx, limiter, o.deps.Retry, constants.ServiceRecruitee, "download_cv", func(ctx context.Context) error {
		d, err := o.deps.Downloader.DownloadCV(ctx, c)
		doc = d
		return err
	})
	rec.Attempts[constants.StageDownloaded] = n
	if err != nil {
		return o.failed(ctx, log, rec, constants.StageDownloaded, err)
	}
	if o.archiver != nil {
		if path, err := o.archiver.Save(ctx, c, doc); err != nil {
			log.Warn("pipeline.archive.failed", "error", err)
		} else {
			rec.CVPath = path
		}
	}
	if err := o.step(job, rec, constants.StageDownloaded, index, total); err != nil {
		return o.failed(ctx, log, rec, constants.StageDownloaded, err)
	}

	// Extracted
	text, n, err := o.extract(ctx, limiter, log, doc)
	rec.Attempts[constants.StageExtracted] = n
	if err != nil {
		return o.failed(ctx, log, rec, constants.StageExtracted, err)
	}
	rec.TextChars = len(text)
	if err := o.step(job, rec, constants.StageExtracted, index, total); err != nil {
		return o.failed(ctx, log, rec, constants.StageExtracted, err)
	}

	// Analyzed
	var attrs entity.Attributes
	var raw []byte
	n, err = o.call(ctx, limiter, o.deps.Retry, constants.ServiceAI, "analyze", func(ctx context.Context) error {
		a, r, err := o.deps.Analyzer.Analyze(ctx, text)
		attrs, raw = a, r
		return err
	})
	rec.Attempts[constants.StageAnalyzed] = n
	if err != nil {
		return o.failed(ctx, log, rec, constants.StageAnalyzed, err)
	}
	rec.Attributes = &attrs
	rec.RawAnalysis = raw
	if err := o.step(job, rec, constants.StageAnalyzed, index, total); err != nil {
		return o.failed(ctx, log, rec, constants.StageAnalyzed, err)
	}

	// Reported: local only. The report is one shared artifact, so an
	// attribute set we cannot serialize poisons the whole batch.
	if _, err := json.Marshal(rec.Attributes); err != nil {
		return nil, &common.FatalBatchError{Op: "serialize attributes", Cause: fmt.Errorf("candidate %s: %w: %v", c.ID, common.ErrIO, err)}
	}
	if err := o.step(job, rec, constants.StageReported, index, total); err != nil {
		return o.failed(ctx, log, rec, constants.StageReported, err)
	}
	if !job.Config.UploadEnabled {
		log.Info("pipeline.candidate.done", "stage", rec.Stage)
		return rec, nil
	}

	// Uploaded
	if tags := attrs.Tags(); len(tags) == 0 {
		log.Info("pipeline.upload.skipped", "reason", "no tags")
	} else {
		n, err = o.call(ctx, limiter, o.deps.Retry, constants.ServiceRecruitee, "upload_tags", func(ctx context.Context) error {
			return o.deps.Uploader.UploadTags(ctx, c.ID, attrs)
		})
		rec.Attempts[constants.StageUploaded] = n
		if err != nil {
			return o.failed(ctx, log, rec, constants.StageUploaded, err)
		}
	}
	if err := o.step(job, rec, constants.StageUploaded, index, total); err != nil {
		return o.failed(ctx, log, rec, constants.StageUploaded, err)
	}
	log.Info("pipeline.candidate.done", "stage", rec.Stage)
	return rec, nil
}

// failed folds err into the record. When the run itself was interrupted the
// context error is recorded instead and also returned, so the loop stops.
func (o *Orchestrator) failed(ctx context.Context, log *slog.Logger, rec *CandidateRecord, stage constants.Stage, err error) (*CandidateRecord, error) {
	if cerr := ctx.Err(); cerr != nil {
		rec.fail(stage, cerr)
		log.Info("pipeline.candidate.interrupted", "stage", stage, "error", cerr)
		return rec, cerr
	}
	rec.fail(stage, err)
	log.Warn("pipeline.candidate.failed",
		"stage", stage,
		"attempts", rec.Attempts[stage],
		"class", common.Classify(err).String(),
		"error", err,
	)
	return rec, nil
}

func (o *Orchestrator) step(job *Job, rec *CandidateRecord, to constants.Stage, index, total int) error {
	if err := rec.advance(to); err != nil {
		return err
	}
	o.emitStage(job, rec, index, total)
	return nil
}

func (o *Orchestrator) emitStage(job *Job, rec *CandidateRecord, index, total int) {
	o.emit(ProgressEvent{
		BatchID:       job.BatchID,
		CandidateID:   rec.Candidate.ID,
		CandidateName: rec.Candidate.DisplayName(),
		Stage:         rec.Stage,
		Outcome:       OutcomeAdvanced,
		Index:         index,
		Total:         total,
	})
}

func (o *Orchestrator) emit(e ProgressEvent) {
	if e.At.IsZero() {
		e.At = o.clock.Now()
	}
	o.sink.OnEvent(e)
}

// extract runs the extraction under the normal retry policy. An empty or
// unreadable document earns up to emptyDocRetries further runs on top of
// that budget. The returned count covers every call made.
func (o *Orchestrator) extract(ctx context.Context, lim *ratelimit.Limiter, log *slog.Logger, doc entity.Document) (string, int, error) {
	var text string
	calls := 0
	for extra := o.emptyDocRetries; ; extra-- {
		n, err := o.call(ctx, lim, o.deps.Retry, constants.ServiceAI, "extract_text", func(ctx context.Context) error {
			t, err := o.deps.Extractor.ExtractText(ctx, doc)
			text = t
			return err
		})
		calls += n
		if err == nil || extra <= 0 || ctx.Err() != nil || !errors.Is(err, common.ErrEmptyDocument) {
			return text, calls, err
		}
		log.Info("pipeline.extract.empty_retry", "attempts", calls, "remaining", extra-1)
	}
}

func (o *Orchestrator) call(ctx context.Context, lim *ratelimit.Limiter, p retry.Policy, key, op string, fn func(context.Context) error) (int, error) {
	return p.Execute(ctx, op, func(ctx context.Context) error {
		return lim.Do(ctx, key, fn)
	})
}

func (o *Orchestrator) limiterFor(job *Job) *ratelimit.Limiter {
	if o.deps.Limiter != nil {
		return o.deps.Limiter
	}
	return ratelimit.New(
		ratelimit.WithDefaultDelay(job.Config.InterCallDelay),
		ratelimit.WithDelays(job.Config.ServiceDelays),
		ratelimit.WithClock(o.clock),
		ratelimit.WithLogger(o.log),
	)
}

func (o *Orchestrator) recordErr(log *slog.Logger, what string, enabled bool, fn func() error) {
	if !enabled {
		return
	}
	if err := fn(); err != nil {
		log.Warn("pipeline.recorder.failed", "op", what, "error", err)
	}
}
