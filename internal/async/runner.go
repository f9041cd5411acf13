package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
)

// ErrClosed is returned by Submit once Shutdown has started.
var ErrClosed = errors.New("runner is shutting down")

// BatchRunner is the part of the orchestrator the runner drives.
type BatchRunner interface {
	Run(ctx context.Context, job *pipeline.Job) (*pipeline.BatchResult, error)
	Cancel(batchID string) bool
	Progress(batchID string) (*pipeline.BatchResult, bool)
}

// Snapshot is a point-in-time view of a submitted batch.
type Snapshot struct {
	BatchID     string                `json:"batch_id"`
	Status      constants.JobStatus   `json:"status"`
	Config      pipeline.JobConfig    `json:"config"`
	SubmittedAt time.Time             `json:"submitted_at"`
	Result      *pipeline.BatchResult `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
}

type entry struct {
	job         *pipeline.Job
	submittedAt time.Time
	running     bool
	done        bool
	result      *pipeline.BatchResult
	err         error
}

// Runner executes batches in the background, one at a time by default, and
// keeps every submitted batch addressable by id.
type Runner struct {
	orch    BatchRunner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ctx  context.Context
	stop context.CancelFunc

	ch   chan *entry
	wg   sync.WaitGroup
	once sync.Once

	// quit wakes submitters blocked on a full queue once Shutdown begins.
	quit     chan struct{}
	quitOnce sync.Once

	// qmu guards closed and sends on ch; mu guards jobs and entry fields.
	qmu    sync.Mutex
	closed bool
	mu     sync.Mutex
	jobs   map[string]*entry
}

type Option func(*Runner)

func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.ch = make(chan *entry, n)
		}
	}
}

// WithRunTimeout caps a single batch. Zero means no cap.
func WithRunTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewRunner(orch BatchRunner, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	r := &Runner{
		orch:    orch,
		logger:  logger,
		workers: 1,
		ctx:     ctx,
		stop:    stop,
		ch:      make(chan *entry, 16),
		quit:    make(chan struct{}),
		jobs:    make(map[string]*entry),
	}
	for _, o := range opts {
		o(r)
	}
	r.start()
	return r
}

func (r *Runner) start() {
	r.once.Do(func() {
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go func(workerID int) {
				defer r.wg.Done()
				r.logger.Info("worker started", "worker_id", workerID)
				for e := range r.ch {
					r.run(workerID, e)
				}
				r.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (r *Runner) run(workerID int, e *entry) {
	id := e.job.BatchID
	r.mu.Lock()
	if e.job.CancelRequested() {
		e.done = true
		e.err = fmt.Errorf("batch %s cancelled before start: %w", id, context.Canceled)
		r.mu.Unlock()
		r.logger.Info("batch skipped, cancelled while queued", "worker_id", workerID, "batch_id", id)
		return
	}
	e.running = true
	r.mu.Unlock()

	ctx := r.ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := r.orch.Run(ctx, e.job)

	r.mu.Lock()
	e.result, e.err = res, err
	e.running, e.done = false, true
	r.mu.Unlock()
	if err != nil {
		r.logger.Error("batch failed", "worker_id", workerID, "batch_id", id, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return
	}
	r.logger.Info("batch finished", "worker_id", workerID, "batch_id", id, "status", res.Status, "elapsed_ms", time.Since(start).Milliseconds())
}

// Submit queues a new batch and returns its id. It blocks while the queue is
// full, until ctx is done or Shutdown starts.
func (r *Runner) Submit(ctx context.Context, cfg pipeline.JobConfig) (string, error) {
	job, err := pipeline.NewJob(cfg)
	if err != nil {
		return "", err
	}
	e := &entry{job: job, submittedAt: job.CreatedAt}

	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.closed {
		r.logger.Warn("cannot submit: runner is shutting down")
		return "", ErrClosed
	}
	r.mu.Lock()
	r.jobs[job.BatchID] = e
	r.mu.Unlock()
	select {
	case r.ch <- e:
	default:
		r.logger.Warn("queue full, applying backpressure", "batch_id", job.BatchID)
		select {
		case r.ch <- e:
		case <-ctx.Done():
			err = ctx.Err()
		case <-r.quit:
			err = ErrClosed
		}
		if err != nil {
			r.mu.Lock()
			delete(r.jobs, job.BatchID)
			r.mu.Unlock()
			return "", err
		}
	}
	r.logger.Info("queued batch", "batch_id", job.BatchID, "candidate_limit", cfg.CandidateLimit)
	return job.BatchID, nil
}

// Get returns the current view of a batch. Running batches report live progress.
func (r *Runner) Get(batchID string) (Snapshot, bool) {
	r.mu.Lock()
	e, ok := r.jobs[batchID]
	if !ok {
		r.mu.Unlock()
		return Snapshot{}, false
	}
	s := r.snapshotLocked(e)
	r.mu.Unlock()

	if s.Status == constants.JobStatusRunning {
		if live, ok := r.orch.Progress(batchID); ok {
			s.Result = live
		}
	}
	return s, true
}

func (r *Runner) snapshotLocked(e *entry) Snapshot {
	s := Snapshot{
		BatchID:     e.job.BatchID,
		Status:      constants.JobStatusPending,
		Config:      e.job.Config,
		SubmittedAt: e.submittedAt,
	}
	switch {
	case e.result != nil:
		s.Status = e.result.Status
		s.Result = e.result.Clone()
	case e.done:
		s.Status = constants.JobStatusAborted
	case e.running:
		s.Status = constants.JobStatusRunning
	}
	if e.err != nil {
		s.Error = e.err.Error()
	}
	return s
}

// List returns every known batch, newest first.
func (r *Runner) List() []Snapshot {
	r.mu.Lock()
	out := make([]Snapshot, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, r.snapshotLocked(e))
	}
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

// Cancel requests cooperative cancellation. Queued batches never start;
// running ones stop at the next candidate boundary. Returns false for unknown
// or already finished batches.
func (r *Runner) Cancel(batchID string) bool {
	r.mu.Lock()
	e, ok := r.jobs[batchID]
	if !ok || e.done {
		r.mu.Unlock()
		return false
	}
	running := e.running
	e.job.RequestCancel()
	r.mu.Unlock()

	if running {
		r.orch.Cancel(batchID)
	}
	r.logger.Info("cancel requested", "batch_id", batchID, "running", running)
	return true
}

// Result returns the final result of a finished batch.
func (r *Runner) Result(batchID string) (*pipeline.BatchResult, error) {
	s, ok := r.Get(batchID)
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, common.ErrNotFound)
	}
	if !s.Status.IsFinal() || s.Result == nil {
		return nil, fmt.Errorf("batch %s is %s: %w", batchID, s.Status, common.ErrInvalidInput)
	}
	return s.Result, nil
}

// Shutdown stops accepting batches and waits for the queue to drain. When ctx
// ends first, running batches are interrupted through their context.
func (r *Runner) Shutdown(ctx context.Context) {
	r.quitOnce.Do(func() { close(r.quit) })
	r.qmu.Lock()
	if r.closed {
		r.qmu.Unlock()
		return
	}
	r.closed = true
	close(r.ch)
	r.qmu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); r.wg.Wait() }()

	select {
	case <-ctx.Done():
		r.logger.Warn("shutdown interrupted by context, cancelling running batches")
		r.stop()
		<-done
	case <-done:
		r.logger.Info("queue drained, shutdown complete")
	}
	r.stop()
}
