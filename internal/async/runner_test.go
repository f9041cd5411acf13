package async_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/async"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
)

// blockingOrch runs until release is closed or the job is cancelled.
type blockingOrch struct {
	started chan string
	release chan struct{}

	mu        sync.Mutex
	jobs      map[string]*pipeline.Job
	cancelled []string
}

func newBlockingOrch() *blockingOrch {
	return &blockingOrch{
		started: make(chan string, 8),
		release: make(chan struct{}),
		jobs:    make(map[string]*pipeline.Job),
	}
}

func (b *blockingOrch) Run(ctx context.Context, job *pipeline.Job) (*pipeline.BatchResult, error) {
	b.mu.Lock()
	b.jobs[job.BatchID] = job
	b.mu.Unlock()
	b.started <- job.BatchID

	res := &pipeline.BatchResult{BatchID: job.BatchID, Config: job.Config, Status: constants.JobStatusCompleted}
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-b.release:
			return res, nil
		case <-ctx.Done():
			res.Status = constants.JobStatusAborted
			return res, ctx.Err()
		case <-tick.C:
			if job.CancelRequested() {
				res.Status = constants.JobStatusAborted
				return res, nil
			}
		}
	}
}

func (b *blockingOrch) Cancel(batchID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, batchID)
	_, ok := b.jobs[batchID]
	return ok
}

func (b *blockingOrch) Progress(batchID string) (*pipeline.BatchResult, bool) {
	return &pipeline.BatchResult{BatchID: batchID, Status: constants.JobStatusRunning, Listed: 3}, true
}

func waitStatus(t *testing.T, r *async.Runner, id string, want constants.JobStatus) async.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s, ok := r.Get(id); ok && s.Status == want {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	s, _ := r.Get(id)
	t.Fatalf("batch %s: expected status %s, last saw %s", id, want, s.Status)
	return s
}

func TestRunner_SubmitRunsToCompletion(t *testing.T) {
	orch := newBlockingOrch()
	r := async.NewRunner(orch, nil)
	defer r.Shutdown(context.Background())

	id, err := r.Submit(context.Background(), pipeline.JobConfig{CandidateLimit: 3})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-orch.started

	s := waitStatus(t, r, id, constants.JobStatusRunning)
	if s.Result == nil || s.Result.Listed != 3 {
		t.Errorf("expected live progress while running, got %+v", s.Result)
	}

	close(orch.release)
	s = waitStatus(t, r, id, constants.JobStatusCompleted)
	if s.Error != "" {
		t.Errorf("unexpected error %q", s.Error)
	}
	res, err := r.Result(id)
	if err != nil || res.BatchID != id {
		t.Errorf("expected final result, got %v, %v", res, err)
	}
}

func TestRunner_SubmitRejectsInvalidConfig(t *testing.T) {
	r := async.NewRunner(newBlockingOrch(), nil)
	defer r.Shutdown(context.Background())

	_, err := r.Submit(context.Background(), pipeline.JobConfig{CandidateLimit: 0})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if len(r.List()) != 0 {
		t.Errorf("rejected batch must not be registered")
	}
}

func TestRunner_CancelQueuedBatchNeverStarts(t *testing.T) {
	orch := newBlockingOrch()
	r := async.NewRunner(orch, nil)
	defer r.Shutdown(context.Background())

	first, _ := r.Submit(context.Background(), pipeline.JobConfig{CandidateLimit: 1})
	<-orch.started
	second, err := r.Submit(context.Background(), pipeline.JobConfig{CandidateLimit: 1})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !r.Cancel(second) {
		t.Fatalf("expected cancel of queued batch to succeed")
	}
	close(orch.release)

	waitStatus(t, r, first, constants.JobStatusCompleted)
	s := waitStatus(t, r, second, constants.JobStatusAborted)
	if s.Error == "" {
		t.Errorf("expected a cancellation error, got %q", s.Error)
	}
	select {
	case id := <-orch.started:
		t.Errorf("cancelled batch %s should not have started", id)
	default:
	}
	if r.Cancel(second) {
		t.Errorf("cancelling a finished batch must return false")
	}
}

func TestRunner_CancelRunningBatch(t *testing.T) {
	orch := newBlockingOrch()
	r := async.NewRunner(orch, nil)
	defer r.Shutdown(context.Background())

	id, _ := r.Submit(context.Background(), pipeline.JobConfig{CandidateLimit: 1})
	<-orch.started
	waitStatus(t, r, id, constants.JobStatusRunning)
	if !r.Cancel(id) {
		t.Fatalf("expected cancel to succeed")
	}
	waitStatus(t, r, id, constants.JobStatusAborted)

	orch.mu.Lock()
	defer orch.mu.Unlock()
	if len(orch.cancelled) != 1 || orch.cancelled[0] != id {
		t.Errorf("expected orchestrator cancel for %s, got %v", id, orch.cancelled)
	}
}

func TestRunner_GetUnknown(t *testing.T) {
	r := async.NewRunner(newBlockingOrch(), nil)
	defer r.Shutdown(context.Background())
	if _, ok := r.Get("nope"); ok {
		t.Errorf("expected unknown batch")
	}
	if r.Cancel("nope") {
		t.Errorf("expected cancel of unknown batch to fail")
	}
	if _, err := r.Result("nope"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunner_SubmitAfterShutdown(t *testing.T) {
	r := async.NewRunner(newBlockingOrch(), nil)
	r.Shutdown(context.Background())
	if _, err := r.Submit(context.Background(), pipeline.JobConfig{CandidateLimit: 1}); !errors.Is(err, async.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestRunner_ShutdownTimeoutInterruptsRunning(t *testing.T) {
	orch := newBlockingOrch()
	r := async.NewRunner(orch, nil)

	id, _ := r.Submit(context.Background(), pipeline.JobConfig{CandidateLimit: 1})
	<-orch.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r.Shutdown(ctx)

	s, _ := r.Get(id)
	if s.Status != constants.JobStatusAborted {
		t.Errorf("expected interrupted batch to be aborted, got %s", s.Status)
	}
}

func TestRunner_ShutdownReleasesBlockedSubmit(t *testing.T) {
	orch := newBlockingOrch()
	r := async.NewRunner(orch, nil, async.WithQueueSize(1))

	if _, err := r.Submit(context.Background(), pipeline.JobConfig{CandidateLimit: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-orch.started
	if _, err := r.Submit(context.Background(), pipeline.JobConfig{CandidateLimit: 1}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	submitted := make(chan error, 1)
	go func() {
		_, err := r.Submit(context.Background(), pipeline.JobConfig{CandidateLimit: 1})
		submitted <- err
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		r.Shutdown(ctx)
		close(stopped)
	}()

	select {
	case err := <-submitted:
		if !errors.Is(err, async.ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked submit was not released by shutdown")
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return")
	}
	if n := len(r.List()); n != 2 {
		t.Errorf("expected the rejected batch to be forgotten, got %d batches", n)
	}
}
