package pipeline

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/constants"
)

// BatchResult aggregates the outcomes of one run. Counts are running totals
// kept in step with Outcomes.
type BatchResult struct {
	BatchID        string                  `json:"batch_id"`
	Status         constants.JobStatus     `json:"status"`
	Config         JobConfig               `json:"config"`
	Listed         int                     `json:"listed"`
	Counts         map[constants.Stage]int `json:"counts"`
	FailedAt       map[constants.Stage]int `json:"failed_at"`
	Outcomes       []Outcome               `json:"outcomes"`
	StartedAt      time.Time               `json:"started_at"`
	FinishedAt     time.Time               `json:"finished_at,omitempty"`
	Elapsed        time.Duration           `json:"elapsed"`
	ReportLocation string                  `json:"report_location,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

func newBatchResult(job *Job, started time.Time) *BatchResult {
	return &BatchResult{
		BatchID:   job.BatchID,
		Status:    job.Status(),
		Config:    job.Config,
		Counts:    make(map[constants.Stage]int),
		FailedAt:  make(map[constants.Stage]int),
		Outcomes:  []Outcome{},
		StartedAt: started,
	}
}

// Processed is the number of candidates that reached a terminal stage.
func (r *BatchResult) Processed() int { return len(r.Outcomes) }

// Succeeded counts candidates that went all the way through.
func (r *BatchResult) Succeeded() int {
	if r.Config.UploadEnabled {
		return r.Counts[constants.StageUploaded]
	}
	return r.Counts[constants.StageReported]
}

func (r *BatchResult) Failed() int { return r.Counts[constants.StageFailed] }

// Clone returns a deep copy that shares nothing mutable with r.
func (r *BatchResult) Clone() *BatchResult {
	c := *r
	c.Counts = maps.Clone(r.Counts)
	c.FailedAt = maps.Clone(r.FailedAt)
	c.Outcomes = slices.Clone(r.Outcomes)
	return &c
}

// aggregator is the append-only view of a running batch shared with readers.
type aggregator struct {
	mu  sync.RWMutex
	res *BatchResult
}

func (a *aggregator) add(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.res.Outcomes = append(a.res.Outcomes, o)
	a.res.Counts[o.Stage]++
	if o.Failed() {
		a.res.FailedAt[o.FailedStage]++
	}
}

func (a *aggregator) update(fn func(r *BatchResult)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.res)
}

func (a *aggregator) snapshot() *BatchResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.res.Clone()
}
