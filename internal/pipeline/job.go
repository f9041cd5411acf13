package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
)

// JobConfig is the per-run configuration the orchestrator consumes.
type JobConfig struct {
	CandidateLimit int                      `json:"candidate_limit"`
	InterCallDelay time.Duration            `json:"inter_call_delay"`
	UploadEnabled  bool                     `json:"upload_enabled"`
	ReportEnabled  bool                     `json:"report_enabled"`
	ServiceDelays  map[string]time.Duration `json:"service_delays,omitempty"`
}

// JobConfigFrom maps the pipeline section of the config file.
func JobConfigFrom(p common.PipelineConfig) JobConfig {
	return JobConfig{
		CandidateLimit: p.CandidateLimit,
		InterCallDelay: p.InterCallDelay(),
		UploadEnabled:  p.UploadEnabled,
		ReportEnabled:  p.ReportEnabled,
		ServiceDelays:  p.ServiceDelays,
	}
}

func (c JobConfig) Validate() error {
	v := common.NewValidator().
		Field("candidate_limit", c.CandidateLimit, common.Min(1)).
		Field("inter_call_delay_ms", int(c.InterCallDelay.Milliseconds()), common.Min(0))
	if v.HasErrors() {
		return common.NewAppError("INVALID_JOB", v.ErrorMessage(), common.ErrInvalidInput)
	}
	return nil
}

// Job is one orchestrator run. Status and the cancel flag are safe to read
// from other goroutines while the run is in progress.
type Job struct {
	BatchID   string
	Config    JobConfig
	CreatedAt time.Time

	mu         sync.RWMutex
	status     constants.JobStatus
	candidates []entity.Candidate
	cancel     atomic.Bool
}

// NewJob validates cfg and returns a Pending job with a fresh batch id.
func NewJob(cfg JobConfig) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Job{
		BatchID:   uuid.NewString(),
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
		status:    constants.JobStatusPending,
	}, nil
}

func (j *Job) Status() constants.JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) setStatus(s constants.JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// start moves a Pending job to Running. Only one caller can win.
func (j *Job) start() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != constants.JobStatusPending {
		return false
	}
	j.status = constants.JobStatusRunning
	return true
}

// Candidates returns the listed candidates in processing order.
func (j *Job) Candidates() []entity.Candidate {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]entity.Candidate, len(j.candidates))
	copy(out, j.candidates)
	return out
}

func (j *Job) setCandidates(c []entity.Candidate) {
	j.mu.Lock()
	j.candidates = c
	j.mu.Unlock()
}

// RequestCancel asks the run to stop at the next candidate boundary.
func (j *Job) RequestCancel() { j.cancel.Store(true) }

func (j *Job) CancelRequested() bool { return j.cancel.Load() }
