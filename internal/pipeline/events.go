package pipeline

import (
	"time"

	"github.com/joseph-ayodele/cv-pipeline/constants"
)

// EventOutcome says what a ProgressEvent reports.
type EventOutcome string

const (
	// OutcomeAdvanced: the candidate entered Stage and keeps going.
	OutcomeAdvanced EventOutcome = "advanced"
	// OutcomeSucceeded: terminal success at Stage.
	OutcomeSucceeded EventOutcome = "succeeded"
	// OutcomeFailed: terminal failure; Stage is the stage that failed.
	OutcomeFailed EventOutcome = "failed"
	// Batch-level events carry no candidate.
	OutcomeBatchStarted  EventOutcome = "batch_started"
	OutcomeBatchFinished EventOutcome = "batch_finished"
)

// ProgressEvent is emitted by the orchestrator and never stored by it.
type ProgressEvent struct {
	BatchID       string              `json:"batch_id"`
	CandidateID   string              `json:"candidate_id,omitempty"`
	CandidateName string              `json:"candidate_name,omitempty"`
	Stage         constants.Stage     `json:"stage,omitempty"`
	Outcome       EventOutcome        `json:"outcome"`
	Index         int                 `json:"index"` // 1-based
	Total         int                 `json:"total"`
	Error         string              `json:"error,omitempty"`
	Status        constants.JobStatus `json:"status,omitempty"` // batch events only
	At            time.Time           `json:"at"`
}

// Terminal reports whether e closes a candidate.
func (e ProgressEvent) Terminal() bool {
	return e.Outcome == OutcomeSucceeded || e.Outcome == OutcomeFailed
}
