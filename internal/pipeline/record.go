package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
)

// CandidateRecord is the mutable state of one candidate during a run.
// Only the orchestrator loop touches it.
type CandidateRecord struct {
	Candidate   entity.Candidate
	Stage       constants.Stage
	Stages      []constants.Stage // every stage entered, in order
	Attributes  *entity.Attributes
	RawAnalysis []byte
	Err         error
	FailedStage constants.Stage
	Attempts    map[constants.Stage]int
	CVPath      string
	TextChars   int
	StartedAt   time.Time
}

func newRecord(c entity.Candidate, now time.Time) *CandidateRecord {
	return &CandidateRecord{
		Candidate: c,
		Stage:     constants.StageRetrieved,
		Stages:    []constants.Stage{constants.StageRetrieved},
		Attempts:  make(map[constants.Stage]int),
		StartedAt: now,
	}
}

// advance moves the record to the next stage; anything but the immediate
// successor is rejected.
func (r *CandidateRecord) advance(to constants.Stage) error {
	next, ok := r.Stage.Next()
	if !ok || next != to {
		return fmt.Errorf("illegal transition %s -> %s: %w", r.Stage, to, common.ErrInternal)
	}
	r.Stage = to
	r.Stages = append(r.Stages, to)
	return nil
}

// fail marks the record Failed. stage is the stage whose work produced err.
func (r *CandidateRecord) fail(stage constants.Stage, err error) {
	r.Stage = constants.StageFailed
	r.Stages = append(r.Stages, constants.StageFailed)
	r.FailedStage = stage
	r.Err = err
}

// Retries returns how many extra attempts stage needed.
func (r *CandidateRecord) Retries(stage constants.Stage) int {
	if n := r.Attempts[stage]; n > 1 {
		return n - 1
	}
	return 0
}

// Outcome is the immutable, reportable view of a finished record.
type Outcome struct {
	Index       int                     `json:"index"`
	Candidate   entity.Candidate        `json:"candidate"`
	Stage       constants.Stage         `json:"stage"`
	Stages      []constants.Stage       `json:"stages"`
	FailedStage constants.Stage         `json:"failed_stage,omitempty"`
	Attributes  *entity.Attributes      `json:"attributes,omitempty"`
	Tags        []string                `json:"tags,omitempty"`
	ErrorClass  string                  `json:"error_class,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Err         error                   `json:"-"`
	Attempts    map[constants.Stage]int `json:"attempts,omitempty"`
	CVPath      string                  `json:"cv_path,omitempty"`
	Elapsed     time.Duration           `json:"elapsed"`
}

func (r *CandidateRecord) outcome(index int, now time.Time) Outcome {
	o := Outcome{
		Index:       index,
		Candidate:   r.Candidate,
		Stage:       r.Stage,
		Stages:      slices.Clone(r.Stages),
		FailedStage: r.FailedStage,
		Attempts:    maps.Clone(r.Attempts),
		CVPath:      r.CVPath,
		Elapsed:     now.Sub(r.StartedAt),
		Err:         r.Err,
	}
	if r.Attributes != nil {
		a := *r.Attributes
		a.Skills = slices.Clone(a.Skills)
		o.Attributes = &a
		o.Tags = a.Tags()
	}
	if r.Err != nil {
		o.ErrorClass = common.Classify(r.Err).String()
		o.Error = r.Err.Error()
	}
	return o
}

// Failed reports whether the outcome ended in the Failed stage.
func (o Outcome) Failed() bool { return o.Stage == constants.StageFailed }
