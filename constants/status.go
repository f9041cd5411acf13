package constants

// JobStatus is the lifecycle of one orchestrator run.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusAborted   JobStatus = "ABORTED"
)

// IsFinal reports whether no further transition can happen.
func (s JobStatus) IsFinal() bool {
	return s == JobStatusCompleted || s == JobStatusAborted
}

// Stage is the position of a candidate record in the fixed pipeline.
type Stage string

const (
	StageRetrieved  Stage = "RETRIEVED"
	StageDownloaded Stage = "DOWNLOADED"
	StageExtracted  Stage = "EXTRACTED"
	StageAnalyzed   Stage = "ANALYZED"
	StageReported   Stage = "REPORTED"
	StageUploaded   Stage = "UPLOADED"
	StageFailed     Stage = "FAILED"
)

// StageOrder is the only forward path a record may take.
var StageOrder = []Stage{
	StageRetrieved,
	StageDownloaded,
	StageExtracted,
	StageAnalyzed,
	StageReported,
	StageUploaded,
}

// Index returns the position of s in StageOrder, or -1 (Failed, unknown).
func (s Stage) Index() int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s, false at the end of the order.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(StageOrder) {
		return "", false
	}
	return StageOrder[i+1], true
}

// IsTerminal reports whether s ends a record's lifecycle. Reported is terminal
// only when the job does not upload tags.
func (s Stage) IsTerminal(uploadEnabled bool) bool {
	switch s {
	case StageFailed, StageUploaded:
		return true
	case StageReported:
		return !uploadEnabled
	default:
		return false
	}
}

// Service keys used for rate limiting external calls.
const (
	ServiceRecruitee = "recruitee"
	ServiceAI        = "ai"
)
