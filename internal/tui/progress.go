package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
)

// EventMsg carries one orchestrator event into the program.
// It is exported so that tests can inject it directly into Update.
type EventMsg struct {
	Event pipeline.ProgressEvent
}

// DoneMsg is sent once Run has returned.
type DoneMsg struct {
	Result *pipeline.BatchResult
	Err    error
}

type row struct {
	id     string
	name   string
	stage  constants.Stage
	state  pipeline.EventOutcome
	errMsg string
}

// ProgressModel renders a live view of one batch.
type ProgressModel struct {
	batchID   string
	status    constants.JobStatus
	total     int
	rows      []row
	index     map[string]int
	started   time.Time
	last      time.Time
	result    *pipeline.BatchResult
	err       error
	done      bool
	quitting  bool
	cancelled bool
	width     int

	// OnCancel is invoked once when the user asks to stop the batch.
	OnCancel func()
}

func NewProgressModel(onCancel func()) ProgressModel {
	return ProgressModel{
		status:   constants.JobStatusPending,
		index:    make(map[string]int),
		OnCancel: onCancel,
	}
}

func (m ProgressModel) Init() tea.Cmd { return nil }

// Update handles orchestrator events and key presses. The first q or ctrl+c
// requests a cooperative cancel; a second one quits without waiting.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case EventMsg:
		m = m.apply(msg.Event)

	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		if msg.Result != nil {
			m.status = msg.Result.Status
		}
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "c":
			return m.requestCancel(), nil
		case "q", "ctrl+c":
			if m.done || m.cancelled {
				m.quitting = true
				return m, tea.Quit
			}
			return m.requestCancel(), nil
		}
	}
	return m, nil
}

func (m ProgressModel) requestCancel() ProgressModel {
	if m.cancelled || m.done {
		return m
	}
	m.cancelled = true
	if m.OnCancel != nil {
		m.OnCancel()
	}
	return m
}

func (m ProgressModel) apply(e pipeline.ProgressEvent) ProgressModel {
	if m.batchID == "" {
		m.batchID = e.BatchID
	}
	if m.started.IsZero() {
		m.started = e.At
	}
	m.last = e.At
	if e.Total > 0 {
		m.total = e.Total
	}

	switch e.Outcome {
	case pipeline.OutcomeBatchStarted:
		m.status = e.Status
		return m
	case pipeline.OutcomeBatchFinished:
		m.status = e.Status
		return m
	}
	m.status = constants.JobStatusRunning

	i, ok := m.index[e.CandidateID]
	if !ok {
		// copy-on-write so earlier model values stay untouched
		idx := make(map[string]int, len(m.index)+1)
		for k, v := range m.index {
			idx[k] = v
		}
		m.rows = append(m.rows[:len(m.rows):len(m.rows)], row{id: e.CandidateID, name: e.CandidateName})
		i = len(m.rows) - 1
		idx[e.CandidateID] = i
		m.index = idx
	} else {
		m.rows = append([]row(nil), m.rows...)
	}
	r := m.rows[i]
	r.stage = e.Stage
	r.state = e.Outcome
	r.errMsg = e.Error
	m.rows[i] = r
	return m
}

// Counts returns the succeeded and failed candidate counts seen so far.
func (m ProgressModel) Counts() (succeeded, failed int) {
	for _, r := range m.rows {
		switch r.state {
		case pipeline.OutcomeSucceeded:
			succeeded++
		case pipeline.OutcomeFailed:
			failed++
		}
	}
	return succeeded, failed
}

func (m ProgressModel) View() string {
	var sb strings.Builder
	id := m.batchID
	if id == "" {
		id = "(pending)"
	}
	sb.WriteString(fmt.Sprintf("cv-pipeline  batch %s  %s  %d/%d\n\n", shortID(id), m.status, m.finished(), m.total))

	if len(m.rows) == 0 {
		sb.WriteString("  listing candidates...\n")
	}
	for i, r := range m.rows {
		line := fmt.Sprintf("  %s %2d/%d %-24s %s", stateIcon(r.state), i+1, m.total, truncate(r.name, 24), r.stage)
		if r.state == pipeline.OutcomeFailed && r.errMsg != "" {
			line += ": " + truncate(r.errMsg, m.errWidth())
		}
		sb.WriteString(line + "\n")
	}

	ok, failed := m.Counts()
	sb.WriteString(fmt.Sprintf("\nSucceeded %d  Failed %d  Elapsed %s\n", ok, failed, m.last.Sub(m.started).Round(time.Second)))

	switch {
	case m.done && m.result != nil && m.result.ReportLocation != "":
		sb.WriteString("Report: " + m.result.ReportLocation + "\n")
	case m.done && m.err != nil:
		sb.WriteString("Error: " + m.err.Error() + "\n")
	case m.cancelled:
		sb.WriteString("Cancelling after the current candidate... press q again to quit now\n")
	default:
		sb.WriteString("[c] cancel  [q] quit\n")
	}
	return sb.String()
}

func (m ProgressModel) finished() int {
	n := 0
	for _, r := range m.rows {
		if r.state == pipeline.OutcomeSucceeded || r.state == pipeline.OutcomeFailed {
			n++
		}
	}
	return n
}

func (m ProgressModel) errWidth() int {
	if m.width > 60 {
		return m.width - 50
	}
	return 60
}

// Done reports whether the batch has finished.
func (m ProgressModel) Done() bool { return m.done }

// Quitting reports whether the user forced the program to quit.
func (m ProgressModel) Quitting() bool { return m.quitting }

func stateIcon(s pipeline.EventOutcome) string {
	switch s {
	case pipeline.OutcomeSucceeded:
		return "✓"
	case pipeline.OutcomeFailed:
		return "✗"
	case pipeline.OutcomeAdvanced:
		return "●"
	default:
		return "?"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
