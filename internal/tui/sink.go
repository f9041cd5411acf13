package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
)

// Sender is the part of *tea.Program a Sink needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Sink forwards orchestrator events to a running bubbletea program.
type Sink struct {
	p Sender
}

var _ pipeline.Sink = Sink{}

func NewSink(p Sender) Sink { return Sink{p: p} }

func (s Sink) OnEvent(e pipeline.ProgressEvent) { s.p.Send(EventMsg{Event: e}) }

// NewProgram builds the progress program. Output goes to the terminal's
// alternate screen so regular logs must be sent elsewhere.
func NewProgram(m ProgressModel, opts ...tea.ProgramOption) *tea.Program {
	return tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
}
