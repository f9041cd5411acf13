package pipeline_test

import (
	"testing"

	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
)

func TestChannelSink_DropsWhenFull(t *testing.T) {
	s := pipeline.NewChannelSink(2)
	for i := 0; i < 5; i++ {
		s.OnEvent(pipeline.ProgressEvent{Index: i + 1})
	}
	if s.Dropped() != 3 {
		t.Errorf("expected 3 dropped, got %d", s.Dropped())
	}
	s.Close()
	s.OnEvent(pipeline.ProgressEvent{Index: 9}) // after close: ignored, no panic

	var got []int
	for e := range s.Events() {
		got = append(got, e.Index)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected [1 2], got %v", got)
	}
}

func TestMultiSink_FansOut(t *testing.T) {
	var a, b int
	m := pipeline.MultiSink{
		pipeline.SinkFunc(func(pipeline.ProgressEvent) { a++ }),
		nil,
		pipeline.SinkFunc(func(pipeline.ProgressEvent) { b++ }),
	}
	m.OnEvent(pipeline.ProgressEvent{})
	if a != 1 || b != 1 {
		t.Errorf("expected each sink called once, got %d %d", a, b)
	}
}
