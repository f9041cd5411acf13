package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink receives progress events. OnEvent must not block for long; the
// orchestrator calls it inline between external calls.
type Sink interface {
	OnEvent(ProgressEvent)
}

type SinkFunc func(ProgressEvent)

func (f SinkFunc) OnEvent(e ProgressEvent) { f(e) }

type nopSink struct{}

func (nopSink) OnEvent(ProgressEvent) {}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) OnEvent(e ProgressEvent) {
	for _, s := range m {
		if s != nil {
			s.OnEvent(e)
		}
	}
}

// ChannelSink hands events to a consumer goroutine through a bounded buffer.
// When the buffer is full the event is dropped and counted.
type ChannelSink struct {
	mu      sync.RWMutex
	ch      chan ProgressEvent
	closed  bool
	dropped atomic.Int64
}

func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 64
	}
	return &ChannelSink{ch: make(chan ProgressEvent, size)}
}

func (s *ChannelSink) OnEvent(e ProgressEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// Events is the receive side; it is closed by Close.
func (s *ChannelSink) Events() <-chan ProgressEvent { return s.ch }

func (s *ChannelSink) Dropped() int64 { return s.dropped.Load() }

func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) OnEvent(e ProgressEvent) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelDebug
	switch e.Outcome {
	case OutcomeFailed:
		level = slog.LevelWarn
	case OutcomeSucceeded, OutcomeBatchStarted, OutcomeBatchFinished:
		level = slog.LevelInfo
	}
	logger.Log(context.Background(), level, "pipeline.progress",
		"batch_id", e.BatchID,
		"candidate_id", e.CandidateID,
		"stage", e.Stage,
		"outcome", e.Outcome,
		"index", e.Index,
		"total", e.Total,
		"error", e.Error,
	)
}
