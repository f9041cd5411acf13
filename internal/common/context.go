package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID   contextKey = "request_id"
	ContextKeyBatchID     contextKey = "batch_id"
	ContextKeyCandidateID contextKey = "candidate_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithBatchID adds a batch ID to the context
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, ContextKeyBatchID, batchID)
}

// BatchIDFromContext extracts the batch ID from context
func BatchIDFromContext(ctx context.Context) string {
	if batchID, ok := ctx.Value(ContextKeyBatchID).(string); ok {
		return batchID
	}
	return ""
}

// WithCandidateID adds the candidate being processed to the context
func WithCandidateID(ctx context.Context, candidateID string) context.Context {
	return context.WithValue(ctx, ContextKeyCandidateID, candidateID)
}

// CandidateIDFromContext extracts the candidate ID from context
func CandidateIDFromContext(ctx context.Context) string {
	if candidateID, ok := ctx.Value(ContextKeyCandidateID).(string); ok {
		return candidateID
	}
	return ""
}

// LoggerFrom decorates logger with whichever ids ctx carries.
func LoggerFrom(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	if id := BatchIDFromContext(ctx); id != "" {
		logger = logger.With("batch_id", id)
	}
	if id := CandidateIDFromContext(ctx); id != "" {
		logger = logger.With("candidate_id", id)
	}
	return logger
}
