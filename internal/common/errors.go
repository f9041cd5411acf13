package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error kinds. Adapters wrap one of these so the core can classify without
// knowing which provider produced the error.
var (
	ErrTransient         = errors.New("transient error")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyDocument     = errors.New("empty or unparsable document")
	ErrSchemaValidation  = errors.New("schema validation failed")
	ErrIO                = errors.New("i/o error")
	ErrInternal          = errors.New("internal error")

	// errPermanent marks an error as not retryable regardless of its other kinds.
	errPermanent = errors.New("permanent")
)

// NewAppError builds an AppError.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent marks err as not retryable, overriding any transient kind it carries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errPermanent, err)
}

// IsTransient reports whether retrying err can reasonably succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errPermanent) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}

// RetryExhaustedError is returned when every attempt failed transiently.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: retry exhausted after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// FatalBatchError aborts a whole run (listing unreachable, report not writable).
type FatalBatchError struct {
	Op    string
	Cause error
}

func (e *FatalBatchError) Error() string {
	return fmt.Sprintf("fatal batch error during %s: %v", e.Op, e.Cause)
}

func (e *FatalBatchError) Unwrap() error { return e.Cause }

// Classify maps the error taxonomy onto gRPC canonical codes.
func Classify(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return s.Code()
	}
	var fatal *FatalBatchError
	switch {
	case errors.As(err, &fatal):
		return codes.Aborted
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, ErrRateLimited):
		return codes.ResourceExhausted
	case errors.Is(err, ErrUnauthorized):
		return codes.Unauthenticated
	case errors.Is(err, ErrNotFound):
		return codes.NotFound
	case errors.Is(err, ErrSchemaValidation),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrEmptyDocument),
		errors.Is(err, ErrInvalidInput):
		return codes.InvalidArgument
	case IsTransient(err):
		return codes.Unavailable
	case errors.Is(err, ErrIO):
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// ToStatus converts err to a gRPC status error carrying its classification.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(Classify(err), err.Error())
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
