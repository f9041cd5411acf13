package common

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// DefaultTransientStatuses are retried unless configured otherwise.
var DefaultTransientStatuses = []int{
	http.StatusRequestTimeout,
	http.StatusTooEarly,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// HTTPStatusError is a non-2xx response from an external service.
type HTTPStatusError struct {
	Service string
	Status  int
	Body    string
	Kind    error
}

func (e *HTTPStatusError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "...(truncated)"
	}
	if body == "" {
		return fmt.Sprintf("%s status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s status %d: %s", e.Service, e.Status, body)
}

func (e *HTTPStatusError) Unwrap() error { return e.Kind }

// StatusClassifier decides which HTTP statuses are worth retrying. The transient
// set is explicit and configurable; everything else follows fixed rules.
type StatusClassifier struct {
	transient map[int]struct{}
}

// NewStatusClassifier builds a classifier; an empty list uses DefaultTransientStatuses.
func NewStatusClassifier(transient []int) *StatusClassifier {
	if len(transient) == 0 {
		transient = DefaultTransientStatuses
	}
	m := make(map[int]struct{}, len(transient))
	for _, s := range transient {
		m[s] = struct{}{}
	}
	return &StatusClassifier{transient: m}
}

// Kind returns the sentinel describing status.
func (c *StatusClassifier) Kind(status int) error {
	if status == http.StatusTooManyRequests {
		if _, ok := c.transient[status]; ok {
			return ErrRateLimited
		}
		return ErrInvalidInput
	}
	if _, ok := c.transient[status]; ok {
		return ErrTransient
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound || status == http.StatusGone:
		return ErrNotFound
	case status == http.StatusUnsupportedMediaType || status == http.StatusUnprocessableEntity:
		return ErrUnsupportedFormat
	case status >= 500:
		return ErrTransient
	default:
		return ErrInvalidInput
	}
}

// Error builds the HTTPStatusError for a failed response.
func (c *StatusClassifier) Error(service string, status int, body []byte) error {
	return &HTTPStatusError{
		Service: service,
		Status:  status,
		Body:    strings.TrimSpace(string(body)),
		Kind:    c.Kind(status),
	}
}

// ParseStatusList parses "429,500,503" into status codes, skipping junk entries.
func ParseStatusList(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil && n >= 100 && n <= 599 {
			out = append(out, n)
		}
	}
	return out
}
