package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
)

// maxResponseBytes bounds how much of a provider response we buffer.
const maxResponseBytes = 32 << 20

// Request describes one call to an external JSON API.
type Request struct {
	Service string // used in logs and HTTPStatusError
	Method  string // defaults to POST
	URL     string
	Body    any // marshalled as JSON when non-nil
	Headers map[string]string
}

// Caller sends requests and turns failures into the common error taxonomy.
type Caller struct {
	Client     *http.Client
	Classifier *common.StatusClassifier
	Logger     *slog.Logger
}

func (c Caller) defaults() Caller {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 45 * time.Second}
	}
	if c.Classifier == nil {
		c.Classifier = common.NewStatusClassifier(nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// SendJSON sends r and returns the raw response body of a 2xx response.
// Non-2xx responses come back as *common.HTTPStatusError; transport failures
// are marked transient.
func (c Caller) SendJSON(ctx context.Context, r Request) ([]byte, error) {
	var body io.Reader
	var size int
	if r.Body != nil {
		bs, err := json.Marshal(r.Body)
		if err != nil {
			return nil, common.Permanent(fmt.Errorf("encode json: %w", err))
		}
		body = bytes.NewReader(bs)
		size = len(bs)
	}
	headers := map[string]string{"Accept": "application/json"}
	if r.Body != nil {
		headers["Content-Type"] = "application/json"
	}
	for k, v := range r.Headers {
		headers[k] = v
	}
	return c.send(ctx, r, body, size, headers)
}

// SendMultipart uploads data as a single file field plus extra form fields.
func (c Caller) SendMultipart(ctx context.Context, r Request, field, filename string, data []byte, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, common.Permanent(fmt.Errorf("write field %s: %w", k, err))
		}
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return nil, common.Permanent(fmt.Errorf("create form file: %w", err))
	}
	if _, err := fw.Write(data); err != nil {
		return nil, common.Permanent(fmt.Errorf("write form file: %w", err))
	}
	if err := mw.Close(); err != nil {
		return nil, common.Permanent(fmt.Errorf("close multipart: %w", err))
	}
	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": mw.FormDataContentType(),
	}
	for k, v := range r.Headers {
		headers[k] = v
	}
	return c.send(ctx, r, &buf, buf.Len(), headers)
}

func (c Caller) send(ctx context.Context, r Request, body io.Reader, size int, headers map[string]string) ([]byte, error) {
	c = c.defaults()
	method := r.Method
	if method == "" {
		method = http.MethodPost
	}
	reqID := uuid.New().String()
	start := time.Now()
	logger := c.Logger.With("service", r.Service, "req_id", reqID)

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		logger.Error("http.build_request_error", "error", err)
		return nil, common.Permanent(fmt.Errorf("build request: %w", err))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Debug("http.request", "method", method, "url", r.URL, "content_length", size)

	resp, err := c.Client.Do(req)
	if err != nil {
		logger.Error("http.send_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, common.Transient(fmt.Errorf("%s request: %w", r.Service, err))
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("http.response_body_close_error", "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, common.Transient(fmt.Errorf("%s read body: %w", r.Service, err))
	}

	logger.Debug("http.response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, c.Classifier.Error(r.Service, resp.StatusCode, raw)
	}
	return raw, nil
}

// SHA256Hex returns the hex-encoded SHA-256 of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Truncate shortens s to max bytes, marking the cut.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
