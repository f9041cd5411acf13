package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
	"github.com/joseph-ayodele/cv-pipeline/internal/llm"
)

// Client implements llm.Analyzer on top of the Gemini API.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	classifier  *common.StatusClassifier
	now         func() time.Time
	log         *slog.Logger
}

// Options tune the underlying genai client; tests point BaseURL at a fake server.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Now        func() time.Time
}

func NewClient(ctx context.Context, cfg common.GeminiConfig, classifier *common.StatusClassifier, logger *slog.Logger, opts Options) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = common.NewStatusClassifier(nil)
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{client: client, model: model, classifier: classifier, now: now, log: logger}, nil
}

func (c *Client) Analyze(ctx context.Context, text string) (entity.Attributes, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.analyze.start", "req_id", rid, "backend", "gemini", "model", c.model, "text_len", len(text))

	temp := c.temperature
	config := &genai.GenerateContentConfig{
		Temperature:       &temp,
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(llm.BuildSystemPrompt(c.now().Year()), genai.RoleUser),
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(llm.BuildUserPrompt(text)), config)
	if err != nil {
		err = c.mapError(err)
		c.log.Error("llm.analyze.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.Attributes{}, nil, err
	}
	content := ""
	if resp != nil {
		content = resp.Text()
	}
	if content == "" {
		c.log.Error("llm.analyze.no_choices", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.Attributes{}, nil, fmt.Errorf("no text in gemini response: %w", common.ErrTransient)
	}

	attrs, cleaned, err := llm.ParseAttributes(content, c.log.With("req_id", rid))
	if err != nil {
		return entity.Attributes{}, cleaned, err
	}
	c.log.Info("llm.analyze.ok",
		"req_id", rid,
		"education_level", attrs.EducationLevel,
		"graduation_year", attrs.GraduationYear,
		"skills", len(attrs.Skills),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return attrs, cleaned, nil
}

// mapError folds genai API errors into the common taxonomy by HTTP status.
func (c *Client) mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini: %w", c.classifier.Error("gemini", apiErr.Code, []byte(apiErr.Message)))
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return fmt.Errorf("gemini: %w", c.classifier.Error("gemini", apiErrPtr.Code, []byte(apiErrPtr.Message)))
	}
	if common.IsTransient(err) {
		return err
	}
	return fmt.Errorf("gemini: %w", common.Transient(err))
}
