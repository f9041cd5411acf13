package mistral

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
	"github.com/joseph-ayodele/cv-pipeline/internal/llm"
	"github.com/joseph-ayodele/cv-pipeline/internal/utils"
)

// Client implements llm.Analyzer with Mistral chat completions in JSON mode.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float32
	caller      utils.Caller
	now         func() time.Time
	log         *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.caller.Client = h } }
func WithTemperature(t float32) Option     { return func(c *Client) { c.temperature = t } }
func WithNow(now func() time.Time) Option  { return func(c *Client) { c.now = now } }

func NewClient(cfg common.MistralConfig, classifier *common.StatusClassifier, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.mistral.ai"
	}
	model := cfg.ChatModel
	if model == "" {
		model = "mistral-large-latest"
	}
	c := &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		model:   model,
		caller: utils.Caller{
			Client:     &http.Client{Timeout: timeout},
			Classifier: classifier,
			Logger:     logger,
		},
		now: time.Now,
		log: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Analyze(ctx context.Context, text string) (entity.Attributes, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("llm.analyze.start", "req_id", rid, "backend", "mistral", "model", c.model, "text_len", len(text))

	body := map[string]any{
		"model":           c.model,
		"temperature":     c.temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt(c.now().Year())},
			{"role": "user", "content": llm.BuildUserPrompt(text)},
		},
	}
	raw, err := c.caller.SendJSON(ctx, utils.Request{
		Service: "mistral-chat",
		URL:     c.baseURL + "/v1/chat/completions",
		Body:    body,
		Headers: map[string]string{"Authorization": "Bearer " + c.apiKey},
	})
	if err != nil {
		c.log.Error("llm.analyze.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.Attributes{}, nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.analyze.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return entity.Attributes{}, raw, fmt.Errorf("decode mistral response: %w", common.Transient(err))
	}
	if len(cc.Choices) == 0 || strings.TrimSpace(cc.Choices[0].Message.Content) == "" {
		c.log.Error("llm.analyze.no_choices", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.Attributes{}, raw, fmt.Errorf("no choices in mistral response: %w", common.ErrTransient)
	}

	attrs, cleaned, err := llm.ParseAttributes(cc.Choices[0].Message.Content, c.log.With("req_id", rid))
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
