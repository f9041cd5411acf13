package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
	"github.com/joseph-ayodele/cv-pipeline/internal/utils"
)

const (
	pageSeparator  = "\n\n---\n\n"
	signedURLHours = 1
)

// MistralOCR extracts text with the Mistral OCR API: upload the file, get a
// signed URL for it, run OCR against that URL, then delete the upload.
type MistralOCR struct {
	baseURL string
	apiKey  string
	model   string
	caller  utils.Caller
	log     *slog.Logger
}

// NewMistralOCR builds the remote OCR extractor. classifier may be nil.
func NewMistralOCR(cfg common.MistralConfig, classifier *common.StatusClassifier, logger *slog.Logger) *MistralOCR {
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
	model := cfg.OCRModel
	if model == "" {
		model = "mistral-ocr-latest"
	}
	return &MistralOCR{
		baseURL: base,
		apiKey:  cfg.APIKey,
		model:   model,
		caller: utils.Caller{
			Client:     &http.Client{Timeout: timeout},
			Classifier: classifier,
			Logger:     logger,
		},
		log: logger,
	}
}

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
	Images   []struct {
		ID string `json:"id"`
	} `json:"images"`
}

func (m *MistralOCR) ExtractText(ctx context.Context, doc entity.Document) (string, error) {
	start := time.Now()
	format := DetectFormat(doc)
	if format == "" {
		return "", fmt.Errorf("%s (%s): %w", doc.Filename, doc.ContentType, common.ErrUnsupportedFormat)
	}
	if doc.Size() == 0 {
		return "", fmt.Errorf("%s: %w", doc.Filename, common.ErrEmptyDocument)
	}

	m.log.Info("ocr.mistral.start", "filename", doc.Filename, "format", format, "bytes", doc.Size(), "model", m.model)

	fileID, err := m.upload(ctx, doc)
	if err != nil {
		return "", err
	}
	defer m.deleteFile(fileID)

	signed, err := m.signedURL(ctx, fileID)
	if err != nil {
		return "", err
	}

	document := map[string]any{"type": "document_url", "document_url": signed}
	if format == constants.IMAGE {
		document = map[string]any{"type": "image_url", "image_url": signed}
	}
	raw, err := m.caller.SendJSON(ctx, utils.Request{
		Service: "mistral-ocr",
		URL:     m.baseURL + "/v1/ocr",
		Body: map[string]any{
			"model":                m.model,
			"document":             document,
			"include_image_base64": false,
		},
		Headers: m.auth(),
	})
	if err != nil {
		m.log.Error("ocr.mistral.process_error", "filename", doc.Filename, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}

	var resp struct {
		Pages []ocrPage `json:"pages"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", common.Transient(err))
	}

	text := combinePages(resp.Pages)
	if meaningfulChars(text) == 0 {
		m.log.Warn("ocr.mistral.empty", "filename", doc.Filename, "pages", len(resp.Pages))
		return "", fmt.Errorf("%s: ocr produced no text: %w", doc.Filename, common.ErrEmptyDocument)
	}

	m.log.Info("ocr.mistral.ok",
		"filename", doc.Filename,
		"pages", len(resp.Pages),
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// combinePages joins page markdown with a horizontal rule, dropping image placeholders.
func combinePages(pages []ocrPage) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		md := p.Markdown
		for _, img := range p.Images {
			md = strings.ReplaceAll(md, fmt.Sprintf("![%s](%s)", img.ID, img.ID), "")
		}
		parts = append(parts, Normalize(StripImageRefs(md)))
	}
	return strings.Join(parts, pageSeparator)
}

func (m *MistralOCR) upload(ctx context.Context, doc entity.Document) (string, error) {
	raw, err := m.caller.SendMultipart(ctx, utils.Request{
		Service: "mistral-files",
		URL:     m.baseURL + "/v1/files",
		Headers: m.auth(),
	}, "file", doc.Filename, doc.Data, map[string]string{"purpose": "ocr"})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", doc.Filename, err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return "", fmt.Errorf("upload %s: missing file id: %w", doc.Filename, common.ErrTransient)
	}
	return out.ID, nil
}

func (m *MistralOCR) signedURL(ctx context.Context, fileID string) (string, error) {
	raw, err := m.caller.SendJSON(ctx, utils.Request{
		Service: "mistral-files",
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/v1/files/%s/url?expiry=%d", m.baseURL, url.PathEscape(fileID), signedURLHours),
		Headers: m.auth(),
	})
	if err != nil {
		return "", fmt.Errorf("signed url for %s: %w", fileID, err)
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.URL == "" {
		return "", fmt.Errorf("signed url for %s: empty url: %w", fileID, common.ErrTransient)
	}
	return out.URL, nil
}

// deleteFile is best effort; an orphaned upload only costs storage.
func (m *MistralOCR) deleteFile(fileID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := m.caller.SendJSON(ctx, utils.Request{
		Service: "mistral-files",
		Method:  http.MethodDelete,
		URL:     fmt.Sprintf("%s/v1/files/%s", m.baseURL, url.PathEscape(fileID)),
		Headers: m.auth(),
	})
	if err != nil {
		m.log.Debug("ocr.mistral.delete_failed", "file_id", fileID, "error", err)
	}
}

func (m *MistralOCR) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + m.apiKey}
}
