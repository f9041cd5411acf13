package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
)

// Chain prefers a PDF's own text layer and only pays for remote OCR when the
// layer is missing or too thin to be a real CV.
type Chain struct {
	Local    Extractor // may be nil
	Remote   Extractor
	MinChars int
	log      *slog.Logger
}

func NewChain(local, remote Extractor, minChars int, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{Local: local, Remote: remote, MinChars: minChars, log: logger}
}

func (c *Chain) ExtractText(ctx context.Context, doc entity.Document) (string, error) {
	format := DetectFormat(doc)
	switch format {
	case constants.PDF:
		if c.Local != nil {
			text, err := c.Local.ExtractText(ctx, doc)
			if err == nil && meaningfulChars(text) >= c.MinChars {
				c.log.Info("ocr.chain.local", "filename", doc.Filename, "chars", len(text))
				return text, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.log.Debug("ocr.chain.fallback", "filename", doc.Filename, "local_chars", meaningfulChars(text), "error", err)
		}
	case constants.IMAGE:
	default:
		return "", fmt.Errorf("%s (%s): %w", doc.Filename, doc.ContentType, common.ErrUnsupportedFormat)
	}
	if c.Remote == nil {
		return "", fmt.Errorf("%s: no remote ocr configured: %w", doc.Filename, common.ErrEmptyDocument)
	}
	return c.Remote.ExtractText(ctx, doc)
}
