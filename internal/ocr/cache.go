package ocr

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
	"github.com/joseph-ayodele/cv-pipeline/internal/utils"
)

// TextCache stores extracted text by document content hash.
type TextCache interface {
	Get(ctx context.Context, contentHash string) (text string, ok bool, err error)
	Put(ctx context.Context, contentHash, filename, text string) error
}

// Cached skips extraction for documents whose text is already known.
// Cache errors are logged and never fail the extraction.
type Cached struct {
	next  Extractor
	cache TextCache
	log   *slog.Logger
}

func NewCached(next Extractor, cache TextCache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: cache, log: logger}
}

func (c *Cached) ExtractText(ctx context.Context, doc entity.Document) (string, error) {
	hash := utils.SHA256Hex(doc.Data)
	if text, ok, err := c.cache.Get(ctx, hash); err != nil {
		c.log.Warn("ocr.cache.get_failed", "filename", doc.Filename, "error", err)
	} else if ok {
		c.log.Info("ocr.cache.hit", "filename", doc.Filename, "hash", hash[:12])
		return text, nil
	}

	text, err := c.next.ExtractText(ctx, doc)
	if err != nil {
		return "", err
	}
	if err := c.cache.Put(ctx, hash, doc.Filename, text); err != nil {
		c.log.Warn("ocr.cache.put_failed", "filename", doc.Filename, "error", err)
	}
	return text, nil
}
