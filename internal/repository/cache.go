package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// TextCache keeps extracted CV text keyed by the SHA-256 of the document.
type TextCache struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

func NewTextCache(s *Store, logger *slog.Logger) *TextCache {
	if logger == nil {
		logger = s.log
	}
	return &TextCache{store: s, logger: logger, now: time.Now}
}

func (c *TextCache) Get(ctx context.Context, contentHash string) (string, bool, error) {
	q, args := c.store.builder().Select("text").
		From(entsql.Table("ocr_cache")).
		Where(entsql.EQ("content_hash", contentHash)).
		Query()
	var rows entsql.Rows
	if err := c.store.drv.Query(ctx, q, args, &rows); err != nil {
		return "", false, fmt.Errorf("ocr cache get: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, rows.Err()
	}
	var text string
	if err := rows.Scan(&text); err != nil {
		return "", false, fmt.Errorf("ocr cache scan: %w", err)
	}
	return text, true, nil
}

// Put inserts or replaces the cached text for contentHash.
func (c *TextCache) Put(ctx context.Context, contentHash, filename, text string) error {
	q, args := c.store.builder().Insert("ocr_cache").
		Columns("content_hash", "filename", "text", "created_at").
		Values(contentHash, filename, text, c.now().UnixMilli()).
		OnConflict(entsql.ConflictColumns("content_hash"), entsql.ResolveWithNewValues()).
		Query()
	if err := c.store.drv.Exec(ctx, q, args, nil); err != nil {
		c.logger.Error("failed to upsert ocr cache", "hash", contentHash, "error", err)
		return fmt.Errorf("ocr cache put: %w", err)
	}
	return nil
}
