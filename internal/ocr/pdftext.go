package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
)

// PDFText reads the embedded text layer of a PDF. Scanned PDFs have none,
// which surfaces as ErrEmptyDocument.
type PDFText struct {
	MaxPages int // 0 = no limit
	log      *slog.Logger
}

func NewPDFText(logger *slog.Logger) *PDFText {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFText{log: logger}
}

func (p *PDFText) ExtractText(ctx context.Context, doc entity.Document) (text string, err error) {
	if DetectFormat(doc) != constants.PDF {
		return "", fmt.Errorf("%s: text layer needs a pdf: %w", doc.Filename, common.ErrUnsupportedFormat)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()

	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("ocr.pdftext.panic", "filename", doc.Filename, "panic", r)
			text, err = "", fmt.Errorf("%s: unreadable pdf: %w", doc.Filename, common.ErrEmptyDocument)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(doc.Size()))
	if err != nil {
		return "", fmt.Errorf("%s: open pdf: %w: %v", doc.Filename, common.ErrEmptyDocument, err)
	}

	total := r.NumPage()
	if p.MaxPages > 0 && total > p.MaxPages {
		total = p.MaxPages
	}
	var b strings.Builder
	var skipped int
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			skipped++
			continue
		}
		if b.Len() > 0 {
			b.WriteString(pageSeparator)
		}
		b.WriteString(t)
	}

	text = Normalize(b.String())
	p.log.Debug("ocr.pdftext.done",
		"filename", doc.Filename,
		"pages", total,
		"skipped_pages", skipped,
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if meaningfulChars(text) == 0 {
		return "", fmt.Errorf("%s: no text layer: %w", doc.Filename, common.ErrEmptyDocument)
	}
	return text, nil
}
