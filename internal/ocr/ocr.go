package ocr

import (
	"context"
	"path/filepath"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
)

// Extractor turns a CV document into plain text.
type Extractor interface {
	ExtractText(ctx context.Context, doc entity.Document) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, doc entity.Document) (string, error)

func (f ExtractorFunc) ExtractText(ctx context.Context, doc entity.Document) (string, error) {
	return f(ctx, doc)
}

// DetectFormat returns constants.PDF, constants.IMAGE or "" using the content
// type first, then the filename, then the file signature.
func DetectFormat(doc entity.Document) string {
	if f := constants.MapContentTypeToFormat(doc.ContentType); f != "" {
		return f
	}
	if f := constants.MapExtToFormat(filepath.Ext(doc.Filename)); f != "" {
		return f
	}
	switch {
	case len(doc.Data) >= 5 && string(doc.Data[:5]) == "%PDF-":
		return constants.PDF
	case len(doc.Data) >= 3 && doc.Data[0] == 0xFF && doc.Data[1] == 0xD8 && doc.Data[2] == 0xFF:
		return constants.IMAGE
	case len(doc.Data) >= 8 && string(doc.Data[1:4]) == "PNG":
		return constants.IMAGE
	}
	return ""
}

func mimeFor(doc entity.Document) string {
	if constants.MapContentTypeToFormat(doc.ContentType) != "" {
		return doc.ContentType
	}
	switch constants.NormalizeExt(filepath.Ext(doc.Filename)) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	}
	if DetectFormat(doc) == constants.IMAGE {
		if len(doc.Data) >= 4 && string(doc.Data[1:4]) == "PNG" {
			return "image/png"
		}
		return "image/jpeg"
	}
	return "application/pdf"
}
