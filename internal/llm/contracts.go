package llm

import (
	"context"

	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
)

// Analyzer derives structured attributes from extracted CV text.
// The raw JSON the model returned (after sanitizing) comes back alongside
// the attributes so callers can persist or report it.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (entity.Attributes, []byte, error)
}

// AnalyzerFunc adapts a plain function to Analyzer.
type AnalyzerFunc func(ctx context.Context, text string) (entity.Attributes, []byte, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, text string) (entity.Attributes, []byte, error) {
	return f(ctx, text)
}
