package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/export"
	"github.com/joseph-ayodele/cv-pipeline/internal/llm"
	"github.com/joseph-ayodele/cv-pipeline/internal/llm/gemini"
	"github.com/joseph-ayodele/cv-pipeline/internal/llm/mistral"
	"github.com/joseph-ayodele/cv-pipeline/internal/ocr"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/cv-pipeline/internal/recruitee"
	"github.com/joseph-ayodele/cv-pipeline/internal/repository"
	"github.com/joseph-ayodele/cv-pipeline/internal/retry"
	"github.com/joseph-ayodele/cv-pipeline/internal/storage"
)

// StoreDisabled as DSN turns off run history and the OCR cache.
const StoreDisabled = "none"

// App holds the wired collaborators shared by the binaries.
type App struct {
	Config     *common.Config
	Logger     *slog.Logger
	Classifier *common.StatusClassifier
	Recruitee  *recruitee.Client
	Extractor  ocr.Extractor
	Analyzer   llm.Analyzer
	Report     *export.XLSXWriter
	Archive    *storage.Archive  // nil when archiving is off
	Store      *repository.Store // nil when the store is off
	History    *repository.BatchRepository
}

// NewLogger builds the JSON slog handler every binary uses.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Build wires every adapter from cfg. The caller owns Close.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:     cfg,
		Logger:     logger,
		Classifier: common.NewStatusClassifier(cfg.Retry.TransientStatuses),
	}

	a.Recruitee = recruitee.NewClient(cfg.Recruitee,
		recruitee.WithClassifier(a.Classifier),
		recruitee.WithLogger(logger),
	)

	if dsn := strings.TrimSpace(cfg.Store.DSN); dsn != "" && dsn != StoreDisabled {
		store, err := repository.Open(ctx, cfg.Store, logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		a.Store = store
		a.History = repository.NewBatchRepository(store, logger)
	} else {
		logger.Info("store disabled, run history and ocr cache are off")
	}

	pdfText := ocr.NewPDFText(logger)
	remote := ocr.NewMistralOCR(cfg.Mistral, a.Classifier, logger)
	var extractor ocr.Extractor = ocr.NewChain(pdfText, remote, cfg.Pipeline.PDFTextMinChars, logger)
	if a.Store != nil {
		extractor = ocr.NewCached(extractor, repository.NewTextCache(a.Store, logger), logger)
	}
	a.Extractor = extractor

	switch cfg.Analyzer {
	case common.AnalyzerGemini:
		g, err := gemini.NewClient(ctx, cfg.Gemini, a.Classifier, logger, gemini.Options{})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Analyzer = g
	default:
		a.Analyzer = mistral.NewClient(cfg.Mistral, a.Classifier, logger)
	}
	logger.Info("analyzer selected", "analyzer", cfg.Analyzer)

	a.Report = export.NewXLSXWriter(cfg.Report.OutputDir, logger)
	if dir := strings.TrimSpace(cfg.Storage.ArchiveDir); dir != "" {
		a.Archive = storage.NewArchive(dir, logger)
	}
	return a, nil
}

// Orchestrator returns an orchestrator over the wired adapters.
func (a *App) Orchestrator(opts ...pipeline.Option) *pipeline.Orchestrator {
	policy := retry.New(a.Config.Pipeline.MaxAttempts, a.Config.Pipeline.BaseBackoff)
	policy.Logger = a.Logger

	base := []pipeline.Option{}
	if a.History != nil {
		base = append(base, pipeline.WithRecorder(a.History))
	}
	if a.Archive != nil {
		base = append(base, pipeline.WithArchiver(a.Archive))
	}
	return pipeline.NewOrchestrator(pipeline.Deps{
		Source:     a.Recruitee,
		Downloader: a.Recruitee,
		Uploader:   a.Recruitee,
		Extractor:  a.Extractor,
		Analyzer:   a.Analyzer,
		Report:     a.Report,
		Retry:      policy,
		Logger:     a.Logger,
	}, append(base, opts...)...)
}

// Health checks the store when one is configured.
func (a *App) Health(ctx context.Context) error {
	if a.Store == nil {
		return nil
	}
	return a.Store.HealthCheck(ctx, 0)
}

func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}
