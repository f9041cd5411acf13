package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/internal/app"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
	"github.com/joseph-ayodele/cv-pipeline/internal/storage"
)

// cvocr runs the configured text extraction on local CV files and prints the text.
func main() {
	cfg, err := common.LoadConfig("")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	logger := app.NewLogger(os.Stderr, cfg.SlogLevel())
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage", "cmd", "cvocr <cv-file> [cv-file...]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	failed := 0
	for _, path := range os.Args[1:] {
		if !storage.AllowedExt(filepath.Ext(path)) {
			logger.Warn("skipping unsupported file", "path", path)
			failed++
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("read failed", "path", path, "error", err)
			failed++
			continue
		}
		doc := entity.Document{Filename: filepath.Base(path), Data: data}
		start := time.Now()
		text, err := a.Extractor.ExtractText(ctx, doc)
		if err != nil {
			logger.Error("extraction failed", "path", path, "class", common.Classify(err).String(), "error", err)
			failed++
			continue
		}
		logger.Info("extracted", "path", path, "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
		fmt.Printf("===== %s =====\n%s\n", path, text)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
