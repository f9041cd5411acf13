package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/internal/app"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
)

// cvanalyze sends CV text (a file or stdin) to the configured analyzer
// [times] times and prints each parsed result, to check prompt stability.
func main() {
	cfg, err := common.LoadConfig("")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	logger := app.NewLogger(os.Stderr, cfg.SlogLevel())
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: cvanalyze <text-file|-> [times]")
		os.Exit(2)
	}
	times := 1
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}

	var text []byte
	if os.Args[1] == "-" {
		text, err = io.ReadAll(os.Stdin)
	} else {
		text, err = os.ReadFile(os.Args[1])
	}
	if err != nil {
		logger.Error("failed to read input", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cfg.Store.DSN = app.StoreDisabled
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	failures := 0
	for i := 1; i <= times; i++ {
		start := time.Now()
		attrs, _, err := a.Analyzer.Analyze(ctx, string(text))
		if err != nil {
			logger.Error("analysis failed", "run", i, "class", common.Classify(err).String(), "error", err)
			failures++
			continue
		}
		logger.Info("analysis ok", "run", i, "tags", len(attrs.Tags()), "elapsed_ms", time.Since(start).Milliseconds())
		if err := enc.Encode(map[string]any{"run": i, "attributes": attrs, "tags": attrs.Tags()}); err != nil {
			logger.Error("encode failed", "error", err)
		}
	}
	if failures > 0 {
		os.Exit(1)
	}
}
