package app_test

import (
	"context"
	"testing"

	"github.com/joseph-ayodele/cv-pipeline/internal/app"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/ocr"
)

func testConfig(t *testing.T) *common.Config {
	cfg := common.DefaultConfig()
	cfg.Recruitee.CompanyID = "acme"
	cfg.Recruitee.APIKey = "rk"
	cfg.Mistral.APIKey = "mk"
	cfg.Report.OutputDir = t.TempDir()
	return &cfg
}

func TestBuild_WithoutStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.DSN = app.StoreDisabled

	a, err := app.Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	if a.Store != nil || a.History != nil {
		t.Errorf("expected no store")
	}
	if _, ok := a.Extractor.(*ocr.Chain); !ok {
		t.Errorf("expected uncached chain extractor, got %T", a.Extractor)
	}
	if a.Archive != nil {
		t.Errorf("archive should be off without a dir")
	}
	if err := a.Health(context.Background()); err != nil {
		t.Errorf("health without store: %v", err)
	}
	if a.Orchestrator() == nil {
		t.Errorf("expected orchestrator")
	}
}

func TestBuild_WithSQLiteStoreAndArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.DSN = ":memory:"
	cfg.Storage.ArchiveDir = t.TempDir()

	a, err := app.Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()
	if a.Store == nil || a.History == nil {
		t.Fatalf("expected store and history")
	}
	if _, ok := a.Extractor.(*ocr.Cached); !ok {
		t.Errorf("expected cached extractor, got %T", a.Extractor)
	}
	if a.Archive == nil {
		t.Errorf("expected archive")
	}
	if err := a.Health(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}
}
