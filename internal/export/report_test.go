package export_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/entity"
	"github.com/joseph-ayodele/cv-pipeline/internal/export"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
)

var generated = time.Date(2025, 6, 1, 14, 30, 5, 0, time.UTC)

func sampleResult() *pipeline.BatchResult {
	attrs := &entity.Attributes{
		Gender: "Female", EducationLevel: "Master", GraduationYear: "GY 2024", Experience: "0-0.5y exp",
		MotherTongue: "French", School: "Université de Liège", FieldOfStudy: "Law", Skills: []string{"Drafting", "Research"},
	}
	return &pipeline.BatchResult{
		BatchID: "b-1",
		Status:  constants.JobStatusCompleted,
		Config:  pipeline.JobConfig{CandidateLimit: 2, UploadEnabled: true, ReportEnabled: true},
		Listed:  2,
		Counts:  map[constants.Stage]int{constants.StageUploaded: 1, constants.StageFailed: 1},
		FailedAt: map[constants.Stage]int{
			constants.StageDownloaded: 1,
		},
		Outcomes: []pipeline.Outcome{
			{
				Index: 1, Candidate: entity.Candidate{ID: "11", Name: "Amélie Dupont", Email: "a@x.be"},
				Stage: constants.StageUploaded, Attributes: attrs, Tags: attrs.Tags(),
				Attempts: map[constants.Stage]int{constants.StageDownloaded: 1, constants.StageAnalyzed: 2},
				CVPath:   "/cv/CV_11.pdf",
			},
			{
				Index: 2, Candidate: entity.Candidate{ID: "12", Name: "Bram Peeters"},
				Stage: constants.StageFailed, FailedStage: constants.StageDownloaded,
				ErrorClass: "NotFound", Error: "no cv",
			},
		},
		Elapsed: 12 * time.Second,
	}
}

func TestWrite_Workbook(t *testing.T) {
	dir := t.TempDir()
	w := export.NewXLSXWriter(dir, nil, export.WithNow(func() time.Time { return generated }))

	path, err := w.Write(context.Background(), sampleResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join(dir, "cv_analysis_results_20250601_143005.xlsx"); path != want {
		t.Errorf("expected %s, got %s", want, path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(export.ResultsSheet)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Candidate ID" || rows[1][1] != "Amélie Dupont" || rows[1][12] != "Université de Liège" {
		t.Errorf("unexpected first row %v", rows[1])
	}
	if rows[1][14] != "Drafting, Research" {
		t.Errorf("expected skills joined, got %q", rows[1][14])
	}
	if rows[1][17] != "downloaded=1 analyzed=2" {
		t.Errorf("unexpected attempts cell %q", rows[1][17])
	}
	if rows[2][3] != "FAILED" || rows[2][4] != "DOWNLOADED" || rows[2][5] != "NotFound" {
		t.Errorf("unexpected failed row %v", rows[2])
	}

	summary, err := f.GetRows(export.SummarySheet)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	got := map[string]string{}
	for _, r := range summary {
		if len(r) == 2 {
			got[r[0]] = r[1]
		}
	}
	if got["Succeeded"] != "1" || got["Failed"] != "1" || got["Failed at DOWNLOADED"] != "1" || got["Status"] != "COMPLETED" {
		t.Errorf("unexpected summary %v", got)
	}
}

func TestWrite_FallsBackToText(t *testing.T) {
	dir := t.TempDir()
	// a directory squatting on the workbook name makes SaveAs fail
	if err := os.Mkdir(filepath.Join(dir, "cv_analysis_results_20250601_143005.xlsx"), 0o755); err != nil {
		t.Fatal(err)
	}
	w := export.NewXLSXWriter(dir, nil, export.WithNow(func() time.Time { return generated }))

	path, err := w.Write(context.Background(), sampleResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(path, ".txt") {
		t.Fatalf("expected text fallback, got %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Amélie Dupont (11): UPLOADED", "failed at DOWNLOADED [NotFound]: no cv", "school:"} {
		if !strings.Contains(string(b), want) {
			t.Errorf("expected text report to contain %q", want)
		}
	}
}

func TestWrite_UnwritableDirIsIOError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := export.NewXLSXWriter(filepath.Join(file, "reports"), nil)

	_, err := w.Write(context.Background(), sampleResult())
	if !errors.Is(err, common.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}
