package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
)

const (
	ResultsSheet = "Analysis_Results"
	SummarySheet = "Summary"
	filePrefix   = "cv_analysis_results_"
)

var headers = []string{
	"Candidate ID",
	"Name",
	"Email",
	"Status",
	"Failed Stage",
	"Error Class",
	"Error",
	"Gender",
	"Education Level",
	"Graduation Year",
	"Experience",
	"Mother Tongue",
	"School",
	"Field of Study",
	"Skills",
	"Tags",
	"CV Path",
	"Attempts",
	"Elapsed (s)",
}

// XLSXWriter writes the batch workbook, falling back to a plain-text report
// when the workbook cannot be saved.
type XLSXWriter struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*XLSXWriter)

func WithNow(now func() time.Time) Option { return func(w *XLSXWriter) { w.now = now } }

func NewXLSXWriter(dir string, logger *slog.Logger, opts ...Option) *XLSXWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = "."
	}
	w := &XLSXWriter{dir: dir, now: time.Now, logger: logger}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Write implements pipeline.ReportWriter.
func (w *XLSXWriter) Write(ctx context.Context, res *pipeline.BatchResult) (string, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("report dir %s: %w: %v", w.dir, common.ErrIO, err)
	}
	stamp := w.now().Format("20060102_150405")
	path := filepath.Join(w.dir, filePrefix+stamp+".xlsx")

	xerr := w.writeWorkbook(path, res)
	if xerr == nil {
		w.logger.Info("export.xlsx.ok",
			"batch_id", res.BatchID,
			"path", path,
			"rows", len(res.Outcomes),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return path, nil
	}

	w.logger.Warn("export.xlsx.failed", "batch_id", res.BatchID, "path", path, "error", xerr)
	txt := filepath.Join(w.dir, filePrefix+stamp+".txt")
	if err := os.WriteFile(txt, []byte(RenderText(res, w.now())), 0o644); err != nil {
		return "", fmt.Errorf("%w: xlsx: %v; text: %v", common.ErrIO, xerr, err)
	}
	w.logger.Info("export.text.ok", "batch_id", res.BatchID, "path", txt)
	return txt, nil
}

func (w *XLSXWriter) writeWorkbook(path string, res *pipeline.BatchResult) error {
	f, err := BuildWorkbook(res, w.now())
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			w.logger.Warn("export.xlsx.close_error", "error", err)
		}
	}()
	return f.SaveAs(path)
}

// BuildWorkbook lays out the results and summary sheets in memory.
func BuildWorkbook(res *pipeline.BatchResult, generated time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(ResultsSheet, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(ResultsSheet, "A1", last, bold)

	for i, o := range res.Outcomes {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(ResultsSheet, cell, v)
		}
		write(1, o.Candidate.ID)
		write(2, o.Candidate.DisplayName())
		write(3, o.Candidate.Email)
		write(4, string(o.Stage))
		write(5, string(o.FailedStage))
		write(6, o.ErrorClass)
		write(7, o.Error)
		if a := o.Attributes; a != nil {
			for j, kv := range a.Scalars() {
				write(8+j, kv[1])
			}
			write(15, strings.Join(a.Skills, ", "))
			write(16, strings.Join(o.Tags, ", "))
		}
		write(17, o.CVPath)
		write(18, formatAttempts(o.Attempts))
		write(19, o.Elapsed.Round(time.Millisecond).Seconds())
	}

	_ = f.SetColWidth(ResultsSheet, "A", "A", 14)
	_ = f.SetColWidth(ResultsSheet, "B", "C", 28)
	_ = f.SetColWidth(ResultsSheet, "D", "F", 16)
	_ = f.SetColWidth(ResultsSheet, "G", "G", 48)
	_ = f.SetColWidth(ResultsSheet, "H", "N", 22)
	_ = f.SetColWidth(ResultsSheet, "O", "P", 40)
	_ = f.SetColWidth(ResultsSheet, "Q", "Q", 60)
	if len(res.Outcomes) > 0 {
		ref, _ := excelize.CoordinatesToCellName(len(headers), len(res.Outcomes)+1)
		_ = f.AutoFilter(ResultsSheet, "A1:"+ref, nil)
	}

	for i, kv := range summaryRows(res, generated) {
		a, _ := excelize.CoordinatesToCellName(1, i+1)
		b, _ := excelize.CoordinatesToCellName(2, i+1)
		_ = f.SetCellValue(SummarySheet, a, kv[0])
		_ = f.SetCellValue(SummarySheet, b, kv[1])
	}
	_ = f.SetCellStyle(SummarySheet, "A1", "B1", bold)
	_ = f.SetColWidth(SummarySheet, "A", "A", 28)
	_ = f.SetColWidth(SummarySheet, "B", "B", 40)

	idx, _ := f.GetSheetIndex(ResultsSheet)
	f.SetActiveSheet(idx)
	return f, nil
}

func summaryRows(res *pipeline.BatchResult, generated time.Time) [][2]any {
	rows := [][2]any{
		{"Metric", "Value"},
		{"Batch ID", res.BatchID},
		{"Status", string(res.Status)},
		{"Processing Date", generated.Format("2006-01-02 15:04:05")},
		{"Candidates Listed", res.Listed},
		{"Candidates Processed", res.Processed()},
		{"Succeeded", res.Succeeded()},
		{"Reported", res.Counts[constants.StageReported]},
		{"Uploaded", res.Counts[constants.StageUploaded]},
		{"Failed", res.Failed()},
	}
	for _, st := range constants.StageOrder[1:] {
		if n := res.FailedAt[st]; n > 0 {
			rows = append(rows, [2]any{"Failed at " + string(st), n})
		}
	}
	rows = append(rows,
		[2]any{"Upload Enabled", res.Config.UploadEnabled},
		[2]any{"Elapsed (s)", res.Elapsed.Round(time.Millisecond).Seconds()},
	)
	if res.Error != "" {
		rows = append(rows, [2]any{"Error", res.Error})
	}
	return rows
}

func formatAttempts(m map[constants.Stage]int) string {
	var parts []string
	for _, st := range constants.StageOrder {
		if n, ok := m[st]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", strings.ToLower(string(st)), n))
		}
	}
	return strings.Join(parts, " ")
}
