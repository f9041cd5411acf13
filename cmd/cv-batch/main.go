package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/constants"
	"github.com/joseph-ayodele/cv-pipeline/internal/app"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/cv-pipeline/internal/tui"
)

const (
	exitOK      = 0
	exitAborted = 1
	exitConfig  = 2
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "TOML config file (default $CV_PIPELINE_CONFIG)")
		limit      = flag.Int("limit", 0, "maximum number of candidates to process")
		delay      = flag.Int("delay", 0, "seconds between calls to the same service")
		upload     = flag.Bool("upload", false, "upload derived tags to the recruitment platform")
		report     = flag.Bool("report", true, "write the XLSX report")
		out        = flag.String("out", "", "report output directory")
		analyzer   = flag.String("analyzer", "", "analysis backend: mistral or gemini")
		store      = flag.String("store", "", "store DSN (sqlite file, postgres:// URL, or 'none')")
		archive    = flag.String("archive", "", "directory to keep downloaded CVs in")
		useTUI     = flag.Bool("tui", false, "show live progress in the terminal")
	)
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		return exitConfig
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "limit":
			cfg.Pipeline.CandidateLimit = *limit
		case "delay":
			cfg.Pipeline.InterCallDelaySeconds = *delay
		case "upload":
			cfg.Pipeline.UploadEnabled = *upload
		case "report":
			cfg.Pipeline.ReportEnabled = *report
		case "out":
			cfg.Report.OutputDir = *out
		case "analyzer":
			cfg.Analyzer = strings.ToLower(*analyzer)
		case "store":
			cfg.Store.DSN = *store
		case "archive":
			cfg.Storage.ArchiveDir = *archive
		}
	})
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		return exitConfig
	}

	// The TUI owns the terminal; logs go to a file next to the reports.
	var logOut io.Writer = os.Stdout
	if *useTUI {
		f, err := openLogFile(cfg.Report.OutputDir)
		if err != nil {
			printError("Error: %v\n", err)
			return exitConfig
		}
		defer f.Close()
		logOut = f
	}
	logger := app.NewLogger(logOut, cfg.SlogLevel())
	slog.SetDefault(logger)

	job, err := pipeline.NewJob(pipeline.JobConfigFrom(cfg.Pipeline))
	if err != nil {
		printError("Error: %v\n", err)
		return exitConfig
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		printError("Error: %v\n", err)
		if errors.Is(err, common.ErrInvalidInput) {
			return exitConfig
		}
		return exitAborted
	}
	defer a.Close()

	// First signal cancels cooperatively, the second interrupts in-flight calls.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		n := 0
		for range sigs {
			n++
			if n == 1 {
				logger.Info("interrupt received, stopping after the current candidate", "batch_id", job.BatchID)
				job.RequestCancel()
				continue
			}
			logger.Warn("second interrupt, aborting now", "batch_id", job.BatchID)
			cancel()
			return
		}
	}()

	var res *pipeline.BatchResult
	if *useTUI {
		res, err = runWithTUI(ctx, cancel, a, job)
	} else {
		orch := a.Orchestrator(pipeline.WithSink(pipeline.LogSink{Logger: logger}))
		res, err = orch.Run(ctx, job)
	}

	printSummary(os.Stdout, res, err)
	if err != nil || res == nil || res.Status != constants.JobStatusCompleted {
		return exitAborted
	}
	return exitOK
}

func runWithTUI(ctx context.Context, cancel context.CancelFunc, a *app.App, job *pipeline.Job) (*pipeline.BatchResult, error) {
	p := tui.NewProgram(tui.NewProgressModel(job.RequestCancel))
	orch := a.Orchestrator(pipeline.WithSink(tui.NewSink(p)))

	type outcome struct {
		res *pipeline.BatchResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := orch.Run(ctx, job)
		p.Send(tui.DoneMsg{Result: res, Err: err})
		done <- outcome{res, err}
	}()

	final, perr := p.Run()
	if perr != nil {
		a.Logger.Error("tui failed", "error", perr)
	}
	if m, ok := final.(tui.ProgressModel); ok && m.Quitting() && !m.Done() {
		cancel()
	}
	o := <-done
	return o.res, o.err
}

func openLogFile(dir string) (*os.File, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	name := filepath.Join(dir, fmt.Sprintf("cv-batch_%s.log", time.Now().Format("20060102_150405")))
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func printSummary(w io.Writer, res *pipeline.BatchResult, err error) {
	if res == nil {
		fmt.Fprintf(w, "\nBatch did not run: %v\n", err)
		return
	}
	fmt.Fprintf(w, "\nBatch %s %s\n", res.BatchID, res.Status)
	fmt.Fprintf(w, "  listed:    %d\n", res.Listed)
	fmt.Fprintf(w, "  processed: %d\n", res.Processed())
	fmt.Fprintf(w, "  succeeded: %d\n", res.Succeeded())
	fmt.Fprintf(w, "  failed:    %d\n", res.Failed())
	for _, st := range constants.StageOrder {
		if n := res.FailedAt[st]; n > 0 {
			fmt.Fprintf(w, "    at %-10s %d\n", st, n)
		}
	}
	fmt.Fprintf(w, "  elapsed:   %s\n", res.Elapsed.Round(time.Millisecond))
	if res.ReportLocation != "" {
		fmt.Fprintf(w, "  report:    %s\n", res.ReportLocation)
	}
	if err != nil {
		fmt.Fprintf(w, "  error:     %v\n", err)
	}
}
