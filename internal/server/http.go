package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/joseph-ayodele/cv-pipeline/internal/async"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/cv-pipeline/internal/repository"
)

// Batches is the background runner behind the API.
type Batches interface {
	Submit(ctx context.Context, cfg pipeline.JobConfig) (string, error)
	Get(batchID string) (async.Snapshot, bool)
	List() []async.Snapshot
	Cancel(batchID string) bool
	Result(batchID string) (*pipeline.BatchResult, error)
}

// History exposes persisted runs, including those of earlier processes.
type History interface {
	ListBatches(ctx context.Context, limit int) ([]repository.BatchRun, error)
	ListOutcomes(ctx context.Context, batchID string) ([]repository.OutcomeRow, error)
}

// HealthFunc reports whether the daemon's dependencies are usable.
type HealthFunc func(ctx context.Context) error

// BatchRequest is the body of POST /api/v1/batches. Omitted fields fall back
// to the daemon's configured defaults.
type BatchRequest struct {
	CandidateLimit        *int  `json:"candidate_limit"`
	InterCallDelaySeconds *int  `json:"inter_call_delay_seconds"`
	UploadEnabled         *bool `json:"upload_enabled"`
	ReportEnabled         *bool `json:"report_enabled"`
}

func (r BatchRequest) apply(cfg pipeline.JobConfig) pipeline.JobConfig {
	if r.CandidateLimit != nil {
		cfg.CandidateLimit = *r.CandidateLimit
	}
	if r.InterCallDelaySeconds != nil {
		cfg.InterCallDelay = time.Duration(*r.InterCallDelaySeconds) * time.Second
	}
	if r.UploadEnabled != nil {
		cfg.UploadEnabled = *r.UploadEnabled
	}
	if r.ReportEnabled != nil {
		cfg.ReportEnabled = *r.ReportEnabled
	}
	return cfg
}

// HTTP serves the batch API.
type HTTP struct {
	app      *fiber.App
	batches  Batches
	history  History
	health   HealthFunc
	defaults pipeline.JobConfig
	logger   *slog.Logger
}

type HTTPOption func(*HTTP)

func WithHistory(h History) HTTPOption { return func(s *HTTP) { s.history = h } }

func WithHealth(f HealthFunc) HTTPOption { return func(s *HTTP) { s.health = f } }

func NewHTTP(batches Batches, defaults pipeline.JobConfig, logger *slog.Logger, opts ...HTTPOption) *HTTP {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTP{
		batches:  batches,
		defaults: defaults,
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "cv-pipeline",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.accessLog)

	s.app.Get("/healthz", s.handleHealth)

	api := s.app.Group("/api/v1")
	api.Post("/batches", s.handleSubmit)
	api.Get("/batches", s.handleList)
	api.Get("/batches/:id", s.handleGet)
	api.Delete("/batches/:id", s.handleCancel)
	api.Get("/batches/:id/report", s.handleReport)
	api.Get("/history", s.handleHistory)
	api.Get("/history/:id/outcomes", s.handleOutcomes)
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *HTTP) App() *fiber.App { return s.app }

func (s *HTTP) Listen(addr string) error {
	s.logger.Info("http.listen", "addr", addr)
	return s.app.Listen(addr)
}

func (s *HTTP) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *HTTP) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = httpStatus(err)
	}
	s.logger.Info("http.request",
		"req_id", c.GetRespHeader(fiber.HeaderXRequestID),
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return err
}

func (s *HTTP) handleHealth(c *fiber.Ctx) error {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.logger.Warn("http.health.failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "healthy", "time": time.Now().UTC()})
}

func (s *HTTP) handleSubmit(c *fiber.Ctx) error {
	var req BatchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
		}
	}
	cfg := req.apply(s.defaults)
	id, err := s.batches.Submit(c.UserContext(), cfg)
	if err != nil {
		if errors.Is(err, async.ErrClosed) {
			return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
		}
		return err
	}
	snap, _ := s.batches.Get(id)
	return c.Status(fiber.StatusAccepted).JSON(snap)
}

func (s *HTTP) handleList(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"batches": s.batches.List()})
}

func (s *HTTP) handleGet(c *fiber.Ctx) error {
	snap, ok := s.batches.Get(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "batch not found")
	}
	return c.JSON(snap)
}

func (s *HTTP) handleCancel(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, ok := s.batches.Get(id); !ok {
		return fiber.NewError(fiber.StatusNotFound, "batch not found")
	}
	if !s.batches.Cancel(id) {
		return fiber.NewError(fiber.StatusConflict, "batch already finished")
	}
	snap, _ := s.batches.Get(id)
	return c.Status(fiber.StatusAccepted).JSON(snap)
}

func (s *HTTP) handleReport(c *fiber.Ctx) error {
	res, err := s.batches.Result(c.Params("id"))
	if err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return err
	}
	if res.ReportLocation == "" {
		return fiber.NewError(fiber.StatusNotFound, "batch has no report")
	}
	if _, err := os.Stat(res.ReportLocation); err != nil {
		return fiber.NewError(fiber.StatusGone, fmt.Sprintf("report %s is no longer available", filepath.Base(res.ReportLocation)))
	}
	return c.Download(res.ReportLocation, filepath.Base(res.ReportLocation))
}

func (s *HTTP) handleHistory(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "run history is not configured")
	}
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
	}
	runs, err := s.history.ListBatches(c.UserContext(), limit)
	if err != nil {
		s.logger.Error("http.history.failed", "error", err)
		return err
	}
	return c.JSON(fiber.Map{"batches": runs})
}

func (s *HTTP) handleOutcomes(c *fiber.Ctx) error {
	if s.history == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "run history is not configured")
	}
	rows, err := s.history.ListOutcomes(c.UserContext(), c.Params("id"))
	if err != nil {
		s.logger.Error("http.outcomes.failed", "batch_id", c.Params("id"), "error", err)
		return err
	}
	return c.JSON(fiber.Map{"outcomes": rows})
}
