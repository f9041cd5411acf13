package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/cv-pipeline/internal/app"
	"github.com/joseph-ayodele/cv-pipeline/internal/async"
	"github.com/joseph-ayodele/cv-pipeline/internal/common"
	"github.com/joseph-ayodele/cv-pipeline/internal/pipeline"
	"github.com/joseph-ayodele/cv-pipeline/internal/server"
)

func main() {
	configPath := flag.String("config", "", "TOML config file (default $CV_PIPELINE_CONFIG)")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	logger := app.NewLogger(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// Ping store to ensure connectivity
	if err := a.Health(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	orch := a.Orchestrator(pipeline.WithSink(pipeline.LogSink{Logger: logger}))
	runner := async.NewRunner(orch, logger, async.WithQueueSize(16))

	httpSrv := server.NewHTTP(runner, pipeline.JobConfigFrom(cfg.Pipeline), logger,
		server.WithHealth(a.Health),
		server.WithHistory(historyOrNil(a)),
	)

	// gRPC health + reflection
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer, healthServer := server.NewGRPC()
	go server.WatchHealth(ctx, healthServer, a.Health, 15*time.Second, logger)

	logger.Info("cvpipelined listening", "http_addr", cfg.Server.HTTPAddr, "grpc_addr", cfg.Server.GRPCAddr)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()
	go func() {
		if err := httpSrv.Listen(cfg.Server.HTTPAddr); err != nil {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	runner.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	logger.Info("stopped")
}

// historyOrNil keeps a nil *BatchRepository from becoming a non-nil interface.
func historyOrNil(a *app.App) server.History {
	if a.History == nil {
		return nil
	}
	return a.History
}
