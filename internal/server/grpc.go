package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the overall status.
const ServiceName = "cvpipeline.v1.Pipeline"

// NewGRPC builds a gRPC server carrying the health service and reflection.
func NewGRPC(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	gs := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	// Reflection for grpcurl
	reflection.Register(gs)
	return gs, hs
}

// WatchHealth probes check every interval and mirrors the result into hs
// until ctx ends, then reports NOT_SERVING.
func WatchHealth(ctx context.Context, hs *health.Server, check HealthFunc, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	probe := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if check != nil {
			pctx, cancel := context.WithTimeout(ctx, interval)
			err := check(pctx)
			cancel()
			if err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				logger.Warn("grpc.health.not_serving", "error", err)
			}
		}
		if status != last {
			logger.Info("grpc.health.status", "status", status.String())
			last = status
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)
	}

	probe()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			probe()
		}
	}
}
