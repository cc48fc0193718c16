package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// forecastService is the service name reported by the gRPC health server.
const forecastService = "loadcast.Forecast"

// healthServer serves grpc.health.v1 on a dedicated listener. The overall
// and forecast service statuses follow model availability.
type healthServer struct {
	server *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
}

func newHealthServer(addr string, model Predictor, logger *slog.Logger) (*healthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if model.Available() {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(forecastService, status)

	return &healthServer{server: grpcServer, health: hs, lis: lis, logger: logger}, nil
}

// Serve blocks until Stop.
func (h *healthServer) Serve() error {
	h.logger.Info("grpc health server listening", "address", h.lis.Addr().String())
	return h.server.Serve(h.lis)
}

// Stop marks every service NOT_SERVING and stops gracefully within timeout.
func (h *healthServer) Stop(timeout time.Duration) {
	h.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		h.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.server.Stop()
	}
}
