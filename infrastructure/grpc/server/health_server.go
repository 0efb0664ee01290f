package server

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ChatService is the name probes ask about. The empty name reports the whole server.
const ChatService = "final-draft.chat"

// HealthServer exposes the standard gRPC health service for orchestrators.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	s := &HealthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		log:    log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.SetServing(false)
	return s
}

func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ChatService, status)
}

// Serve blocks until Stop is called.
func (s *HealthServer) Serve(listener net.Listener) error {
	s.log.Info("Starting gRPC health server", "address", listener.Addr().String())
	if err := s.grpc.Serve(listener); err != nil && !stdErrors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// Stop reports NOT_SERVING to watchers then drains in-flight calls.
func (s *HealthServer) Stop(ctx context.Context) {
	s.health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}
