// Package grpc exposes the standard gRPC health service for the chat backend.
package grpc

import (
	"context"
	"errors"
	"net"

	"research-chat/backend/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall "" service
const ServiceName = "chatlog.ConversationLogger"

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        *logger.Logger
}

// NewServer starts in NOT_SERVING until the first SetHealthy call
func NewServer(log *logger.Logger) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		log:        log.WithComponent("grpc"),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.SetHealthy(false)
	return s
}

// SetHealthy mirrors the health checker's overall result
func (s *Server) SetHealthy(healthy bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve accepts connections on lis until ctx is done
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.log.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// ListenAndServe listens on :port and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}
