// Package grpc runs the operations gRPC endpoint: the standard health
// service backed by the order store, plus reflection for grpcurl.
package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// OrdersService is the health service name reported for the order store.
const OrdersService = "storefront.orders"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	srv      *grpc.Server
	health   *health.Server
	store    Pinger
	logger   *slog.Logger
	interval time.Duration
}

func NewServer(store Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &Server{
		srv:      srv,
		health:   hs,
		store:    store,
		logger:   logger.With("component", "grpc"),
		interval: 10 * time.Second,
	}
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("ops gRPC server listening", "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

// Check pings the order store once and publishes the result.
func (s *Server) Check(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.store.Ping(pingCtx); err != nil {
		s.logger.Warn("order store unreachable", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(OrdersService, status)
}

// Watch re-checks the order store until ctx is done.
func (s *Server) Watch(ctx context.Context) {
	s.Check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
