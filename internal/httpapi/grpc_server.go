package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"promosuite.app/internal/obs"
)

// HealthServer publishes readiness over the standard gRPC health protocol, both for the
// empty service name and for serviceName.
type HealthServer struct {
	*health.Server
	readiness readinessChecker
}

func NewHealthServer(r readinessChecker) *HealthServer {
	return &HealthServer{Server: health.NewServer(), readiness: r}
}

// Refresh runs the readiness probe once and updates the serving status.
func (s *HealthServer) Refresh(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_SERVING
	ok := true
	if err := s.readiness.Check(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		ok = false
		obs.Logger().Warn("readiness check failed", zap.Error(err))
	}
	obs.SetReady(ok)
	s.SetServingStatus("", status)
	s.SetServingStatus(serviceName, status)
	return ok
}

// Run refreshes every interval until ctx is done, then marks everything NOT_SERVING.
func (s *HealthServer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.Refresh(ctx)
		select {
		case <-ctx.Done():
			s.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

// NewGRPCServer returns a server with the health service registered.
func NewGRPCServer(hs *HealthServer, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}
