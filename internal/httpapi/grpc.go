package httpapi

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"pontual.org/internal/obs"
)

const grpcServiceName = "pontual-api"

// GRPCServer exposes the standard gRPC health service so orchestrators
// can probe readiness without going through HTTP.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	probe  ReadyProbe
}

func NewGRPCServer(probe ReadyProbe) *GRPCServer {
	s := &GRPCServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		probe:  probe,
	}
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	return s
}

// Serve listens on addr and keeps the health status in sync with the
// readiness probe until ctx is canceled.
func (s *GRPCServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		s.refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				s.server.GracefulStop()
				return
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()

	return s.server.Serve(lis)
}

func (s *GRPCServer) refresh(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.probe.Check(checkCtx); err != nil {
		obs.SetReady(false)
		s.health.SetServingStatus(grpcServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		return
	}
	obs.SetReady(true)
	s.health.SetServingStatus(grpcServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
}
