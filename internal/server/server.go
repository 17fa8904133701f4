package server

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer registers DocumentService, the health service and reflection.
// The returned health server starts out SERVING for both the overall server
// and DocumentService.
func NewGRPCServer(svc DocumentServiceServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryInterceptor(logger))}, opts...)
	s := grpc.NewServer(opts...)
	RegisterDocumentServiceServer(s, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(s)
	return s, hs
}
