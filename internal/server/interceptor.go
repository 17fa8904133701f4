package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/docscan/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const requestIDHeader = "x-request-id"

// UnaryInterceptor tags each call with a request id, taken from the
// x-request-id header when present, and logs its outcome.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(requestIDHeader); len(v) > 0 && v[0] != "" {
				ctx = common.WithRequestID(ctx, v[0])
			}
		}
		ctx, reqID := common.EnsureRequestID(ctx)

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		attrs := []any{
			"method", info.FullMethod,
			"request_id", reqID,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			logger.Warn("grpc.request", append(attrs, "error", err)...)
		} else {
			logger.Info("grpc.request", attrs...)
		}
		return resp, err
	}
}
