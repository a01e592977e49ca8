package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"interview-copilot-service/internal/observability/metrics"
)

const grpcConnection = "grpc"

// Health and reflection traffic is polled by orchestrators and tooling.
func probeMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.v1.") ||
		strings.HasPrefix(fullMethod, "/grpc.reflection.")
}

// UnaryServerInterceptor returns a gRPC unary interceptor that counts calls
// and logs them. Probe calls are logged at trace level.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		st, _ := status.FromError(err)
		m.RecordGRPCCall(info.FullMethod, st.Code().String())

		level := zerolog.InfoLevel
		switch {
		case err != nil:
			level = zerolog.WarnLevel
		case probeMethod(info.FullMethod):
			level = zerolog.TraceLevel
		}
		log.WithLevel(level).
			Str("method", info.FullMethod).
			Str("code", st.Code().String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC unary call")

		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor that tracks open
// streams (health watchers, reflection) as connections.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		m.RecordConnectionStart(grpcConnection)

		err := handler(srv, ss)

		duration := time.Since(start)
		success := err == nil
		m.RecordConnectionEnd(grpcConnection, success, duration.Seconds())

		st, _ := status.FromError(err)
		log.Info().
			Str("method", info.FullMethod).
			Str("code", st.Code().String()).
			Dur("duration", duration).
			Bool("success", success).
			Msg("gRPC stream completed")

		return err
	}
}
