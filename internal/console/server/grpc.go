package server

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName: имя сервиса в gRPC health.
const ServiceName = "spaceai.console.presence"

// NewGRPCServer: gRPC сервер с health-сервисом и логирующим интерсептором.
func NewGRPCServer(logger *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLoggingInterceptor(logger.Named("grpc"))))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// UnaryLoggingInterceptor пишет метод, код и длительность каждого вызова.
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("took", time.Since(start)))
		return resp, err
	}
}

// Pinger: зависимость, без которой консоль не обслуживает запросы (Redis).
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// WatchHealth периодически проверяет Redis и переключает статус health-сервиса.
func WatchHealth(ctx context.Context, hs *health.Server, p Pinger, every time.Duration, logger *zap.Logger) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, every)
		defer cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err := p.Ping(pingCtx).Err(); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("redis unreachable", zap.Error(err))
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(ServiceName, st)
	}

	check()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
