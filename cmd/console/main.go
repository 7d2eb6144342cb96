package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-console/internal/console/handler"
	"github.com/xela07ax/spaceai-console/internal/console/server"
	"github.com/xela07ax/spaceai-console/internal/console/service"
	"github.com/xela07ax/spaceai-console/internal/infra"
	"github.com/xela07ax/spaceai-console/internal/infra/auth"
	"github.com/xela07ax/spaceai-console/internal/journal"
	"github.com/xela07ax/spaceai-console/internal/presence"
	"github.com/xela07ax/spaceai-console/internal/remote"
	"github.com/xela07ax/spaceai-console/internal/repository/postgres"
	"github.com/xela07ax/spaceai-console/internal/session"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger, cfg.Presence.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("console stopped with error", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст жизни фоновых горутин: SIGTERM -> cancel
	appCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Инфраструктура
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(appCtx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}

	if cfg.Database.URL == "" {
		return errors.New("database.url (DATABASE_URL) is required")
	}
	pool, err := postgres.NewPool(pingCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		return err
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return err
	}

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	presenceMetrics := presence.NewMetrics(reg)

	// 3. Журнал объяснений: Redis (последнее) + Postgres/Kafka (архив)
	latest := journal.NewRedisStore(rdb)
	justifications := postgres.NewJustificationRepo(pool)
	archive := journal.Fanout{justifications}
	if len(cfg.Kafka.Brokers) > 0 {
		writer := journal.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer closeKafka(writer, logger)
		archive = append(archive, journal.NewKafkaStorage(writer))
	}
	jrnl := journal.New(archive, journal.Options{
		BufferSize:    cfg.Journal.BufferSize,
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
	}, logger)
	jrnl.Start()
	defer jrnl.Stop()

	// 4. Сессии, флаг проверки, трекеры
	sessions := session.NewStore(rdb)
	verification := session.NewVerification(rdb, logger)
	if err := verification.Sync(appCtx); err != nil {
		logger.Warn("verification flag sync failed", zap.Error(err))
	}
	go verification.Listen(appCtx)

	registry := session.NewRegistry(appCtx, cfg.Presence, session.RegistryDeps{
		Sink:         &journal.Sink{Latest: latest, Archive: jrnl},
		Revoker:      sessions,
		Verification: verification,
		Metrics:      presenceMetrics,
	}, logger)
	defer registry.Close()
	go registry.ListenRevocations(appCtx, rdb)

	// 5. Обработчики
	authSvc := service.NewAuthService(postgres.NewUserRepo(pool), sessions, privateKey, cfg.Auth.TokenTTL)
	handlers := server.Handlers{
		Auth:          handler.NewAuthHandler(authSvc, registry),
		Presence:      handler.NewPresenceHandler(registry, logger),
		Justification: handler.NewJustificationHandler(latest, justifications, logger),
		Verification:  handler.NewVerificationHandler(verification, logger),
	}
	if cfg.Remote.BaseURL != "" {
		client, err := remote.New(cfg.Remote, remote.NewMetrics(reg), logger)
		if err != nil {
			return err
		}
		handlers.Proxy = handler.NewProxyHandler(client, registry, logger)
	} else {
		logger.Warn("remote.base_url is empty: /api proxy disabled, network activity is not tracked")
	}

	console := server.NewConsoleServer(logger, auth.NewBaseValidator(publicKey), sessions, reg, handlers)

	// 6. gRPC health
	grpcSrv, health := server.NewGRPCServer(logger)
	go server.WatchHealth(appCtx, health, rdb, 10*time.Second, logger)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen gRPC: %w", err)
	}
	go func() {
		logger.Info("gRPC health started", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC serve failed", zap.Error(err))
		}
	}()

	// 7. HTTP
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      console,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("console API started",
			zap.String("addr", srv.Addr),
			zap.Duration("inactivity_threshold", cfg.Presence.InactivityThreshold))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 8. Graceful Shutdown
	select {
	case <-appCtx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("console stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	// Дальше отрабатывают defer: трекеры, журнал (final flush), Kafka, пул, Redis
	logger.Info("console exited properly")
	return nil
}

func closeKafka(w *kafka.Writer, logger *zap.Logger) {
	if err := w.Close(); err != nil {
		logger.Warn("kafka writer close failed", zap.Error(err))
	}
}
