package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/getmoney-core/internal/api/handler"
	"github.com/xela07ax/getmoney-core/internal/api/server"
	"github.com/xela07ax/getmoney-core/internal/audit"
	"github.com/xela07ax/getmoney-core/internal/infra"
	"github.com/xela07ax/getmoney-core/internal/infra/auth"
	"github.com/xela07ax/getmoney-core/internal/notify"
	"github.com/xela07ax/getmoney-core/internal/repository/postgres"
	"github.com/xela07ax/getmoney-core/internal/service"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла: SIGTERM/SIGINT гасят сервис аккуратно
	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Ресурсы: Postgres и Redis
	repo, err := postgres.NewRequestRepo(appCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer repo.Close()

	pingCtx, cancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := repo.Ping(pingCtx); err != nil {
		cancel()
		logger.Fatal("database unreachable", zap.Error(err))
	}
	cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// 3. Метрики
	reg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(reg)

	// 4. Аудит переходов: буферизованная пакетная запись
	trail := audit.NewTrail(repo, logger,
		cfg.Audit.BufferSize, cfg.Audit.BatchSize, cfg.Audit.FlushInterval,
		func(fill int) { metrics.AuditBufferFill.Set(float64(fill)) },
	)
	trail.Start()
	defer trail.Stop() // Drain: остатки буфера доезжают до базы при остановке

	// 5. Уведомления для бот-процесса
	notifier := notify.NewNotifier(rdb, logger, func() { metrics.NotifyFailures.Inc() })

	// 6. Ключи и сервисы (Dependency Injection)
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key load failed", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key load failed", zap.Error(err))
	}

	validator := auth.NewBaseValidator(publicKey)
	authService := service.NewAuthService(repo, privateKey, cfg.Auth.TokenTTL)
	requestService, err := service.NewRequestService(repo, notifier, trail, logger, metrics, cfg.Workflow)
	if err != nil {
		logger.Fatal("request service init failed", zap.Error(err))
	}

	// 7. HTTP-слой
	authHandler := handler.NewAuthHandler(authService)
	requestHandler := handler.NewRequestHandler(requestService)
	api := server.NewAPIServer(cfg, logger, validator, authHandler, requestHandler, reg)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("getmoney API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	<-appCtx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}
