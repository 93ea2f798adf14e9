package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qrave1/RandomTalk/internal/application/config"
	"github.com/qrave1/RandomTalk/internal/application/constant"
	"github.com/qrave1/RandomTalk/internal/application/metric"
	"github.com/qrave1/RandomTalk/internal/domain/matching"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/file"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/memory"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/postgres"
	"github.com/qrave1/RandomTalk/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/RandomTalk/internal/infra/ports/http/handlers"
	"github.com/qrave1/RandomTalk/internal/infra/ports/http/server"
	"github.com/qrave1/RandomTalk/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	reputationRepo := repository.NewReputationRepo(dbConn)
	reportRepo := repository.NewReportRepo(dbConn)
	historyRepo := repository.NewMatchHistoryRepo(dbConn)

	var weights matching.WeightsProvider = matching.StaticWeights(matching.DefaultWeights())

	if cfg.Matching.WeightsFile != "" {
		watcher, err := file.NewWeightsWatcher(cfg.Matching.WeightsFile)
		if err != nil {
			slog.Error("load matching weights", slog.Any(constant.Error, err))
			os.Exit(1)
		}
		defer watcher.Close()

		weights = watcher
	}

	clock := memory.RealClock{}

	sessionRepo := memory.NewSessionRepository(cfg.Session, clock)
	queueRepo := memory.NewQueueRepository(cfg.Queue.MaxSize, cfg.Queue.IdlePoolTTL, clock)
	wsConnRepo := memory.NewWSConnectionRepository(cfg.WebSocket.WriteTimeout)
	recentRepo := memory.NewRecentPartnerRepository(cfg.Matching.RecentPartnerWindow, cfg.Matching.RecentPartnerMax, clock)
	rateLimitRepo := memory.NewRateLimitRepository(clock)

	authUsecase := usecase.NewAuthUsecase(cfg.JWTSecret, cfg.JWTTTL)
	rateLimitUsecase := usecase.NewRateLimitUsecase(cfg.RateLimit, rateLimitRepo)
	matchmakingUsecase := usecase.NewMatchmakingUsecase(
		cfg.Queue,
		cfg.Matching,
		clock,
		queueRepo,
		sessionRepo,
		wsConnRepo,
		recentRepo,
		weights,
		reputationRepo,
		historyRepo,
	)
	signalingUsecase := usecase.NewSignalingUsecase(
		cfg.Queue,
		cfg.Matching,
		clock,
		sessionRepo,
		queueRepo,
		wsConnRepo,
		historyRepo,
		reportRepo,
		reputationRepo,
	)

	sessionRepo.OnExpire(signalingUsecase.HandleExpired)

	authHandler := handlers.NewAuthHandler(cfg, authUsecase)
	iceHandler := handlers.NewIceHandler(cfg)
	queueHandler := handlers.NewQueueHandler(matchmakingUsecase)
	wsHandler := handlers.NewWebSocketHandler(cfg, matchmakingUsecase, signalingUsecase, rateLimitUsecase, wsConnRepo)

	echoSrv := server.New(authUsecase, authHandler, iceHandler, queueHandler, wsHandler)

	metricsSrv := metric.NewServer(dbConn)

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	// Запускаем HTTP сервер
	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	// Запускаем сервер метрик
	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	slog.Info("server started", slog.String("port", cfg.Port), slog.String("metric_port", cfg.MetricPort))

	// Ожидаем сигнал завершения или ошибку сервера
	select {
	case <-ctx.Done():
		slog.Info("Shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"HTTP server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"Metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	// Graceful shutdown
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown HTTP server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("Failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}

	// Акторы останавливаются после серверов: обработчики отключений еще могут к ним обращаться
	queueRepo.Close()
	sessionRepo.Close()
}
