// Package main запускает HTTP-сервер портала прогресса и экологического эффекта.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/impact-portal/internal/config"
	"github.com/mmeshcher/impact-portal/internal/crm"
	"github.com/mmeshcher/impact-portal/internal/engine"
	"github.com/mmeshcher/impact-portal/internal/handler"
	"github.com/mmeshcher/impact-portal/internal/logging"
	"github.com/mmeshcher/impact-portal/internal/middleware"
	"github.com/mmeshcher/impact-portal/internal/repository"
	"github.com/mmeshcher/impact-portal/internal/service"
	"github.com/mmeshcher/impact-portal/internal/worker"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Sugar().Fatalw("configuration error", "error", err.Error())
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Sugar().Fatalw("logger initialization error", "error", err.Error())
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var deliverySource service.DeliverySource
	if cfg.CRMSystemAddress != "" {
		deliverySource = crm.NewClient(cfg.CRMSystemAddress)
	}

	weights := engine.XPWeights{
		OrderPlaced: cfg.XPOrderPlaced,
		DailyLogin:  cfg.XPDailyLogin,
		Share:       cfg.XPShare,
	}

	svc := service.NewService(repo, deliverySource, engine.New(logger), weights, logger)
	defer svc.Close()

	if cfg.AuthSecret == "" {
		sugar.Warnw("AUTH_SECRET is not set, user routes will reject every cookie")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.InternalToken)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	w, err := worker.New(ctx, svc, logger, cfg.DeliverySyncInterval, cfg.AchievementSweepInterval)
	if err != nil {
		sugar.Fatalw("worker initialization error", "error", err.Error())
	}

	// Фоновые задачи: синхронизация доставки и пересчёт достижений
	g.Go(func() error {
		w.Start()
		<-ctx.Done()
		if err := w.Shutdown(); err != nil {
			return fmt.Errorf("worker shutdown error: %w", err)
		}
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting impact portal server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
