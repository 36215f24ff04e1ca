// Package cli реализует административную утилиту impactctl на Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmeshcher/impact-portal/internal/config"
	"github.com/mmeshcher/impact-portal/internal/crm"
	"github.com/mmeshcher/impact-portal/internal/engine"
	"github.com/mmeshcher/impact-portal/internal/logging"
	"github.com/mmeshcher/impact-portal/internal/repository"
	"github.com/mmeshcher/impact-portal/internal/service"
)

var rootCmd = &cobra.Command{
	Use:   "impactctl",
	Short: "Administration tool for the impact portal",
	Long: `impactctl applies database migrations, seeds the achievement and equivalency
catalog and re-runs progression jobs by hand. Configuration is read from the
environment and an optional .env file, the same way the server reads it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute запускает корневую команду. Вызывается из main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env: ресурсы, которые команды открывают по конфигурации.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	repo   *repository.PostgresRepository
	svc    *service.Service
}

func (e *env) Close() {
	_ = e.repo.Close()
	_ = e.logger.Sync()
}

// openEnv читает конфигурацию, подключается к БД (миграции применяются при подключении) и собирает сервис.
func openEnv() (*env, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("DATABASE_URI is not set")
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}

	var source service.DeliverySource
	if cfg.CRMSystemAddress != "" {
		source = crm.NewClient(cfg.CRMSystemAddress)
	}

	weights := engine.XPWeights{
		OrderPlaced: cfg.XPOrderPlaced,
		DailyLogin:  cfg.XPDailyLogin,
		Share:       cfg.XPShare,
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		repo:   repo,
		svc:    service.NewService(repo, source, engine.New(logger), weights, logger),
	}, nil
}
