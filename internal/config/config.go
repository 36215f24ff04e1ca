// Package config содержит логику чтения конфигурации портала.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации портала.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	CRMSystemAddress string `env:"CRM_SYSTEM_ADDRESS"`

	AuthSecret    string `env:"AUTH_SECRET"`
	InternalToken string `env:"INTERNAL_TOKEN"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	DeliverySyncInterval     time.Duration `env:"DELIVERY_SYNC_INTERVAL" envDefault:"30s"`
	AchievementSweepInterval time.Duration `env:"ACHIEVEMENT_SWEEP_INTERVAL" envDefault:"24h"`

	XPOrderPlaced int64 `env:"XP_ORDER_PLACED" envDefault:"250"`
	XPDailyLogin  int64 `env:"XP_DAILY_LOGIN" envDefault:"10"`
	XPShare       int64 `env:"XP_SHARE" envDefault:"50"`
}

// FromEnv считывает конфигурацию только из окружения и файла .env, без флагов командной строки.
func FromEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse считывает конфигурацию из переменных окружения и флагов командной строки.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envCRMAddress := cfg.CRMSystemAddress

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.CRMSystemAddress, "r", "", "CRM delivery system address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envCRMAddress != "" {
		cfg.CRMSystemAddress = envCRMAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.XPOrderPlaced < 0 || c.XPDailyLogin < 0 || c.XPShare < 0 {
		return errors.New("xp weights must be non-negative")
	}
	if c.DeliverySyncInterval <= 0 || c.AchievementSweepInterval <= 0 {
		return errors.New("worker intervals must be positive")
	}
	return nil
}
