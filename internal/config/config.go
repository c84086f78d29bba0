// Package config содержит логику чтения конфигурации сервиса химчистки.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса химчистки.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	NotifyAddress    string `env:"NOTIFY_ADDRESS"`
	PriceListPath    string `env:"PRICE_LIST_PATH"`
	OperatorLogin    string `env:"OPERATOR_LOGIN"`
	OperatorPassword string `env:"OPERATOR_PASSWORD"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envNotifyAddress := cfg.NotifyAddress
	envPriceListPath := cfg.PriceListPath

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.NotifyAddress, "r", "", "notification gateway address")
	flag.StringVar(&cfg.PriceListPath, "p", "", "path to price list JSON file")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envNotifyAddress != "" {
		cfg.NotifyAddress = envNotifyAddress
	}
	if envPriceListPath != "" {
		cfg.PriceListPath = envPriceListPath
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.OperatorLogin == "" {
		cfg.OperatorLogin = "admin"
	}
	if cfg.OperatorPassword == "" {
		cfg.OperatorPassword = "admin1234"
	}

	return cfg, nil
}
