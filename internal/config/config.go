// Package config содержит логику чтения конфигурации сервиса заказов и кухонного экрана.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/mmeshcher/comanda/internal/urgency"
)

// Config содержит параметры конфигурации сервера заказов.
type Config struct {
	RunAddress       string        `env:"RUN_ADDRESS"`
	DatabaseURI      string        `env:"DATABASE_URI"`
	RabbitMQURL      string        `env:"RABBITMQ_URL"`
	AuthSecret       string        `env:"AUTH_SECRET"`
	WarningMinutes   int           `env:"WARNING_MINUTES"`
	UrgentMinutes    int           `env:"URGENT_MINUTES"`
	CriticalMinutes  int           `env:"CRITICAL_MINUTES"`
	SLACheckInterval time.Duration `env:"SLA_CHECK_INTERVAL"`
	PaymentMethods   []string      `env:"PAYMENT_METHODS" envSeparator:","`
}

// Thresholds возвращает границы уровней срочности.
func (c *Config) Thresholds() urgency.Thresholds {
	return urgency.Thresholds{
		Warning:  c.WarningMinutes,
		Urgent:   c.UrgentMinutes,
		Critical: c.CriticalMinutes,
	}
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}
	defaults := urgency.DefaultThresholds()

	var methods string
	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI; in-memory storage when empty")
	flag.StringVar(&cfg.RabbitMQURL, "q", "", "RabbitMQ URL for event notifications")
	flag.StringVar(&cfg.AuthSecret, "k", "", "secret for terminal tokens")
	flag.IntVar(&cfg.WarningMinutes, "w", defaults.Warning, "minute an order becomes warning")
	flag.IntVar(&cfg.UrgentMinutes, "u", defaults.Urgent, "minute an order becomes urgent")
	flag.IntVar(&cfg.CriticalMinutes, "c", defaults.Critical, "last urgent minute; later orders are critical")
	flag.DurationVar(&cfg.SLACheckInterval, "i", 5*time.Second, "kitchen SLA check interval")
	flag.StringVar(&methods, "p", "cash,card,transfer", "accepted payment methods, comma separated")

	flag.Parse()

	cfg.PaymentMethods = splitList(methods)

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	cfg.PaymentMethods = splitList(strings.Join(cfg.PaymentMethods, ","))
	if len(cfg.PaymentMethods) == 0 {
		return nil, fmt.Errorf("at least one payment method is required")
	}
	if err := cfg.Thresholds().Validate(); err != nil {
		return nil, fmt.Errorf("urgency %w", err)
	}

	return cfg, nil
}

// DisplayConfig содержит параметры кухонного экрана.
type DisplayConfig struct {
	ServerAddress string        `env:"SERVER_ADDRESS"`
	PollInterval  time.Duration `env:"POLL_INTERVAL"`
	AuthToken     string        `env:"AUTH_TOKEN"`
}

// ParseDisplay считывает конфигурацию кухонного экрана. Переменные окружения
// имеют приоритет над флагами.
func ParseDisplay() (*DisplayConfig, error) {
	cfg := &DisplayConfig{}

	flag.StringVar(&cfg.ServerAddress, "s", "localhost:8080", "order server address")
	flag.DurationVar(&cfg.PollInterval, "i", 2*time.Second, "board poll interval")
	flag.StringVar(&cfg.AuthToken, "t", "", "terminal token issued by POST /api/session")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("auth token is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var res []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
