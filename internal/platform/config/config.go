package config

import (
	"errors"
	"os"
	"strings"
)

type HTTPConfig struct {
	Addr string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	Environment string
	HTTP        HTTPConfig
}

// IsProd reports whether ENVIRONMENT names a production deployment.
func (c AppConfig) IsProd() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Load reads the process-wide settings every service shares. defaultService
// is used when SERVICE_NAME is unset; an empty default makes it required.
func Load(defaultService string) (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: strings.TrimSpace(os.Getenv("SERVICE_NAME")),
		LogLevel:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		Environment: strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT"))),
		HTTP: HTTPConfig{
			Addr: strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		},
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = strings.TrimSpace(defaultService)
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	return cfg, nil
}
