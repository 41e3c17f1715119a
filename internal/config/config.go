// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv string
	Port   string

	// Destination of the sound-control UDP stream.
	OscHost string
	OscPort int

	// Event admission.
	CanvasCooldown  time.Duration
	TriggerCooldown time.Duration

	// Inactivity eviction.
	ReaperInterval    time.Duration
	InactivityTimeout time.Duration

	// Connection admission.
	MaxConnections      int64
	MaxConnectionsPerIP int
	ConnectRatePerSec   float64
	ConnectBurst        int

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8000"),
		OscHost:   getEnv("OSC_HOST", "127.0.0.1"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.OscPort, err = getEnvInt("OSC_PORT", 57120); err != nil {
		return nil, err
	}
	if cfg.CanvasCooldown, err = getEnvDuration("CANVAS_COOLDOWN", 80*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.TriggerCooldown, err = getEnvDuration("TRIGGER_COOLDOWN", 80*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.ReaperInterval, err = getEnvDuration("REAPER_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.InactivityTimeout, err = getEnvDuration("INACTIVITY_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}

	maxConns, err := getEnvInt("MAX_CONNECTIONS", 500)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnections = int64(maxConns)
	if cfg.MaxConnectionsPerIP, err = getEnvInt("MAX_CONNECTIONS_PER_IP", 20); err != nil {
		return nil, err
	}
	if cfg.ConnectBurst, err = getEnvInt("CONNECT_BURST", 10); err != nil {
		return nil, err
	}
	ratePerSec, err := getEnvInt("CONNECT_RATE_PER_SEC", 10)
	if err != nil {
		return nil, err
	}
	cfg.ConnectRatePerSec = float64(ratePerSec)

	if cfg.OscPort < 1 || cfg.OscPort > 65535 {
		return nil, fmt.Errorf("OSC_PORT must be a valid port, got %d", cfg.OscPort)
	}
	if cfg.CanvasCooldown <= 0 || cfg.TriggerCooldown <= 0 {
		return nil, fmt.Errorf("cooldowns must be positive")
	}
	if cfg.ReaperInterval <= 0 {
		return nil, fmt.Errorf("REAPER_INTERVAL must be positive")
	}
	if cfg.InactivityTimeout <= cfg.ReaperInterval {
		return nil, fmt.Errorf("INACTIVITY_TIMEOUT (%v) must exceed REAPER_INTERVAL (%v)", cfg.InactivityTimeout, cfg.ReaperInterval)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 80ms or 2m: %w", key, err)
	}
	return parsed, nil
}
