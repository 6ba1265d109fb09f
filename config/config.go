package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every external setting the process needs. It is loaded once
// in main and injected; nothing else reads the environment directly.
type Config struct {
	Port                string
	DatabaseURL         string
	RedisAddr           string
	StripeSecretKey     string
	StripeWebhookSecret string
	PortalReturnURL     string
	JWTSecret           string

	// FallbackPremiumWindow is the expiry granted when the provider does not
	// report a subscription period end.
	FallbackPremiumWindow time.Duration

	// ResolveStepTimeout bounds each step of the reconciliation chain.
	ResolveStepTimeout time.Duration
}

func Load() (*Config, error) {
	// A missing .env file is fine in production; variables come from the
	// system environment there.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", "8080"),
		DatabaseURL:           os.Getenv("DB_URL"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		StripeSecretKey:       os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		PortalReturnURL:       getEnv("PORTAL_RETURN_URL", "https://app.copywritely.ai/account"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		FallbackPremiumWindow: 24 * time.Hour * time.Duration(getEnvInt("FALLBACK_PREMIUM_DAYS", 30)),
		ResolveStepTimeout:    time.Duration(getEnvInt("RESOLVE_STEP_TIMEOUT_MS", 4000)) * time.Millisecond,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DB_URL is not set")
	}
	if cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is not set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
