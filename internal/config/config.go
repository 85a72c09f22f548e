package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration sourced from env vars.
//
// The two signing secrets are independent on purpose: access and refresh
// tokens must never verify against each other's key. Their absence is a fatal
// startup condition.
type Config struct {
	Addr        string
	DatabaseURL string

	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	AutoCreateFirstSite bool

	RateBurst     int
	RatePerSecond int
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Addr:                fallback(os.Getenv("UG_ADDR"), ":8080"),
		DatabaseURL:         strings.TrimSpace(os.Getenv("UG_PG_DSN")),
		AccessSecret:        strings.TrimSpace(os.Getenv("UG_ACCESS_SECRET")),
		RefreshSecret:       strings.TrimSpace(os.Getenv("UG_REFRESH_SECRET")),
		Issuer:              fallback(os.Getenv("UG_ISSUER"), "utilitygrid"),
		AccessTTL:           durationMinutes(os.Getenv("UG_ACCESS_TTL_MINUTES"), 60),
		RefreshTTL:          durationHours(os.Getenv("UG_REFRESH_TTL_HOURS"), 7*24),
		AutoCreateFirstSite: boolEnv(os.Getenv("UG_AUTO_CREATE_FIRST_SITE")),
		RateBurst:           intEnv(os.Getenv("UG_RATE_BURST"), 20),
		RatePerSecond:       intEnv(os.Getenv("UG_RATE_PER_SECOND"), 10),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("UG_PG_DSN is required")
	}
	if cfg.AccessSecret == "" {
		return Config{}, errors.New("UG_ACCESS_SECRET is required")
	}
	if cfg.RefreshSecret == "" {
		return Config{}, errors.New("UG_REFRESH_SECRET is required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return Config{}, errors.New("access and refresh secrets must differ")
	}

	return cfg, nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.Addr, ":") {
		return c.Addr
	}
	return fmt.Sprintf(":%s", c.Addr)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func durationMinutes(raw string, def int) time.Duration {
	return time.Duration(intEnv(raw, def)) * time.Minute
}

func durationHours(raw string, def int) time.Duration {
	return time.Duration(intEnv(raw, def)) * time.Hour
}

func intEnv(raw string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v > 0 {
		return v
	}
	return def
}

func boolEnv(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
