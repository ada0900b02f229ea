package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	DatabaseURL   string
	HoldTTL       time.Duration
	SweepInterval time.Duration
	SweepLimit    int
	Migrate       bool
}

const (
	defaultHoldTTL       = 30 * time.Minute
	defaultSweepInterval = 5 * time.Minute
	defaultSweepLimit    = 500
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CROSSDOCK_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost:5432/crossdock?sslmode=disable"
	}

	return Server{
		Addr:          addr,
		DatabaseURL:   dbURL,
		HoldTTL:       durationEnv("CROSSDOCK_HOLD_TTL", defaultHoldTTL),
		SweepInterval: durationEnv("CROSSDOCK_SWEEP_INTERVAL", defaultSweepInterval),
		SweepLimit:    intEnv("CROSSDOCK_SWEEP_LIMIT", defaultSweepLimit),
		Migrate:       os.Getenv("CROSSDOCK_MIGRATE") != "false",
	}
}

func intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
