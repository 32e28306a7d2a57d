/*
Package config loads server configuration from the environment.

PURPOSE:
  One place for every tunable: port, database path, business timezone,
  confirmation cutoff, log level, CORS origins. A .env file is loaded
  first when present (development convenience); real environment
  variables win.

VARIABLES:
  PORT            HTTP port                      (default 8080)
  DB_PATH         SQLite path, ":memory:" ok     (default ledger.db)
  TIMEZONE        IANA business timezone         (default Local)
  CONFIRM_CUTOFF  HH:MM confirmation cutoff      (default 06:00)
  LOG_LEVEL       logrus level                   (default info)
  CORS_ORIGINS    comma-separated origins        (default http://localhost:5173)
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/orenretail/ledger-engine/ledger"
)

// Config is the resolved server configuration.
type Config struct {
	Port        int
	DBPath      string
	Location    *time.Location
	Cutoff      ledger.CutoffTime
	LogLevel    string
	CORSOrigins []string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// Missing .env is fine; the environment is authoritative anyway.
	_ = godotenv.Load()

	cfg := &Config{
		Port:        8080,
		DBPath:      "ledger.db",
		Location:    time.Local,
		Cutoff:      ledger.DefaultCutoff,
		LogLevel:    "info",
		CORSOrigins: []string{"http://localhost:5173"},
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", raw, err)
		}
		cfg.Port = port
	}
	if raw := os.Getenv("DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("TIMEZONE"); raw != "" {
		loc, err := time.LoadLocation(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", raw, err)
		}
		cfg.Location = loc
	}
	if raw := os.Getenv("CONFIRM_CUTOFF"); raw != "" {
		cutoff, err := parseCutoff(raw)
		if err != nil {
			return nil, err
		}
		cfg.Cutoff = cutoff
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		cfg.CORSOrigins = splitOrigins(raw)
	}

	return cfg, nil
}

func parseCutoff(raw string) (ledger.CutoffTime, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return ledger.CutoffTime{}, fmt.Errorf("invalid CONFIRM_CUTOFF %q: want HH:MM", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return ledger.CutoffTime{}, fmt.Errorf("invalid CONFIRM_CUTOFF hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return ledger.CutoffTime{}, fmt.Errorf("invalid CONFIRM_CUTOFF minute %q", parts[1])
	}
	return ledger.CutoffTime{Hour: hour, Minute: minute}, nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
