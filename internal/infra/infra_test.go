package infra

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/inkforge_test")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 1 {
		t.Fatalf("pool sizing = {%d %d}, want defaults {10 1}", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.PollInterval.Seconds() != 5 || cfg.BatchSize != 10 {
		t.Fatalf("dispatcher config = {%s %d}", cfg.PollInterval, cfg.BatchSize)
	}
	if cfg.CostConcept != 10 || cfg.CostAngles != 30 || cfg.CostReconstruct != 40 {
		t.Fatalf("costs = {%d %d %d}", cfg.CostConcept, cfg.CostAngles, cfg.CostReconstruct)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/inkforge_test")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_MIN_CONNS", "2")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("POLL_INTERVAL_SECONDS", "1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DBMaxConns != 4 || cfg.DBMinConns != 2 {
		t.Fatalf("pool sizing = {%d %d}, want {4 2}", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.PollInterval.Seconds() != 1 {
		t.Fatalf("poll interval = %s", cfg.PollInterval)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig must fail without DATABASE_URL")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		appEnv   string
		logLevel string
		want     zerolog.Level
	}{
		{"development", "", zerolog.DebugLevel},
		{"production", "", zerolog.InfoLevel},
		{"production", "warn", zerolog.WarnLevel},
		{"development", "error", zerolog.ErrorLevel},
		{"production", "bogus", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		logger := NewLogger(tc.appEnv, tc.logLevel)
		if logger.GetLevel() != tc.want {
			t.Fatalf("NewLogger(%q, %q) level = %s, want %s", tc.appEnv, tc.logLevel, logger.GetLevel(), tc.want)
		}
	}
}
