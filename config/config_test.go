package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orenretail/ledger-engine/ledger"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "TIMEZONE", "CONFIRM_CUTOFF", "LOG_LEVEL", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "ledger.db", cfg.DBPath)
	assert.Equal(t, ledger.DefaultCutoff, cfg.Cutoff)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/shop.db")
	t.Setenv("CONFIRM_CUTOFF", "07:30")
	t.Setenv("CORS_ORIGINS", "https://office.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/shop.db", cfg.DBPath)
	assert.Equal(t, ledger.CutoffTime{Hour: 7, Minute: 30}, cfg.Cutoff)
	assert.Equal(t, []string{"https://office.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PORT", "8080")
	t.Setenv("CONFIRM_CUTOFF", "25:00")
	_, err = Load()
	assert.Error(t, err)
}

func TestParseCutoff(t *testing.T) {
	cutoff, err := parseCutoff("06:00")
	require.NoError(t, err)
	assert.Equal(t, ledger.CutoffTime{Hour: 6}, cutoff)

	for _, bad := range []string{"6", "aa:bb", "12:60", "-1:00"} {
		_, err := parseCutoff(bad)
		assert.Error(t, err, bad)
	}
}
