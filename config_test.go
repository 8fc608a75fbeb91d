package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flighttrack/monitor"
	"flighttrack/storage"
)

// clearEnv blanks every variable LoadConfig reads so the host
// environment and any .env file cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_IDS",
		"AVIATIONSTACK_KEY", "AVIATIONSTACK_URL",
		"PROVIDER_TIMEOUT_SECONDS", "PROVIDER_RATE_PER_MINUTE",
		"DB_PATH", "STORE_UNIQUE", "CLEAR_ON_START", "SEED_DEMO", "RETENTION_DAYS",
		"REFRESH_INTERVAL_SECONDS", "COLLECT_INTERVAL_HOURS", "COLLECT_FLEX_MINUTES",
		"ROUTES", "ROUTES_FILE", "NETWORK_PROBE",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://api.aviationstack.com/v1", cfg.AviationStackURL)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 30, cfg.ProviderRate)
	assert.Equal(t, "flighttrack.db", cfg.DBPath)
	assert.Equal(t, storage.UniqueByID, cfg.Unique)
	assert.True(t, cfg.ClearOnStart)
	assert.True(t, cfg.SeedDemo)
	assert.Zero(t, cfg.Retention)
	assert.Equal(t, time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 8*time.Hour, cfg.CollectInterval)
	assert.Equal(t, 30*time.Minute, cfg.CollectFlex)
	assert.Equal(t, monitor.DefaultRoutes(), cfg.Routes)
	assert.Equal(t, "api.aviationstack.com:443", cfg.NetworkProbe)
	assert.Empty(t, cfg.ChatIDs)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_CHAT_IDS", " 42, -1001,")
	t.Setenv("STORE_UNIQUE", "flight_date")
	t.Setenv("CLEAR_ON_START", "false")
	t.Setenv("RETENTION_DAYS", "30")
	t.Setenv("REFRESH_INTERVAL_SECONDS", "15")
	t.Setenv("ROUTES", "JFK-LAX, ORD-MIA")
	t.Setenv("PROVIDER_RATE_PER_MINUTE", "-3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []int64{42, -1001}, cfg.ChatIDs)
	assert.Equal(t, storage.UniqueByFlightDate, cfg.Unique)
	assert.False(t, cfg.ClearOnStart)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention)
	assert.Equal(t, 15*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 30, cfg.ProviderRate, "negative values fall back to the default")
	assert.Equal(t, []monitor.Route{
		{Departure: "JFK", Arrival: "LAX"},
		{Departure: "ORD", Arrival: "MIA"},
	}, cfg.Routes)
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"bad chat id":    {"TELEGRAM_CHAT_IDS": "12,abc"},
		"bad route":      {"ROUTES": "JFK-JFK"},
		"no routes":      {"ROUTES": " , "},
		"bad policy":     {"STORE_UNIQUE": "sometimes"},
		"flex too large": {"COLLECT_INTERVAL_HOURS": "1", "COLLECT_FLEX_MINUTES": "60"},
		"missing file":   {"ROUTES_FILE": filepath.Join(t.TempDir(), "nope.yaml")},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadRoutesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`routes:
  - departure: ATL
    arrival: DEN
  - departure: DFW
    arrival: SEA
`), 0o644))
	t.Setenv("ROUTES_FILE", path)
	t.Setenv("ROUTES", "JFK-LAX")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []monitor.Route{
		{Departure: "ATL", Arrival: "DEN"},
		{Departure: "DFW", Arrival: "SEA"},
	}, cfg.Routes)
}

func TestLoadRoutesFileInvalidEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`routes:
  - departure: ATL
    arrival: ATL
`), 0o644))

	_, err := loadRoutesFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, monitor.ErrInvalidRoute)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestRequireBot(t *testing.T) {
	cfg := &Config{}
	assert.ErrorContains(t, cfg.RequireBot(), "TELEGRAM_BOT_TOKEN")

	cfg.TelegramToken = "token"
	assert.ErrorContains(t, cfg.RequireBot(), "TELEGRAM_CHAT_IDS")

	cfg.ChatIDs = []int64{1}
	assert.ErrorContains(t, cfg.RequireBot(), "AVIATIONSTACK_KEY")

	cfg.AviationStackKey = "key"
	assert.NoError(t, cfg.RequireBot())
}

func TestAllowed(t *testing.T) {
	cfg := &Config{ChatIDs: []int64{7, -100}}
	assert.True(t, cfg.Allowed(7))
	assert.True(t, cfg.Allowed(-100))
	assert.False(t, cfg.Allowed(8))
}
