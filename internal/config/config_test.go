package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EngineClickHouse, cfg.Engine)
	assert.Equal(t, "localhost:9440", cfg.ClickHouse.Addr())
	assert.Equal(t, "db1", cfg.ClickHouse.Database)
	assert.True(t, cfg.ClickHouse.Secure)
	assert.Equal(t, 7, cfg.Query.MinWindowDays)
	assert.Equal(t, 365, cfg.Query.MaxWindowDays)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Query.MinDate)
	assert.Equal(t, 60*time.Second, cfg.Query.Timeout)
	assert.Equal(t, []string{"/health", "/metrics"}, cfg.Auth.SkipPaths)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ATTRIBUTION_ENGINE", "Memory")
	t.Setenv("ATTRIBUTION_QUERY_TIMEOUT", "5s")
	t.Setenv("ATTRIBUTION_MIN_WINDOW_DAYS", "14")
	t.Setenv("ATTRIBUTION_MIN_DATE", "2024-06-01")
	t.Setenv("ATTRIBUTION_FIXTURES_PATH", "testdata/events.yaml")
	t.Setenv("ATTRIBUTION_AUTH_SKIP_PATHS", "/health, /options ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EngineMemory, cfg.Engine)
	assert.Equal(t, 5*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 14, cfg.Query.MinWindowDays)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), cfg.Query.MinDate)
	assert.Equal(t, []string{"/health", "/options"}, cfg.Auth.SkipPaths)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown engine", map[string]string{"ATTRIBUTION_ENGINE": "bigquery"}},
		{"bad min date", map[string]string{"ATTRIBUTION_MIN_DATE": "01/01/2025"}},
		{"zero window", map[string]string{"ATTRIBUTION_MIN_WINDOW_DAYS": "0"}},
		{"max below min", map[string]string{"ATTRIBUTION_MAX_WINDOW_DAYS": "3"}},
		{"max window overflows", map[string]string{"ATTRIBUTION_MAX_WINDOW_DAYS": "100000"}},
		{"auth without key", map[string]string{"ATTRIBUTION_AUTH_ENABLED": "true"}},
		{"fixtures outside memory", map[string]string{"ATTRIBUTION_FIXTURES_PATH": "x.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, DBName: "events", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/events?sslmode=disable", d.DSN())
}
