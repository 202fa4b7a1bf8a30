package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "clickhouse", c.Backend.Type)
	assert.Equal(t, 72, c.Forecast.LookbackHours)
	assert.Equal(t, 50000, c.Forecast.HistoryLimit)
	assert.Equal(t, "America/Toronto", c.Forecast.Zone)
	assert.Equal(t, "models", c.Bundles.Dir)
	assert.Equal(t, 30*time.Second, c.Log.FlushInterval)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, c.Server.CORSOrigins)
	assert.True(t, c.Server.RateLimit.Enabled)
	assert.Equal(t, "enviropulse.sensor_readings", c.ReadingsTable())
}

func TestLoad_ExplicitValuesWin(t *testing.T) {
	c, err := Load(writeConfig(t, `
environment: prod
server:
  port: 9090
  rate_limit:
    enabled: false
forecast:
  lookback_hours: 24
  cache_ttl: 5s
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Server.Port)
	assert.False(t, c.Server.RateLimit.Enabled)
	assert.Equal(t, 24, c.Forecast.LookbackHours)
	assert.Equal(t, 5*time.Second, c.Forecast.CacheTTL)
	assert.Equal(t, 30*time.Second, c.Server.WriteTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"backend":       "environment: x\nbackend:\n  type: s3\n",
		"kafka brokers": "environment: x\nbackend:\n  type: kafka\n",
		"bundles":       "environment: x\nbundles:\n  backend: ftp\n",
		"object store":  "environment: x\nbundles:\n  backend: object\n",
		"dashboard":     "environment: x\ndashboard:\n  window_hours: 6\n",
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("MODELS_DIR", "/srv/models")
	t.Setenv("CORS_ORIGINS", "https://dash.example.org")

	c, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "kafka", c.Backend.Type)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "/srv/models", c.Bundles.Dir)
	assert.Equal(t, []string{"https://dash.example.org"}, c.Server.CORSOrigins)
}

func TestLoadWithEnv_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	c, err := LoadWithEnv(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
}
