package clickhouse

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:         "ch.local",
		Port:         9000,
		Database:     "enviropulse",
		User:         "svc",
		Password:     "p@ss:word",
		DialTimeout:  5 * time.Second,
		MaxExecTime:  time.Minute,
		AsyncInsert:  true,
		WaitForAsync: true,
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch.local:9000", u.Host)
	assert.Equal(t, "/enviropulse", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss:word", pw)
	assert.Equal(t, "5s", u.Query().Get("dial_timeout"))
	assert.Equal(t, "60", u.Query().Get("max_execution_time"))
	assert.Equal(t, "1", u.Query().Get("wait_for_async_insert"))
	assert.Empty(t, u.Query().Get("write_timeout"))
}

func TestBuildDSN_HTTP(t *testing.T) {
	dsn := buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "db", User: "default", UseHTTP: true})
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Empty(t, u.RawQuery)
}

func TestClientConfigNormalize(t *testing.T) {
	cfg := DefaultClientConfig()
	assert.Error(t, cfg.normalize())

	cfg.Host = "ch"
	cfg.UseHTTP = true
	cfg.MaxIdleConns = 50
	cfg.DialTimeout = 0
	require.NoError(t, cfg.normalize())
	assert.Equal(t, 8123, cfg.Port)
	assert.Equal(t, cfg.MaxOpenConns, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)

	cfg = DefaultClientConfig()
	cfg.Host = "ch"
	WithAsyncInsert(false, true)(&cfg)
	assert.ErrorContains(t, cfg.normalize(), "async_insert")
}
