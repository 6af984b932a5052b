package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOptions(t *testing.T) {
	o, err := buildOptions(Config{
		Host:        "ch.local",
		Port:        8123,
		Database:    "tickwatch",
		User:        "svc",
		Password:    "secret",
		UseHTTP:     true,
		AsyncInsert: true,
		MaxExecTime: 30 * time.Second,
		ReadTimeout: 20 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, clickhouse.HTTP, o.Protocol)
	assert.Equal(t, []string{"ch.local:8123"}, o.Addr)
	assert.Equal(t, "tickwatch", o.Auth.Database)
	assert.Equal(t, "svc", o.Auth.Username)
	assert.Equal(t, "secret", o.Auth.Password)
	assert.Equal(t, 30, o.Settings["max_execution_time"])
	assert.Equal(t, 1, o.Settings["async_insert"])
	assert.Equal(t, 0, o.Settings["wait_for_async_insert"])
	assert.Equal(t, 5*time.Second, o.DialTimeout)
	assert.Equal(t, 20*time.Second, o.ReadTimeout)
}

func TestBuildOptions_Defaults(t *testing.T) {
	o, err := buildOptions(Config{Host: "ch.local"})
	require.NoError(t, err)

	assert.Equal(t, clickhouse.Native, o.Protocol)
	assert.Equal(t, []string{"ch.local:9000"}, o.Addr)
	assert.Equal(t, "default", o.Auth.Database)
	assert.Equal(t, 10, o.MaxOpenConns)
	assert.Empty(t, o.Settings)
}

func TestBuildOptions_Invalid(t *testing.T) {
	_, err := buildOptions(Config{})
	assert.ErrorContains(t, err, "Host")

	_, err = buildOptions(Config{Host: "ch.local", MaxOpenConns: 2, MaxIdleConns: 4})
	assert.ErrorContains(t, err, "MaxIdleConns")
}

func TestSchema(t *testing.T) {
	stmts := Schema("tickwatch", "candles_1d", "signals")
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "tickwatch.candles_1d")
	assert.Contains(t, stmts[2], "tickwatch.signals")
	assert.Contains(t, stmts[2], "rule_id Int64")
}
