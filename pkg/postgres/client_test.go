package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig("postgres://u:p@db.local:5432/alerts?sslmode=disable",
		WithMaxConns(20, 2),
		WithMaxConnLifetime(time.Hour),
		WithApplicationName("tickwatch"),
	)
	require.NoError(t, err)

	assert.Equal(t, int32(20), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	assert.Equal(t, "db.local", cfg.ConnConfig.Host)
	assert.Equal(t, "alerts", cfg.ConnConfig.Database)
	assert.Equal(t, "tickwatch", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig("postgres://%zz")
	assert.Error(t, err)
}
