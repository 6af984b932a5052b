package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
redis:
  addr: localhost:6379
postgres:
  dsn: postgres://u:p@localhost:5432/alerts
smartstream:
  credentials:
    - client_code: C1
      api_key: K1
      feed_token: F1
instruments:
  items:
    - symbol: RELIANCE
      token: "2885"
telegram:
  bot_token: abc
`

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 50, c.SmartStream.ChunkSize)
	assert.Equal(t, 2, c.SmartStream.Mode)
	assert.Equal(t, 1, c.SmartStream.ExchangeType)
	assert.Equal(t, 1.5, c.Breakout.VolumeFactor)
	assert.Equal(t, time.Hour, c.Breakout.CooldownTTL)
	assert.Equal(t, 30*time.Minute, c.Dispatcher.RecipientCooldown)
	assert.Equal(t, 24*time.Hour, c.Dispatcher.DedupTTL)
	assert.Equal(t, 10*time.Second, c.Alerts.Interval)
	assert.Equal(t, c.Alerts.Interval, c.Alerts.SweepTimeout)
	assert.Equal(t, 252, c.Baseline.Candles)
	assert.Equal(t, "tickwatch.signals", c.Kafka.SignalsTopic)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing environment", "redis:\n  addr: x\n", "environment is required"},
		{"missing redis", "environment: test\n", "redis.addr is required"},
		{
			"missing credentials",
			"environment: test\nredis:\n  addr: x\npostgres:\n  dsn: y\n",
			"smartstream.credentials cannot be empty",
		},
		{
			"incomplete credential",
			"environment: test\nredis:\n  addr: x\npostgres:\n  dsn: y\nsmartstream:\n  credentials:\n    - client_code: C\n",
			"smartstream.credentials[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_ChunkLargerThanCeiling(t *testing.T) {
	y := minimalYAML + "\n" + "baseline:\n  candles: 10\n"
	c, err := Parse([]byte(y))
	require.NoError(t, err)

	c.SmartStream.ChunkSize = c.SmartStream.MaxTokensPerConn + 1
	assert.Error(t, c.Validate())
}

func TestParse_RejectsUndecodedMode(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, c.SmartStream.Mode)

	for _, mode := range []int{1, 4} {
		c.SmartStream.Mode = mode
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "smartstream.mode")
	}
	c.SmartStream.Mode = 3
	assert.NoError(t, c.Validate())
}

func TestLoadWithEnv_Secrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SMARTSTREAM_FEED_TOKEN", "F-env")
	t.Setenv("SYMBOLS", "TCS,INFY")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", c.Telegram.BotToken)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "F-env", c.SmartStream.Credentials[0].FeedToken)
	assert.Equal(t, "C1", c.SmartStream.Credentials[0].ClientCode)
	assert.Equal(t, []string{"TCS", "INFY"}, c.SmartStream.Symbols)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
