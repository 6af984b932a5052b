package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		// Aggregated error logs are shipped to this Kafka topic when set.
		CollectorTopic    string        `yaml:"collector_topic"`
		CollectorInterval time.Duration `yaml:"collector_interval"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxConns        int32         `yaml:"max_conns"`
		MinConns        int32         `yaml:"min_conns"`
		MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalsTopic string   `yaml:"signals_topic"`
		Acks         string   `yaml:"acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	SmartStream struct {
		URL               string        `yaml:"url"`
		Credentials       []Credential  `yaml:"credentials"`
		MaxTokensPerConn  int           `yaml:"max_tokens_per_conn"`
		ChunkSize         int           `yaml:"chunk_size"`
		Mode              int           `yaml:"mode"`
		ExchangeType      int           `yaml:"exchange_type"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		BackoffMin        time.Duration `yaml:"backoff_min"`
		BackoffMax        time.Duration `yaml:"backoff_max"`
		// Symbols subscribed at startup.
		Symbols []string `yaml:"symbols"`
	} `yaml:"smartstream"`
	Instruments struct {
		File  string            `yaml:"file"`
		Items []InstrumentEntry `yaml:"items"`
	} `yaml:"instruments"`
	Breakout struct {
		VolumeFactor float64       `yaml:"volume_factor"`
		CooldownTTL  time.Duration `yaml:"cooldown_ttl"`
	} `yaml:"breakout"`
	Dispatcher struct {
		Workers           int           `yaml:"workers"`
		QueueSize         int           `yaml:"queue_size"`
		RecipientCooldown time.Duration `yaml:"recipient_cooldown"`
		DedupTTL          time.Duration `yaml:"dedup_ttl"`
		GlobalCategory    string        `yaml:"global_category"`
		SendTimeout       time.Duration `yaml:"send_timeout"`
	} `yaml:"dispatcher"`
	Alerts struct {
		Interval     time.Duration `yaml:"interval"`
		SweepTimeout time.Duration `yaml:"sweep_timeout"`
	} `yaml:"alerts"`
	Telegram struct {
		BaseURL    string        `yaml:"base_url"`
		BotToken   string        `yaml:"bot_token"`
		Timeout    time.Duration `yaml:"timeout"`
		RateBurst  int           `yaml:"rate_burst"`
		RatePerSec float64       `yaml:"rate_per_sec"`
		Retries    int           `yaml:"retries"`
	} `yaml:"telegram"`
	Baseline struct {
		Interval     time.Duration `yaml:"interval"`
		Candles      int           `yaml:"candles"`
		VolumeWindow int           `yaml:"volume_window"`
		RSIPeriod    int           `yaml:"rsi_period"`
		Table        string        `yaml:"table"`
	} `yaml:"baseline"`
}

// Credential is one SmartStream login; each one backs a separate connection.
type Credential struct {
	ClientCode string `yaml:"client_code"`
	APIKey     string `yaml:"api_key"`
	FeedToken  string `yaml:"feed_token"`
	JWTToken   string `yaml:"jwt_token"`
}

type InstrumentEntry struct {
	Symbol string `yaml:"symbol"`
	Token  string `yaml:"token"`
}

// Secrets are never expected in the YAML file of a deployed environment.
type Secrets struct {
	RedisPassword      string   `env:"REDIS_PASSWORD"`
	PostgresDSN        string   `env:"POSTGRES_DSN"`
	ClickHousePassword string   `env:"CLICKHOUSE_PASSWORD"`
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	TelegramBotToken   string   `env:"TELEGRAM_BOT_TOKEN"`
	Symbols            []string `env:"SYMBOLS" envSeparator:","`
	// Single-credential override, applied to the first credential set.
	SmartStream struct {
		ClientCode string `env:"CLIENT_CODE"`
		APIKey     string `env:"API_KEY"`
		FeedToken  string `env:"FEED_TOKEN"`
		JWTToken   string `env:"JWT_TOKEN"`
	} `envPrefix:"SMARTSTREAM_"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides secrets from environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var s Secrets
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	c.ApplySecrets(s)
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// ApplySecrets overrides config values with the non-empty secrets.
func (c *Config) ApplySecrets(s Secrets) {
	if s.RedisPassword != "" {
		c.Redis.Password = s.RedisPassword
	}
	if s.PostgresDSN != "" {
		c.Postgres.DSN = s.PostgresDSN
	}
	if s.ClickHousePassword != "" {
		c.ClickHouse.Password = s.ClickHousePassword
	}
	if len(s.KafkaBrokers) > 0 {
		c.Kafka.Brokers = s.KafkaBrokers
	}
	if s.TelegramBotToken != "" {
		c.Telegram.BotToken = s.TelegramBotToken
	}
	if len(s.Symbols) > 0 {
		c.SmartStream.Symbols = s.Symbols
	}

	ss := s.SmartStream
	if ss.ClientCode == "" && ss.APIKey == "" && ss.FeedToken == "" && ss.JWTToken == "" {
		return
	}
	if len(c.SmartStream.Credentials) == 0 {
		c.SmartStream.Credentials = append(c.SmartStream.Credentials, Credential{})
	}
	cred := &c.SmartStream.Credentials[0]
	if ss.ClientCode != "" {
		cred.ClientCode = ss.ClientCode
	}
	if ss.APIKey != "" {
		cred.APIKey = ss.APIKey
	}
	if ss.FeedToken != "" {
		cred.FeedToken = ss.FeedToken
	}
	if ss.JWTToken != "" {
		cred.JWTToken = ss.JWTToken
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Kafka.SignalsTopic == "" {
		c.Kafka.SignalsTopic = "tickwatch.signals"
	}
	if c.SmartStream.URL == "" {
		c.SmartStream.URL = "wss://smartapisocket.angelone.in/smart-stream"
	}
	if c.SmartStream.MaxTokensPerConn == 0 {
		c.SmartStream.MaxTokensPerConn = 1000
	}
	if c.SmartStream.ChunkSize == 0 {
		c.SmartStream.ChunkSize = 50
	}
	if c.SmartStream.Mode == 0 {
		c.SmartStream.Mode = 2
	}
	if c.SmartStream.ExchangeType == 0 {
		c.SmartStream.ExchangeType = 1
	}
	if c.SmartStream.HeartbeatInterval == 0 {
		c.SmartStream.HeartbeatInterval = 30 * time.Second
	}
	if c.SmartStream.BackoffMin == 0 {
		c.SmartStream.BackoffMin = time.Second
	}
	if c.SmartStream.BackoffMax == 0 {
		c.SmartStream.BackoffMax = time.Minute
	}
	if c.Breakout.VolumeFactor == 0 {
		c.Breakout.VolumeFactor = 1.5
	}
	if c.Breakout.CooldownTTL == 0 {
		c.Breakout.CooldownTTL = time.Hour
	}
	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = 4
	}
	if c.Dispatcher.QueueSize == 0 {
		c.Dispatcher.QueueSize = 1024
	}
	if c.Dispatcher.RecipientCooldown == 0 {
		c.Dispatcher.RecipientCooldown = 30 * time.Minute
	}
	if c.Dispatcher.DedupTTL == 0 {
		c.Dispatcher.DedupTTL = 24 * time.Hour
	}
	if c.Dispatcher.GlobalCategory == "" {
		c.Dispatcher.GlobalCategory = "breakouts"
	}
	if c.Dispatcher.SendTimeout == 0 {
		c.Dispatcher.SendTimeout = 10 * time.Second
	}
	if c.Alerts.Interval == 0 {
		c.Alerts.Interval = 10 * time.Second
	}
	if c.Alerts.SweepTimeout == 0 {
		c.Alerts.SweepTimeout = c.Alerts.Interval
	}
	if c.Telegram.BaseURL == "" {
		c.Telegram.BaseURL = "https://api.telegram.org"
	}
	if c.Telegram.Timeout == 0 {
		c.Telegram.Timeout = 10 * time.Second
	}
	if c.Telegram.RateBurst == 0 {
		c.Telegram.RateBurst = 30
	}
	if c.Telegram.RatePerSec == 0 {
		c.Telegram.RatePerSec = 25
	}
	if c.Baseline.Interval == 0 {
		c.Baseline.Interval = time.Hour
	}
	if c.Baseline.Candles == 0 {
		c.Baseline.Candles = 252
	}
	if c.Baseline.VolumeWindow == 0 {
		c.Baseline.VolumeWindow = 20
	}
	if c.Baseline.RSIPeriod == 0 {
		c.Baseline.RSIPeriod = 14
	}
	if c.Baseline.Table == "" {
		c.Baseline.Table = "candles_1d"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return errors.New("environment is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if len(c.SmartStream.Credentials) == 0 {
		return errors.New("smartstream.credentials cannot be empty")
	}
	for i, cred := range c.SmartStream.Credentials {
		if cred.ClientCode == "" || cred.APIKey == "" || cred.FeedToken == "" {
			return fmt.Errorf("smartstream.credentials[%d]: client_code, api_key and feed_token are required", i)
		}
	}
	if c.SmartStream.ChunkSize > c.SmartStream.MaxTokensPerConn {
		return fmt.Errorf("smartstream.chunk_size %d exceeds max_tokens_per_conn %d",
			c.SmartStream.ChunkSize, c.SmartStream.MaxTokensPerConn)
	}
	if c.SmartStream.Mode != 2 && c.SmartStream.Mode != 3 {
		return fmt.Errorf("smartstream.mode must be 2 (quote) or 3 (snap quote), got %d", c.SmartStream.Mode)
	}
	if c.SmartStream.BackoffMin > c.SmartStream.BackoffMax {
		return errors.New("smartstream.backoff_min must not exceed backoff_max")
	}
	if c.Instruments.File == "" && len(c.Instruments.Items) == 0 {
		return errors.New("instruments: file or items is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return errors.New("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Breakout.VolumeFactor <= 0 {
		return fmt.Errorf("breakout.volume_factor must be positive, got %v", c.Breakout.VolumeFactor)
	}
	if c.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required")
	}
	return nil
}
