package kafka

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/segmentio/kafka-go"
)

// ProducerConfig configures NewProducer. Zero fields take their defaults.
type ProducerConfig struct {
	Brokers []string `validate:"required,min=1,dive,hostname_port"`
	// Acks is all, one or none.
	Acks         string        `default:"all" validate:"oneof=all one none"`
	Compression  string        `default:"gzip" validate:"oneof=none gzip snappy lz4 zstd"`
	MaxAttempts  int           `default:"3" validate:"min=1"`
	WriteTimeout time.Duration `default:"10s"`
	ReadTimeout  time.Duration `default:"10s"`
	BatchSize    int           `default:"100" validate:"min=1"`
	BatchBytes   int           `default:"1048576" validate:"min=1"`
	BatchTimeout time.Duration `default:"50ms"`
	Async        bool
	// HashByKey keeps every message of one key on one partition.
	HashByKey bool
}

// ConsumerConfig configures NewConsumer.
type ConsumerConfig struct {
	Brokers     []string      `validate:"required,min=1,dive,hostname_port"`
	GroupID     string        `default:"tickwatch" validate:"required"`
	WorkerCount int           `default:"1" validate:"min=1"`
	BufferSize  int           `default:"64" validate:"min=1"`
	RetryMax    int           `default:"3" validate:"min=0"`
	BackoffMin  time.Duration `default:"50ms"`
	BackoffMax  time.Duration `default:"2s" validate:"gtefield=BackoffMin"`
	// DLQTopic empty leaves failed messages uncommitted.
	DLQTopic string
	MinBytes int `default:"10000"`
	MaxBytes int `default:"10000000" validate:"gtefield=MinBytes"`
}

var validate = validator.New()

func prepare(cfg interface{}) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("kafka defaults: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("kafka config: %w", err)
	}
	return nil
}

func requiredAcks(s string) kafka.RequiredAcks {
	switch s {
	case "one":
		return kafka.RequireOne
	case "none":
		return kafka.RequireNone
	default:
		return kafka.RequireAll
	}
}

func compression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Gzip
	}
}
