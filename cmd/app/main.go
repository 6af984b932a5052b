package main

import (
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"tickwatch/internal/di"
	"tickwatch/pkg/config"
	applogger "tickwatch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load %s: %v", *envFile, err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	l.Info("config loaded",
		applogger.String("env", cfg.Environment),
		applogger.Int("connections", len(cfg.SmartStream.Credentials)),
		applogger.Bool("kafka", cfg.Kafka.Enabled),
		applogger.Bool("clickhouse", cfg.ClickHouse.Enabled),
	)

	app, err := di.InitializeApp(cfg, l)
	if err != nil {
		l.Error("app initialization failed", applogger.Error(err))
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		l.Error("app exited with error", applogger.Error(err))
		os.Exit(1)
	}
}
