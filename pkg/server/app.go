package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tickwatch/internal/instrument"
	"tickwatch/internal/usecase"
	"tickwatch/pkg/config"
	xhttp "tickwatch/pkg/http"
	pkgkafka "tickwatch/pkg/kafka"
	applogger "tickwatch/pkg/logger"
)

// Components are the long-running parts the App drives. Optional ones are nil
// when their backing service is disabled in config.
type Components struct {
	Directory  *instrument.Directory
	Pool       *usecase.ConnectionPool
	Dispatcher *usecase.NotificationDispatcher
	Evaluator  *usecase.AlertEvaluator
	Refresher  *usecase.BaselineRefresher
	Consumer   *pkgkafka.Consumer
	Archive    pkgkafka.MessageHandler
	HTTP       *xhttp.Server
	// Closers release infrastructure clients after everything else stopped,
	// in the given order.
	Closers []NamedCloser
}

type NamedCloser struct {
	Name   string
	Closer io.Closer
}

// CloserFunc adapts clients whose Close has no error result.
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// App encapsulates the application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components

	cancel context.CancelFunc
}

func New(cfg *config.Config, l *applogger.Logger, c Components) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, log: l.With("app"), c: c}
}

// Run starts everything and blocks until SIGINT/SIGTERM or an HTTP serve failure.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	var httpErrs <-chan error
	if a.c.HTTP != nil {
		httpErrs = a.c.HTTP.Errors()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-httpErrs:
		a.log.Error("http server exited", applogger.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Start brings components up in dependency order: delivery first, then the
// jobs feeding it, then the streams and finally the admin API.
func (a *App) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel

	a.c.Dispatcher.Start(ctx)

	if a.c.Refresher != nil {
		a.c.Refresher.Start(ctx)
	}
	a.c.Evaluator.Start(ctx)

	if a.c.Consumer != nil && a.c.Archive != nil {
		a.c.Consumer.RegisterHandler(a.c.Archive)
		if err := a.c.Consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
	}

	a.subscribeInitial(ctx)
	if err := a.c.Pool.Start(ctx); err != nil {
		return fmt.Errorf("start connection pool: %w", err)
	}

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			return fmt.Errorf("start http server: %w", err)
		}
	}

	a.log.Info("tickwatch started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Int("instruments", a.c.Directory.Len()),
		applogger.Bool("baseline_refresh", a.c.Refresher != nil),
		applogger.Bool("signal_archive", a.c.Consumer != nil),
	)
	return nil
}

// subscribeInitial assigns the configured symbols, or the whole directory,
// before the streams connect so the first connect replays them.
func (a *App) subscribeInitial(ctx context.Context) {
	symbols := a.cfg.SmartStream.Symbols
	if len(symbols) == 0 {
		symbols = a.c.Directory.Symbols()
	}

	tokens, err := a.c.Directory.Tokens(symbols)
	var unknown *instrument.UnknownSymbolsError
	if errors.As(err, &unknown) {
		a.log.Warn("ignoring unknown startup symbols", applogger.Strings("symbols", unknown.Symbols))
	}

	err = a.c.Pool.Subscribe(ctx, tokens, a.cfg.SmartStream.Mode)
	var capErr *usecase.CapacityError
	switch {
	case errors.As(err, &capErr):
		a.log.Error("startup subscription exceeds pool capacity",
			applogger.Int("requested", len(tokens)),
			applogger.Int("unassigned", len(capErr.Unassigned)),
		)
	case err != nil:
		a.log.Error("startup subscription failed", applogger.Error(err))
	default:
		a.log.Info("startup subscription assigned", applogger.Int("tokens", len(tokens)))
	}
}

// Shutdown stops components in reverse start order. Errors are logged and
// joined; one failing component does not keep the rest running.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down")
	var errs []error

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			errs = append(errs, err)
			a.log.Error("http shutdown failed", applogger.Error(err))
		}
	}
	if err := a.c.Pool.Stop(ctx); err != nil {
		errs = append(errs, err)
		a.log.Warn("connection pool stop failed", applogger.Error(err))
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			errs = append(errs, err)
			a.log.Warn("kafka consumer stop failed", applogger.Error(err))
		}
	}
	a.c.Evaluator.Stop()
	if a.c.Refresher != nil {
		a.c.Refresher.Stop()
	}
	if err := a.c.Dispatcher.Stop(ctx); err != nil {
		errs = append(errs, err)
		a.log.Warn("dispatcher stop failed", applogger.Error(err))
	}
	if a.cancel != nil {
		a.cancel()
	}

	for _, nc := range a.c.Closers {
		if err := nc.Closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", nc.Name, err))
			a.log.Warn("close failed", applogger.String("resource", nc.Name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
