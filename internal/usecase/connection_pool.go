package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tickwatch/internal/domain/models"
	drepo "tickwatch/internal/domain/repository"
	"tickwatch/internal/service/smartstream"
	applogger "tickwatch/pkg/logger"
)

var (
	ErrCapacityExceeded = errors.New("connection pool: capacity exceeded")
	// ErrUnsupportedMode rejects modes whose frames are shorter than the quote layout.
	ErrUnsupportedMode = errors.New("connection pool: mode must be quote or snap quote")
)

// CapacityError lists the tokens that could not be placed on any connection.
type CapacityError struct {
	Unassigned []string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d tokens unassigned", ErrCapacityExceeded, len(e.Unassigned))
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// TickSink receives decoded ticks in per-connection arrival order.
type TickSink interface {
	Ingest(ctx context.Context, tick models.Tick) error
}

type PoolConfig struct {
	MaxTokensPerConn int
	ChunkSize        int
	Mode             int
	ExchangeType     int
	BackoffMin       time.Duration
	BackoffMax       time.Duration
}

type subscription struct {
	token string
	mode  int
}

type managedConn struct {
	index int
	feed  drepo.FeedConn

	mu     sync.Mutex
	state  models.ConnState
	tokens []subscription
}

func (c *managedConn) load() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tokens)
}

func (c *managedConn) currentState() models.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionPool spreads token subscriptions across capacity-limited feed
// connections and keeps every connection alive with backoff reconnects.
type ConnectionPool struct {
	cfg     PoolConfig
	conns   []*managedConn
	sink    TickSink
	metrics drepo.Metrics
	log     *applogger.Logger

	mu       sync.Mutex
	assigned map[string]int

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConnectionPool(cfg PoolConfig, feeds []drepo.FeedConn, sink TickSink, metrics drepo.Metrics, l *applogger.Logger) *ConnectionPool {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.MaxTokensPerConn <= 0 {
		cfg.MaxTokensPerConn = 1000
	}
	if cfg.Mode == 0 {
		cfg.Mode = models.ModeQuote
	}
	if cfg.ExchangeType == 0 {
		cfg.ExchangeType = 1
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	if l == nil {
		l = applogger.Nop()
	}

	p := &ConnectionPool{
		cfg:      cfg,
		sink:     sink,
		metrics:  metrics,
		log:      l.With("connection-pool"),
		assigned: make(map[string]int),
	}
	for i, f := range feeds {
		p.conns = append(p.conns, &managedConn{index: i, feed: f, state: models.ConnDisconnected})
	}
	return p
}

// Subscribe assigns tokens in chunks to the least-loaded connection, lowest index
// on ties. Tokens already assigned anywhere are skipped. Chunks for connected
// connections are sent immediately; the rest go out on the next connect.
func (p *ConnectionPool) Subscribe(ctx context.Context, tokens []string, mode int) error {
	if mode == 0 {
		mode = p.cfg.Mode
	}
	if mode != models.ModeQuote && mode != models.ModeSnapQuote {
		return fmt.Errorf("%w: %d", ErrUnsupportedMode, mode)
	}
	if len(p.conns) == 0 {
		return &CapacityError{Unassigned: dedupe(tokens)}
	}

	type pending struct {
		conn  *managedConn
		chunk []string
	}
	var sends []pending
	var capErr *CapacityError

	p.mu.Lock()
	fresh := make([]string, 0, len(tokens))
	for _, t := range dedupe(tokens) {
		if _, ok := p.assigned[t]; !ok {
			fresh = append(fresh, t)
		}
	}
	for start := 0; start < len(fresh); start += p.cfg.ChunkSize {
		end := min(start+p.cfg.ChunkSize, len(fresh))
		chunk := fresh[start:end]

		target := p.leastLoaded()
		if target.load()+len(chunk) > p.cfg.MaxTokensPerConn {
			capErr = &CapacityError{Unassigned: append([]string(nil), fresh[start:]...)}
			break
		}

		target.mu.Lock()
		for _, t := range chunk {
			target.tokens = append(target.tokens, subscription{token: t, mode: mode})
			p.assigned[t] = target.index
		}
		connected := target.state == models.ConnConnected
		target.mu.Unlock()

		if connected {
			sends = append(sends, pending{conn: target, chunk: chunk})
		}
	}
	p.mu.Unlock()

	for _, s := range sends {
		if err := s.conn.feed.Subscribe(ctx, mode, p.cfg.ExchangeType, s.chunk); err != nil {
			// assignment stays; the reconnect replay resends it
			p.metrics.RecordError("subscribe")
			p.log.Warn("subscribe failed",
				applogger.Int("conn", s.conn.index),
				applogger.Int("tokens", len(s.chunk)),
				applogger.Error(err),
			)
		}
	}

	if capErr != nil {
		return capErr
	}
	return nil
}

// caller holds p.mu
func (p *ConnectionPool) leastLoaded() *managedConn {
	best := p.conns[0]
	bestLoad := best.load()
	for _, c := range p.conns[1:] {
		if l := c.load(); l < bestLoad {
			best, bestLoad = c, l
		}
	}
	return best
}

// Start launches one receive loop per connection.
func (p *ConnectionPool) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return errors.New("connection pool: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, c := range p.conns {
		p.wg.Add(1)
		go func(c *managedConn) {
			defer p.wg.Done()
			p.run(runCtx, c)
		}(c)
	}
	p.log.Info("connection pool started", applogger.Int("connections", len(p.conns)))
	return nil
}

// Stop closes every connection and waits for the receive loops.
func (p *ConnectionPool) Stop(ctx context.Context) error {
	p.runMu.Lock()
	cancel := p.cancel
	p.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	for _, c := range p.conns {
		if err := c.feed.Close(); err != nil {
			p.log.Debug("close connection", applogger.Int("conn", c.index), applogger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection pool stop: %w", ctx.Err())
	}
}

// Status reports per-connection state and load.
func (p *ConnectionPool) Status() []models.ConnectionStatus {
	out := make([]models.ConnectionStatus, 0, len(p.conns))
	for _, c := range p.conns {
		c.mu.Lock()
		out = append(out, models.ConnectionStatus{Index: c.index, State: c.state, Tokens: len(c.tokens)})
		c.mu.Unlock()
	}
	return out
}

func (p *ConnectionPool) run(ctx context.Context, c *managedConn) {
	attempt := 0
	for {
		p.setState(c, models.ConnConnecting)
		err := c.feed.Connect(ctx)
		if err == nil {
			attempt = 0
			p.setState(c, models.ConnConnected)
			if err = p.replay(ctx, c); err == nil {
				err = c.feed.Run(ctx, func(b []byte) { p.handlePacket(ctx, c, b) })
			}
		}

		if ctx.Err() != nil {
			p.setState(c, models.ConnClosed)
			return
		}
		if err == nil {
			err = errors.New("stream ended")
		}

		attempt++
		wait := p.backoff(attempt)
		p.setState(c, models.ConnError)
		p.metrics.RecordError("stream")
		p.log.Warn("connection lost",
			applogger.Int("conn", c.index),
			applogger.Int("attempt", attempt),
			applogger.Duration("retry_in", wait),
			applogger.Error(err),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			p.setState(c, models.ConnClosed)
			return
		case <-t.C:
		}
	}
}

// replay resends the connection's whole token set, chunked and grouped by mode.
func (p *ConnectionPool) replay(ctx context.Context, c *managedConn) error {
	c.mu.Lock()
	subs := append([]subscription(nil), c.tokens...)
	c.mu.Unlock()
	if len(subs) == 0 {
		return nil
	}

	var modes []int
	byMode := make(map[int][]string)
	for _, s := range subs {
		if _, ok := byMode[s.mode]; !ok {
			modes = append(modes, s.mode)
		}
		byMode[s.mode] = append(byMode[s.mode], s.token)
	}

	for _, mode := range modes {
		tokens := byMode[mode]
		for start := 0; start < len(tokens); start += p.cfg.ChunkSize {
			end := min(start+p.cfg.ChunkSize, len(tokens))
			if err := c.feed.Subscribe(ctx, mode, p.cfg.ExchangeType, tokens[start:end]); err != nil {
				return fmt.Errorf("replay subscriptions: %w", err)
			}
		}
	}
	p.log.Info("subscriptions replayed", applogger.Int("conn", c.index), applogger.Int("tokens", len(subs)))
	return nil
}

func (p *ConnectionPool) handlePacket(ctx context.Context, c *managedConn, b []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.RecordError("packet_panic")
			p.log.Error("panic handling packet", applogger.Int("conn", c.index), applogger.Any("panic", r))
		}
	}()

	tick, err := smartstream.Decode(b)
	if err != nil {
		p.metrics.RecordError("decode")
		return
	}
	// the ingester logs and counts its own failures
	_ = p.sink.Ingest(ctx, tick)
}

func (p *ConnectionPool) setState(c *managedConn, s models.ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	p.metrics.RecordConnectionState(c.index, string(s))
}

func (p *ConnectionPool) backoff(attempt int) time.Duration {
	d := p.cfg.BackoffMin
	for i := 1; i < attempt && d < p.cfg.BackoffMax; i++ {
		d *= 2
	}
	return min(d, p.cfg.BackoffMax)
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
