package smartstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tickwatch/pkg/logger"
)

const (
	actionSubscribe   = 1
	actionUnsubscribe = 0

	heartbeatMessage = "ping"
	heartbeatReply   = "pong"
)

var ErrNotConnected = errors.New("smartstream: not connected")

// Credentials authenticate one streaming connection.
type Credentials struct {
	ClientCode string
	APIKey     string
	FeedToken  string
	JWTToken   string
}

type tokenList struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

type requestParams struct {
	Mode      int         `json:"mode"`
	TokenList []tokenList `json:"tokenList"`
}

type request struct {
	CorrelationID string        `json:"correlationID"`
	Action        int           `json:"action"`
	Params        requestParams `json:"params"`
}

// Client implements repository.FeedConn over the SmartStream v2 websocket.
type Client struct {
	url       string
	creds     Credentials
	heartbeat time.Duration
	dialer    *websocket.Dialer
	log       *logger.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
}

type Option func(*Client)

// WithHeartbeat sets the text ping interval. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) { c.heartbeat = d }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for one credential set.
func New(url string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		url:       url,
		creds:     creds,
		heartbeat: 30 * time.Second,
		dialer:    websocket.DefaultDialer,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials and authenticates through the handshake headers.
func (c *Client) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", c.creds.JWTToken)
	header.Set("x-api-key", c.creds.APIKey)
	header.Set("x-client-code", c.creds.ClientCode)
	header.Set("x-feed-token", c.creds.FeedToken)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("smartstream connect: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("smartstream connect: %w", err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Subscribe sends one subscribe request for tokens of a single exchange.
func (c *Client) Subscribe(ctx context.Context, mode int, exchangeType int, tokens []string) error {
	return c.send(ctx, actionSubscribe, mode, exchangeType, tokens)
}

// Unsubscribe removes tokens from the stream.
func (c *Client) Unsubscribe(ctx context.Context, mode int, exchangeType int, tokens []string) error {
	return c.send(ctx, actionUnsubscribe, mode, exchangeType, tokens)
}

func (c *Client) send(ctx context.Context, action, mode, exchangeType int, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	req := request{
		CorrelationID: correlationID(),
		Action:        action,
		Params: requestParams{
			Mode:      mode,
			TokenList: []tokenList{{ExchangeType: exchangeType, Tokens: tokens}},
		},
	}

	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("smartstream subscribe: %w", err)
	}
	return nil
}

// Run reads frames until the connection fails or ctx is done.
// Binary frames go to onPacket in arrival order.
func (c *Client) Run(ctx context.Context, onPacket func([]byte)) error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// unblock ReadMessage on cancellation
	go func() {
		<-runCtx.Done()
		if ctx.Err() != nil {
			_ = conn.Close()
		}
	}()

	if c.heartbeat > 0 {
		go c.heartbeatLoop(runCtx, conn)
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("smartstream read: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			onPacket(data)
		case websocket.TextMessage:
			text := strings.TrimSpace(string(data))
			if text != heartbeatReply {
				c.log.Debug("smartstream text frame", logger.String("payload", text))
			}
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte(heartbeatMessage))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Warn("smartstream heartbeat failed", logger.Error(err))
				return
			}
		}
	}
}

// Close closes the websocket. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// correlationID is limited to 10 characters by the feed.
func correlationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
