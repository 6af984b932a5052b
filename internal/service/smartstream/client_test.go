package smartstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/domain/models"
)

type fakeFeed struct {
	t        *testing.T
	headers  chan http.Header
	requests chan request
	pings    chan string
	push     chan []byte
	kick     chan struct{}
}

func newFakeFeed(t *testing.T) (*fakeFeed, *httptest.Server) {
	f := &fakeFeed{
		t:        t,
		headers:  make(chan http.Header, 1),
		requests: make(chan request, 8),
		pings:    make(chan string, 8),
		push:     make(chan []byte, 8),
		kick:     make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case f.headers <- r.Header.Clone():
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for {
				select {
				case pkt := <-f.push:
					if err := conn.WriteMessage(websocket.BinaryMessage, pkt); err != nil {
						return
					}
				case <-f.kick:
					_ = conn.Close()
					return
				}
			}
		}()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.TextMessage {
				continue
			}
			if string(data) == heartbeatMessage {
				select {
				case f.pings <- string(data):
				default:
				}
				continue
			}
			var req request
			if json.Unmarshal(data, &req) == nil {
				f.requests <- req
			}
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_ConnectSendsAuthHeaders(t *testing.T) {
	feed, srv := newFakeFeed(t)
	c := New(wsURL(srv), Credentials{ClientCode: "C1", APIKey: "K1", FeedToken: "F1", JWTToken: "J1"})

	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	h := <-feed.headers
	assert.Equal(t, "J1", h.Get("Authorization"))
	assert.Equal(t, "K1", h.Get("x-api-key"))
	assert.Equal(t, "C1", h.Get("x-client-code"))
	assert.Equal(t, "F1", h.Get("x-feed-token"))
}

func TestClient_SubscribeWireShape(t *testing.T) {
	feed, srv := newFakeFeed(t)
	c := New(wsURL(srv), Credentials{ClientCode: "C1", APIKey: "K1", FeedToken: "F1"})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.NoError(t, c.Subscribe(context.Background(), models.ModeQuote, 1, []string{"2885", "11536"}))

	select {
	case req := <-feed.requests:
		assert.Equal(t, actionSubscribe, req.Action)
		assert.Len(t, req.CorrelationID, 10)
		assert.Equal(t, models.ModeQuote, req.Params.Mode)
		require.Len(t, req.Params.TokenList, 1)
		assert.Equal(t, 1, req.Params.TokenList[0].ExchangeType)
		assert.Equal(t, []string{"2885", "11536"}, req.Params.TokenList[0].Tokens)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe request not received")
	}
}

func TestClient_SubscribeBeforeConnect(t *testing.T) {
	c := New("ws://127.0.0.1:1", Credentials{})
	err := c.Subscribe(context.Background(), models.ModeQuote, 1, []string{"2885"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_RunDeliversBinaryFrames(t *testing.T) {
	feed, srv := newFakeFeed(t)
	c := New(wsURL(srv), Credentials{}, WithHeartbeat(20*time.Millisecond))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	pkt, err := Encode(nil, models.Tick{Mode: models.ModeQuote, ExchangeType: 1, Token: "2885", LTP: 500.5})
	require.NoError(t, err)
	feed.push <- pkt

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []byte, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(b []byte) { got <- b })
	}()

	select {
	case b := <-got:
		tick, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, 500.5, tick.LTP)
	case <-time.After(2 * time.Second):
		t.Fatal("packet not delivered")
	}

	select {
	case p := <-feed.pings:
		assert.Equal(t, heartbeatMessage, p)
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat not sent")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClient_RunReturnsOnServerClose(t *testing.T) {
	feed, srv := newFakeFeed(t)
	c := New(wsURL(srv), Credentials{}, WithHeartbeat(0))
	require.NoError(t, c.Connect(context.Background()))

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), func([]byte) {}) }()

	close(feed.kick)

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after server close")
	}
	assert.NoError(t, c.Close())
}
