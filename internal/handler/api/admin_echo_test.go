package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/domain/models"
	"tickwatch/internal/instrument"
	"tickwatch/internal/repository"
	"tickwatch/internal/usecase"
	"tickwatch/pkg/cache"
	xlogger "tickwatch/pkg/logger"
)

type fakePool struct {
	mu    sync.Mutex
	calls [][]string
	modes []int
	err   error
	conns []models.ConnectionStatus
}

func (p *fakePool) Subscribe(_ context.Context, tokens []string, mode int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, tokens)
	p.modes = append(p.modes, mode)
	return p.err
}

func (p *fakePool) Status() []models.ConnectionStatus { return p.conns }

type fixture struct {
	e    *echo.Echo
	pool *fakePool
	mr   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := cache.NewRedisCacheFromClient(rdb, "")

	dir, err := instrument.FromMap(map[string]string{"RELIANCE": "2885", "TCS": "11536"})
	require.NoError(t, err)

	pool := &fakePool{conns: []models.ConnectionStatus{
		{Index: 0, State: models.ConnConnected, Tokens: 2},
		{Index: 1, State: models.ConnError},
	}}
	h := NewAdminEchoHandler(xlogger.Nop(), pool, dir,
		repository.NewRedisSnapshotStore(store), repository.NewRedisSubscriberStore(store))

	e := echo.New()
	h.RegisterRoutes(e)
	return &fixture{e: e, pool: pool, mr: mr}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &body))
	assert.Equal(t, "ok", body.Status)
	assert.Len(t, body.Connections, 2)
}

func TestHealth_DegradedWithoutConnectedStream(t *testing.T) {
	f := newFixture(t)
	f.pool.conns = []models.ConnectionStatus{{Index: 0, State: models.ConnConnecting}}

	var body healthResponse
	require.NoError(t, json.Unmarshal(decode(t, f.do(http.MethodGet, "/healthz", "")).Data, &body))
	assert.Equal(t, "degraded", body.Status)
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/subscriptions", `{"symbols":["reliance","TCS"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, f.pool.calls, 1)
	assert.Equal(t, []string{"2885", "11536"}, f.pool.calls[0])
	assert.Equal(t, models.ModeQuote, f.pool.modes[0])
}

func TestSubscribe_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		poolErr error
		want    int
	}{
		{"empty symbols", `{"symbols":[]}`, nil, http.StatusBadRequest},
		{"bad mode", `{"symbols":["TCS"],"mode":7}`, nil, http.StatusBadRequest},
		{"ltp mode", `{"symbols":["TCS"],"mode":1}`, nil, http.StatusBadRequest},
		{"unknown symbol", `{"symbols":["TCS","NOPE"]}`, nil, http.StatusBadRequest},
		{"capacity", `{"symbols":["TCS"]}`, &usecase.CapacityError{Unassigned: []string{"11536"}}, http.StatusConflict},
		{"pool failure", `{"symbols":["TCS"]}`, assert.AnError, http.StatusInternalServerError},
		{"pool rejects mode", `{"symbols":["TCS"]}`, fmt.Errorf("%w: 1", usecase.ErrUnsupportedMode), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.pool.err = tt.poolErr
			rec := f.do(http.MethodPost, "/api/subscriptions", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, decode(t, rec).Status)
		})
	}
}

func TestSubscribe_LTPModeNeverReachesPool(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/subscriptions", `{"symbols":["TCS"],"mode":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Empty(t, f.pool.calls)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	f.mr.HSet("stock:TCS", "ltp", "3500.50", "rsi", "61.20")

	rec := f.do(http.MethodGet, "/api/snapshots/tcs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Symbol string            `json:"symbol"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &body))
	assert.Equal(t, "TCS", body.Symbol)
	assert.Equal(t, "3500.50", body.Fields["ltp"])
}

func TestSnapshot_NotFound(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/snapshots/RELIANCE", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/snapshots/NOPE", "").Code)
}

func TestWatchlist_AddAndRemove(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/watchlist/tcs", `{"recipient":"42"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusCreated, decode(t, rec).Status)
	members, err := f.mr.Members("watchlist:TCS")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, members)

	rec = f.do(http.MethodDelete, "/api/watchlist/TCS", `{"recipient":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, decode(t, rec).Status)
	assert.False(t, f.mr.Exists("watchlist:TCS"))
}

func TestWatchlist_Validation(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/watchlist/TCS", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/watchlist/NOPE", `{"recipient":"42"}`).Code)
}
