package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "tickwatch/pkg/http"
)

func TestNotifier_SendPostsHTMLMessage(t *testing.T) {
	var got sendMessageRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n, err := New(Config{BaseURL: srv.URL, BotToken: "123:abc"})
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "42", "<b>TCS Alert</b>"))
	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "<b>TCS Alert</b>", got.Text)
	assert.Equal(t, "HTML", got.ParseMode)
}

func TestNotifier_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	n, err := New(Config{BaseURL: srv.URL, BotToken: "t"})
	require.NoError(t, err)

	err = n.Send(context.Background(), "42", "hi")
	var se *pkghttp.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}

func TestNotifier_OKFalseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"blocked"}`))
	}))
	defer srv.Close()

	n, err := New(Config{BaseURL: srv.URL, BotToken: "t"})
	require.NoError(t, err)
	assert.ErrorContains(t, n.Send(context.Background(), "42", "hi"), "blocked")
}

func TestNotifier_CancelledWhileRateLimited(t *testing.T) {
	n, err := New(Config{BaseURL: "http://127.0.0.1:1", BotToken: "t", RatePerSec: 0.001, Burst: 1})
	require.NoError(t, err)
	require.True(t, n.limiter.Allow("sendMessage"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Send(ctx, "42", "hi"), context.Canceled)
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingToken)
}
