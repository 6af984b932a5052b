package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	drepo "tickwatch/internal/domain/repository"
	"tickwatch/internal/service/ratelimit"
	pkghttp "tickwatch/pkg/http"
)

const defaultBaseURL = "https://api.telegram.org"

var ErrMissingToken = errors.New("telegram: bot token is required")

// Config for the Bot API sender.
type Config struct {
	BaseURL    string
	BotToken   string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	// Retries for 429 and 5xx answers. Retry-After is honored.
	Retries int
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Notifier sends HTML messages through the Bot API sendMessage method.
// All recipients share one process-wide token bucket.
type Notifier struct {
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	url     string
}

var _ drepo.Notifier = (*Notifier)(nil)

func New(cfg Config, opts ...pkghttp.ClientOption) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, ErrMissingToken
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RatePerSec)
	}

	opts = append([]pkghttp.ClientOption{
		pkghttp.WithTimeout(cfg.Timeout),
		pkghttp.WithRetries(cfg.Retries, time.Second),
	}, opts...)
	return &Notifier{
		client:  pkghttp.NewClient(opts...),
		limiter: ratelimit.New(float64(cfg.Burst), cfg.RatePerSec),
		url:     fmt.Sprintf("%s/bot%s/sendMessage", base, cfg.BotToken),
	}, nil
}

// Send blocks on the rate limiter, then posts one message. Non-2xx and ok=false are errors.
func (n *Notifier) Send(ctx context.Context, recipient, text string) error {
	if err := n.limiter.Wait(ctx, "sendMessage"); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}

	var resp apiResponse
	err := n.client.PostJSON(ctx, n.url, sendMessageRequest{
		ChatID:                recipient,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}, &resp)
	if err != nil {
		return fmt.Errorf("telegram send to %s: %w", recipient, err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram send to %s: %s", recipient, resp.Description)
	}
	return nil
}
