package repository

import (
	"context"
	"fmt"
	"time"

	"tickwatch/internal/domain/repository"
	"tickwatch/pkg/cache"
)

const (
	watchlistPrefix   = "watchlist"
	subscribersPrefix = "subscribers"
	breakoutPrefix    = "alert_cooldown"
	recipientPrefix   = "cooldown"
	dedupPrefix       = "notify_dedup"
)

// BreakoutCooldownKey suppresses repeat breakout signals for a symbol.
func BreakoutCooldownKey(symbol string) string {
	return cache.GenerateKeyWithParams(breakoutPrefix, symbol, "breakout")
}

// RecipientCooldownKey suppresses repeat notifications of a symbol to one recipient.
func RecipientCooldownKey(recipient, symbol string) string {
	return cache.GenerateKeyWithParams(recipientPrefix, recipient, symbol)
}

// NotifyDedupKey identifies one trigger of one alert rule.
func NotifyDedupKey(ruleID int64, triggeredAt time.Time) string {
	return cache.GenerateKeyWithParams(dedupPrefix, ruleID, triggeredAt.UnixMilli())
}

// RedisCooldownStore implements presence-only TTL keys.
type RedisCooldownStore struct {
	cache cache.Service
}

func NewRedisCooldownStore(c cache.Service) repository.CooldownStore {
	return &RedisCooldownStore{cache: c}
}

func (s *RedisCooldownStore) Active(ctx context.Context, key string) (bool, error) {
	ok, err := s.cache.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cooldown check %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisCooldownStore) Set(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.cache.Set(ctx, key, "1", ttl); err != nil {
		return fmt.Errorf("cooldown set %s: %w", key, err)
	}
	return nil
}

// Acquire is a single SET NX EX.
func (s *RedisCooldownStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.cache.SetNX(ctx, key, "1", ttl)
	if err != nil {
		return false, fmt.Errorf("cooldown acquire %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisCooldownStore) Release(ctx context.Context, key string) error {
	if err := s.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("cooldown release %s: %w", key, err)
	}
	return nil
}

// RedisSubscriberStore keeps recipients in watchlist:{symbol} and subscribers:{category} sets.
type RedisSubscriberStore struct {
	cache cache.Service
}

func NewRedisSubscriberStore(c cache.Service) repository.SubscriberStore {
	return &RedisSubscriberStore{cache: c}
}

func WatchlistKey(symbol string) string {
	return cache.GenerateKey(watchlistPrefix, symbol)
}

func SubscribersKey(category string) string {
	return cache.GenerateKey(subscribersPrefix, category)
}

func (s *RedisSubscriberStore) SymbolSubscribers(ctx context.Context, symbol string) ([]string, error) {
	members, err := s.cache.SMembers(ctx, WatchlistKey(symbol))
	if err != nil {
		return nil, fmt.Errorf("watchlist %s: %w", symbol, err)
	}
	return members, nil
}

func (s *RedisSubscriberStore) CategorySubscribers(ctx context.Context, category string) ([]string, error) {
	members, err := s.cache.SMembers(ctx, SubscribersKey(category))
	if err != nil {
		return nil, fmt.Errorf("subscribers %s: %w", category, err)
	}
	return members, nil
}

func (s *RedisSubscriberStore) AddSymbolSubscriber(ctx context.Context, symbol, recipient string) error {
	return s.cache.SAdd(ctx, WatchlistKey(symbol), recipient)
}

func (s *RedisSubscriberStore) RemoveSymbolSubscriber(ctx context.Context, symbol, recipient string) error {
	return s.cache.SRem(ctx, WatchlistKey(symbol), recipient)
}
