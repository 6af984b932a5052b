package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service is the shared key-value store used for snapshots, baselines,
// cooldowns and subscriber sets. Only single-key atomicity is guaranteed.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	// SetNX sets key only when absent and reports whether it did.
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)

	HSet(ctx context.Context, key string, fields map[string]interface{}) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SUnion(ctx context.Context, keys ...string) ([]string, error)

	Close() error
}
