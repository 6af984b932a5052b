package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/creasty/defaults"
)

// memoryItem stores a string value with an optional expiration.
type memoryItem struct {
	value    string
	expireAt time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

// MemoryCache implements Service in process memory. It backs single-node
// runs where no Redis is available (redis.addr: memory). Hashes and sets
// never expire.
type MemoryCache struct {
	mutex   sync.Mutex
	values  map[string]*memoryItem
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	now     func() time.Time
	stop    chan struct{}
	stopped sync.Once
}

func NewMemoryCache(cfg MemoryConfig) *MemoryCache {
	_ = defaults.Set(&cfg)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	mc := &MemoryCache{
		values: make(map[string]*memoryItem),
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
		now:    cfg.Now,
		stop:   make(chan struct{}),
	}

	go mc.cleanupExpired(cfg.CleanupInterval)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}

	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	mc.values[key] = mc.newItem(string(data), expiration)
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mutex.Lock()
	item, ok := mc.lookup(key)
	mc.mutex.Unlock()
	if !ok {
		return ErrCacheMiss
	}

	if strPtr, ok := dest.(*string); ok {
		*strPtr = item.value
		return nil
	}
	return json.Unmarshal([]byte(item.value), dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		delete(mc.values, key)
		delete(mc.hashes, key)
		delete(mc.sets, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		if _, ok := mc.lookup(key); ok {
			return true, nil
		}
		if _, ok := mc.hashes[key]; ok {
			return true, nil
		}
		if _, ok := mc.sets[key]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := encodeValue(value)
	if err != nil {
		return false, err
	}

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if _, ok := mc.lookup(key); ok {
		return false, nil
	}
	mc.values[key] = mc.newItem(string(data), expiration)
	return true, nil
}

func (mc *MemoryCache) HSet(_ context.Context, key string, fields map[string]interface{}) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	h, ok := mc.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		mc.hashes[key] = h
	}
	for name, v := range fields {
		h[name] = fmt.Sprint(v)
	}
	return nil
}

func (mc *MemoryCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	out := make(map[string]string, len(mc.hashes[key]))
	for name, v := range mc.hashes[key] {
		out[name] = v
	}
	return out, nil
}

func (mc *MemoryCache) SAdd(_ context.Context, key string, members ...string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	s, ok := mc.sets[key]
	if !ok {
		s = make(map[string]struct{}, len(members))
		mc.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (mc *MemoryCache) SRem(_ context.Context, key string, members ...string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	s := mc.sets[key]
	for _, m := range members {
		delete(s, m)
	}
	if len(s) == 0 {
		delete(mc.sets, key)
	}
	return nil
}

func (mc *MemoryCache) SMembers(ctx context.Context, key string) ([]string, error) {
	return mc.SUnion(ctx, key)
}

// SUnion returns members sorted, for stable output.
func (mc *MemoryCache) SUnion(_ context.Context, keys ...string) ([]string, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	seen := make(map[string]struct{})
	for _, key := range keys {
		for m := range mc.sets[key] {
			seen[m] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// lookup must be called with the mutex held.
func (mc *MemoryCache) lookup(key string) (*memoryItem, bool) {
	item, ok := mc.values[key]
	if !ok {
		return nil, false
	}
	if item.expired(mc.now()) {
		delete(mc.values, key)
		return nil, false
	}
	return item, true
}

func (mc *MemoryCache) newItem(value string, expiration time.Duration) *memoryItem {
	item := &memoryItem{value: value}
	if expiration > 0 {
		item.expireAt = mc.now().Add(expiration)
	}
	return item
}

func (mc *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.mutex.Lock()
			now := mc.now()
			for key, item := range mc.values {
				if item.expired(now) {
					delete(mc.values, key)
				}
			}
			mc.mutex.Unlock()
		case <-mc.stop:
			return
		}
	}
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.stopped.Do(func() { close(mc.stop) })
	return nil
}
