package cache

import "time"

// RedisConfig is filled with defaults by NewRedisCache.
type RedisConfig struct {
	Addr         string `default:"localhost:6379"`
	Password     string
	DB           int
	PoolSize     int           `default:"10"`
	MinIdleConns int           `default:"2"`
	PoolTimeout  time.Duration `default:"5s"`
	DialTimeout  time.Duration `default:"5s"`
	// Prefix stays empty in production: other services read the same keys.
	Prefix string
}

type MemoryConfig struct {
	CleanupInterval time.Duration `default:"5m"`
	Now             func() time.Time
}
