package clickhouse

import "time"

// Config is filled with defaults by NewClient.
type Config struct {
	Host     string `validate:"required"`
	Port     int    `default:"9000" validate:"min=1,max=65535"`
	Database string `default:"default" validate:"required"`
	User     string `default:"default"`
	Password string

	MaxOpenConns    int           `default:"10"`
	MaxIdleConns    int           `default:"5" validate:"ltefield=MaxOpenConns"`
	ConnMaxLifetime time.Duration `default:"5m"`
	DialTimeout     time.Duration `default:"5s"`
	ReadTimeout     time.Duration `default:"10s"`

	// UseHTTP switches from the native protocol (9000) to HTTP (8123).
	UseHTTP bool
	// AsyncInsert lets the server buffer archive inserts.
	AsyncInsert  bool
	WaitForAsync bool
	MaxExecTime  time.Duration
}
