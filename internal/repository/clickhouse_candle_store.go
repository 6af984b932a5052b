package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tickwatch/internal/domain/models"
	"tickwatch/internal/domain/repository"
	applogger "tickwatch/pkg/logger"
)

// CHCandleStore reads daily candles from ClickHouse.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHCandleStore reads from table, given as database.table.
func NewCHCandleStore(db *sql.DB, table string, l *applogger.Logger) repository.CandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{db: db, table: table, l: l}
}

// LatestDaily returns up to n candles in ascending bucket order.
func (s *CHCandleStore) LatestDaily(ctx context.Context, symbol string, n int) ([]models.Candle, error) {
	start := time.Now()
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s FINAL
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	q := fmt.Sprintf(qtpl, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		s.l.Error("clickhouse latest_daily query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("latest daily candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse latest_daily ok",
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}
