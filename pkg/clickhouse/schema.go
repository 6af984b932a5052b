package clickhouse

import "fmt"

// Schema returns the DDL for the candle source and the signal archive.
// candles_1d is normally filled by an upstream job; it is created here so
// that a fresh deployment starts with an empty but queryable table.
func Schema(database, candleTable, signalTable string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    bucket Date,
    symbol LowCardinality(String),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    vol Float64
) ENGINE = ReplacingMergeTree ORDER BY (symbol, bucket)`, database, candleTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    ts DateTime64(3),
    id String,
    type LowCardinality(String),
    symbol LowCardinality(String),
    price Float64,
    volume Float64,
    reason String,
    owner_id String,
    rule_id Int64
) ENGINE = ReplacingMergeTree ORDER BY (symbol, ts, id)`, database, signalTable),
	}
}
