package repository

import "fmt"

// Schema returns the idempotent DDL for the bar and decision tables of database.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.bars (
    symbol LowCardinality(String),
    tf LowCardinality(String),
    ts DateTime64(3, 'UTC'),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    volume Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, tf, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.decisions (
    ts DateTime64(3, 'UTC'),
    symbol LowCardinality(String),
    label LowCardinality(String),
    kind LowCardinality(String),
    direction String,
    volume Float64,
    price Float64,
    stop_loss_pips Float64,
    take_profit_pips Float64,
    range_high Float64,
    range_low Float64,
    detail String
) ENGINE = MergeTree
ORDER BY (symbol, label, ts)`, database),
	}
}
