package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	pkgch "SessionBreak/pkg/clickhouse"
	"SessionBreak/pkg/logger"
)

const barInsertChunk = 2000

// ClickHouseBarStore keeps closed bars per symbol and timeframe.
type ClickHouseBarStore struct {
	db    *sql.DB
	table string
	tf    domrepo.Timeframe
	log   *logger.Logger
}

// NewClickHouseBarStore stores bars of timeframe tf into database.bars.
func NewClickHouseBarStore(ch *pkgch.Client, database string, tf domrepo.Timeframe, log *logger.Logger) *ClickHouseBarStore {
	if log == nil {
		log = logger.Nop()
	}
	return &ClickHouseBarStore{db: ch.DB(), table: database + ".bars", tf: tf, log: log}
}

func (s *ClickHouseBarStore) Init(ctx context.Context) error {
	return nil // DDL runs through pkg/clickhouse.InitSchema
}

func (s *ClickHouseBarStore) Store(ctx context.Context, b models.Bar) error {
	return s.StoreBatch(ctx, []models.Bar{b})
}

func (s *ClickHouseBarStore) StoreBatch(ctx context.Context, bars []models.Bar) error {
	for start := 0; start < len(bars); start += barInsertChunk {
		end := min(start+barInsertChunk, len(bars))
		q, args := barInsert(s.table, s.tf, bars[start:end])
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert bars: %w", err)
		}
	}
	return nil
}

// barInsert builds one multi-row INSERT. Bars without symbol or time are skipped.
func barInsert(table string, tf domrepo.Timeframe, bars []models.Bar) (string, []interface{}) {
	values := make([]string, 0, len(bars))
	args := make([]interface{}, 0, len(bars)*8)
	for _, b := range bars {
		if b.Symbol == "" || b.Time.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, b.Symbol, string(tf), b.Time.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, tf, ts, open, high, low, close, volume) VALUES %s",
		table, strings.Join(values, ","))
	return q, args
}

func (s *ClickHouseBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Bar, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, open, high, low, close, volume FROM %s FINAL
        WHERE symbol = ? AND tf = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC`, s.table)
	return s.query(ctx, "get_bars", q, symbol, string(tf), from.UTC(), to.UTC())
}

// GetLatestBars returns the newest n bars in ascending time order.
func (s *ClickHouseBarStore) GetLatestBars(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Bar, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, open, high, low, close, volume FROM %s FINAL
        WHERE symbol = ? AND tf = ?
        ORDER BY ts DESC
        LIMIT ?`, s.table)
	bars, err := s.query(ctx, "latest_bars", q, symbol, string(tf), n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func (s *ClickHouseBarStore) query(ctx context.Context, op, q string, args ...interface{}) ([]models.Bar, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.log.Error("clickhouse bar query failed", logger.String("op", op), logger.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Symbol, &b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		b.Time = b.Time.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	s.log.Debug("clickhouse bar query",
		logger.String("op", op),
		logger.Int("rows", len(out)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *ClickHouseBarStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var _ domrepo.BarStore = (*ClickHouseBarStore)(nil)
