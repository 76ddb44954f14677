package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/internal/services/features"
)

var ErrInvalidQuery = errors.New("history: invalid query")

const maxHistoryBars = 5000

// BarHistory answers bar queries from the bar store.
type BarHistory struct {
	store  domrepo.BarStore
	symbol string
}

func NewBarHistory(store domrepo.BarStore, symbol string) *BarHistory {
	return &BarHistory{store: store, symbol: symbol}
}

type BarsQuery struct {
	Timeframe domrepo.Timeframe
	From      time.Time
	To        time.Time
	Limit     int
}

type BarsResult struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Count     int          `json:"count"`
	Bars      []models.Bar `json:"bars"`
}

// Bars returns the latest Limit bars, or the bars in [From, To] when both are set.
func (h *BarHistory) Bars(ctx context.Context, q BarsQuery) (*BarsResult, error) {
	if h.store == nil {
		return nil, fmt.Errorf("%w: bar store disabled", ErrInvalidQuery)
	}
	tf := domrepo.NormalizeTimeframe(string(q.Timeframe))
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > maxHistoryBars {
		q.Limit = maxHistoryBars
	}

	var (
		bars []models.Bar
		err  error
	)
	if !q.From.IsZero() && !q.To.IsZero() {
		if q.From.After(q.To) {
			return nil, fmt.Errorf("%w: from must be <= to", ErrInvalidQuery)
		}
		from, to := features.AlignFromTo(q.From, q.To, tf)
		bars, err = h.store.GetBars(ctx, h.symbol, from, to, tf)
		if len(bars) > q.Limit {
			bars = bars[len(bars)-q.Limit:]
		}
	} else {
		bars, err = h.store.GetLatestBars(ctx, h.symbol, q.Limit, tf)
	}
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}
	return &BarsResult{Symbol: h.symbol, Timeframe: string(tf), Count: len(bars), Bars: bars}, nil
}
