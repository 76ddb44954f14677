package repository

import (
	"context"
	"time"

	"SessionBreak/internal/domain/models"
)

type QuoteStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type QuotePublisher interface {
	Publish(ctx context.Context, q *models.Quote) error
	Close() error
}

// BarFeed exposes closed bars in ascending time order. The forming bar is never included.
type BarFeed interface {
	ClosedBars() ([]models.Bar, error)
}

// BarStore persists closed bars.
type BarStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, b models.Bar) error
	StoreBatch(ctx context.Context, bars []models.Bar) error
	GetBars(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Bar, error)
	GetLatestBars(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Bar, error)
	Health(ctx context.Context) error
}

// Venue is the execution collaborator of the engine.
// FindOpenPosition returns nil, nil when no active position carries the label.
type Venue interface {
	SubmitMarketOrder(ctx context.Context, req models.OrderRequest) (*models.Position, error)
	FindOpenPosition(ctx context.Context, label string) (*models.Position, error)
	ModifyPosition(ctx context.Context, pos models.Position, stopLoss, takeProfit float64) error
}

// PositionBook mirrors the venue positions, keyed by label.
type PositionBook interface {
	Get(ctx context.Context, label string) (*models.Position, error)
	Put(ctx context.Context, p models.Position) error
	Remove(ctx context.Context, label string) error
}

type Journal interface {
	Record(ctx context.Context, decisions []models.Decision) error
}

type StateStore interface {
	Save(ctx context.Context, symbol string, snaps []models.SessionSnapshot) error
	Load(ctx context.Context, symbol string) ([]models.SessionSnapshot, error)
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordEntry(label string, dir models.Direction)
	RecordBreakEven(label string)
	RecordRange(label string, r models.Range)
	RecordSessionState(label string, state models.SessionState)
}
