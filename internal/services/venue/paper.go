package venue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/pkg/logger"
)

var (
	ErrPositionNotFound = errors.New("venue: position not found")
	ErrNoQuote          = errors.New("venue: no quote seen yet")
	ErrInvalidOrder     = errors.New("venue: invalid order")
)

type paperPosition struct {
	pos    models.Position
	stop   float64
	target float64
}

// PaperVenue fills market orders at the last quote and tracks positions in memory.
// Stops and targets are checked on every quote passed to OnQuote.
type PaperVenue struct {
	mu      sync.Mutex
	pipSize float64
	last    *models.Quote
	open    map[string]*paperPosition
	closed  []paperPosition
	log     *logger.Logger
}

func NewPaperVenue(pipSize float64, log *logger.Logger) *PaperVenue {
	if pipSize <= 0 {
		pipSize = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PaperVenue{pipSize: pipSize, open: make(map[string]*paperPosition), log: log}
}

func (v *PaperVenue) SubmitMarketOrder(ctx context.Context, req models.OrderRequest) (*models.Position, error) {
	if req.Volume <= 0 || req.Label == "" {
		return nil, fmt.Errorf("%w: label %q volume %v", ErrInvalidOrder, req.Label, req.Volume)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.last == nil {
		return nil, ErrNoQuote
	}
	entry := v.last.Ask
	if req.Direction == models.Sell {
		entry = v.last.Bid
	}
	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	opened := req.Time
	if opened.IsZero() {
		opened = v.last.Time
	}
	p := &paperPosition{pos: models.Position{
		ID:             id,
		Label:          req.Label,
		Symbol:         req.Symbol,
		Direction:      req.Direction,
		Volume:         req.Volume,
		EntryPrice:     entry,
		StopLossPips:   req.StopLossPips,
		TakeProfitPips: req.TakeProfitPips,
		Status:         models.PositionOpen,
		OpenedAt:       opened,
	}}
	p.stop = p.pos.StopLossPrice(v.pipSize)
	if req.TakeProfitPips > 0 {
		p.target = p.pos.TakeProfitPrice(v.pipSize)
	}
	v.open[id] = p
	v.log.Info("paper fill",
		logger.String("id", id),
		logger.String("label", req.Label),
		logger.String("direction", string(req.Direction)),
		logger.Float64("volume", req.Volume),
		logger.Float64("entry", entry),
	)
	out := p.pos
	return &out, nil
}

func (v *PaperVenue) FindOpenPosition(ctx context.Context, label string) (*models.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, p := range v.open {
		if p.pos.Label == label {
			out := p.pos
			return &out, nil
		}
	}
	return nil, nil
}

// ModifyPosition moves the protective prices. A zero takeProfit removes the target.
func (v *PaperVenue) ModifyPosition(ctx context.Context, pos models.Position, stopLoss, takeProfit float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.open[pos.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPositionNotFound, pos.ID)
	}
	sign := p.pos.Direction.Sign()
	p.stop = stopLoss
	p.pos.StopLossPips = (p.pos.EntryPrice - stopLoss) * sign / v.pipSize
	p.target = takeProfit
	if takeProfit > 0 {
		p.pos.TakeProfitPips = (takeProfit - p.pos.EntryPrice) * sign / v.pipSize
	} else {
		p.pos.TakeProfitPips = 0
	}
	return nil
}

// OnQuote marks open positions and closes those whose stop or target was hit.
func (v *PaperVenue) OnQuote(q models.Quote) {
	v.mu.Lock()
	defer v.mu.Unlock()
	qq := q
	v.last = &qq
	for id, p := range v.open {
		var px float64
		if p.pos.Direction == models.Buy {
			px = q.Bid
		} else {
			px = q.Ask
		}
		sign := p.pos.Direction.Sign()
		p.pos.Pips = (px - p.pos.EntryPrice) * sign / v.pipSize

		hitStop := p.stop > 0 && (px-p.stop)*sign <= 0
		hitTarget := p.target > 0 && (px-p.target)*sign >= 0
		if !hitStop && !hitTarget {
			continue
		}
		p.pos.Status = models.PositionClosed
		v.closed = append(v.closed, *p)
		delete(v.open, id)
		v.log.Info("paper close",
			logger.String("id", id),
			logger.String("label", p.pos.Label),
			logger.Bool("stop", hitStop),
			logger.Float64("pips", p.pos.Pips),
		)
	}
}

// Positions lists open positions ordered by open time.
func (v *PaperVenue) Positions(ctx context.Context) ([]models.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Position, 0, len(v.open))
	for _, p := range v.open {
		out = append(out, p.pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

// ClosedPositions returns closed positions in close order.
func (v *PaperVenue) ClosedPositions() []models.Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Position, 0, len(v.closed))
	for _, p := range v.closed {
		out = append(out, p.pos)
	}
	return out
}

var _ domrepo.Venue = (*PaperVenue)(nil)
