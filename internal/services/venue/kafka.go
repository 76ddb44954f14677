package venue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/pkg/cache"
	"SessionBreak/pkg/logger"
)

// ErrOrderInFlight is returned when another order for the same label holds the lock.
var ErrOrderInFlight = errors.New("venue: order in flight for label")

const (
	CommandMarketOrder = "market_order"
	CommandModify      = "modify"
)

// Command is the message written to the orders topic.
type Command struct {
	Type   string                `json:"type"`
	Order  *models.OrderRequest  `json:"order,omitempty"`
	Modify *models.ModifyRequest `json:"modify,omitempty"`
}

// Publisher is satisfied by pkg/kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaVenue sends commands to an external executor and answers position
// queries from the book that execution reports keep current. A submitted
// order is booked as pending so the label stays occupied until the fill.
type KafkaVenue struct {
	pub     Publisher
	topic   string
	book    domrepo.PositionBook
	locks   cache.Service
	lockTTL time.Duration
	pipSize float64
	log     *logger.Logger
	now     func() time.Time
}

func NewKafkaVenue(pub Publisher, topic string, book domrepo.PositionBook, locks cache.Service, pipSize float64, log *logger.Logger) *KafkaVenue {
	if pipSize <= 0 {
		pipSize = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaVenue{
		pub:     pub,
		topic:   topic,
		book:    book,
		locks:   locks,
		lockTTL: 10 * time.Second,
		pipSize: pipSize,
		log:     log,
		now:     time.Now,
	}
}

func (v *KafkaVenue) SubmitMarketOrder(ctx context.Context, req models.OrderRequest) (*models.Position, error) {
	if req.Volume <= 0 || req.Label == "" {
		return nil, fmt.Errorf("%w: label %q volume %v", ErrInvalidOrder, req.Label, req.Volume)
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	lockKey := cache.GenerateKey("lock", "order", req.Symbol, req.Label)
	ok, err := v.locks.TryLock(ctx, lockKey, v.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("order lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderInFlight, req.Label)
	}
	defer func() {
		if err := v.locks.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
			v.log.Warn("order unlock failed", logger.String("label", req.Label), logger.Error(err))
		}
	}()

	opened := req.Time
	if opened.IsZero() {
		opened = v.now().UTC()
	}
	pos := models.Position{
		ID:             req.ID,
		Label:          req.Label,
		Symbol:         req.Symbol,
		Direction:      req.Direction,
		Volume:         req.Volume,
		StopLossPips:   req.StopLossPips,
		TakeProfitPips: req.TakeProfitPips,
		Status:         models.PositionPending,
		OpenedAt:       opened,
	}
	// booked before publishing so the label is occupied once the order is on the wire
	if err := v.book.Put(ctx, pos); err != nil {
		return nil, fmt.Errorf("book pending position: %w", err)
	}
	if err := v.pub.Publish(ctx, v.topic, []byte(req.Label), Command{Type: CommandMarketOrder, Order: &req}); err != nil {
		if rerr := v.book.Remove(context.WithoutCancel(ctx), req.Label); rerr != nil {
			v.log.Warn("pending position not removed", logger.String("label", req.Label), logger.Error(rerr))
		}
		return nil, fmt.Errorf("publish order: %w", err)
	}
	v.log.Info("order published",
		logger.String("id", req.ID),
		logger.String("label", req.Label),
		logger.String("direction", string(req.Direction)),
		logger.Float64("volume", req.Volume),
	)
	return &pos, nil
}

// FindOpenPosition returns the booked position of label when it is pending or open.
func (v *KafkaVenue) FindOpenPosition(ctx context.Context, label string) (*models.Position, error) {
	p, err := v.book.Get(ctx, label)
	if err != nil || p == nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, nil
	}
	return p, nil
}

// ModifyPosition publishes the new prices and updates the booked distances so
// the same move is not requested again before the executor confirms it.
func (v *KafkaVenue) ModifyPosition(ctx context.Context, pos models.Position, stopLoss, takeProfit float64) error {
	req := models.ModifyRequest{
		ID:         uuid.New().String(),
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Label:      pos.Label,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Time:       v.now().UTC(),
	}
	if err := v.pub.Publish(ctx, v.topic, []byte(pos.Label), Command{Type: CommandModify, Modify: &req}); err != nil {
		return fmt.Errorf("publish modify: %w", err)
	}

	sign := pos.Direction.Sign()
	pos.StopLossPips = (pos.EntryPrice - stopLoss) * sign / v.pipSize
	if takeProfit > 0 {
		pos.TakeProfitPips = (takeProfit - pos.EntryPrice) * sign / v.pipSize
	} else {
		pos.TakeProfitPips = 0
	}
	if err := v.book.Put(ctx, pos); err != nil {
		return fmt.Errorf("book modified position: %w", err)
	}
	return nil
}

var _ domrepo.Venue = (*KafkaVenue)(nil)
