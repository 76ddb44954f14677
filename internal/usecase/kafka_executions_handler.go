package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	pkgkafka "SessionBreak/pkg/kafka"
	"SessionBreak/pkg/logger"
)

// KafkaExecutionsHandler keeps the position book in line with the venue's reports.
type KafkaExecutionsHandler struct {
	topic   string
	book    domrepo.PositionBook
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewKafkaExecutionsHandler(topic string, book domrepo.PositionBook, metrics domrepo.Metrics, log *logger.Logger) *KafkaExecutionsHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaExecutionsHandler{topic: topic, book: book, metrics: metrics, log: log}
}

func (h *KafkaExecutionsHandler) Topic() string { return h.topic }

func (h *KafkaExecutionsHandler) Handle(ctx context.Context, b []byte) error {
	var rep models.ExecutionReport
	if err := json.Unmarshal(b, &rep); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode execution report: %w", err)
	}
	if rep.Position.Label == "" {
		h.metrics.RecordError("consumer_invalid")
		return &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: errors.New("execution report without label")}
	}

	pos := rep.Position
	var err error
	switch rep.Event {
	case "open", "modified":
		pos.Status = models.PositionOpen
		err = h.book.Put(ctx, pos)
	case "closed", "rejected":
		err = h.book.Remove(ctx, pos.Label)
	default:
		h.metrics.RecordError("consumer_invalid")
		return &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: fmt.Errorf("unknown execution event %q", rep.Event)}
	}
	if err != nil {
		h.metrics.RecordError("position_book")
		return fmt.Errorf("apply %s report: %w", rep.Event, err)
	}
	h.log.Info("execution report applied",
		logger.String("event", rep.Event),
		logger.String("label", pos.Label),
		logger.String("position", pos.ID),
		logger.String("reason", rep.Reason),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaExecutionsHandler)(nil)
