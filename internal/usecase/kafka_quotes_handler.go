package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	pkgkafka "SessionBreak/pkg/kafka"
	"SessionBreak/pkg/util"
)

// QuoteSink receives decoded quotes.
type QuoteSink interface {
	HandleQuote(ctx context.Context, q models.Quote) (*TickResult, error)
}

// KafkaQuotesHandler feeds the quotes topic into the engine runner.
type KafkaQuotesHandler struct {
	topic   string
	sink    QuoteSink
	metrics domrepo.Metrics
}

func NewKafkaQuotesHandler(topic string, sink QuoteSink, metrics domrepo.Metrics) *KafkaQuotesHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &KafkaQuotesHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaQuotesHandler) Topic() string { return h.topic }

// Handle decodes {symbol, bid, ask, t}; t may be seconds or milliseconds.
// Tick failures are not redelivered: a replayed quote would tick the engine twice.
func (h *KafkaQuotesHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		Bid    float64 `json:"bid"`
		Ask    float64 `json:"ask"`
		T      int64   `json:"t"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode quote: %w", err)
	}
	if m.T <= 0 || m.Bid <= 0 || m.Ask <= 0 {
		h.metrics.RecordError("consumer_invalid")
		return &pkgkafka.HookError{Code: "ERR_VALIDATION", Err: errors.New("quote without time or price")}
	}
	q := models.Quote{Symbol: m.Symbol, Bid: m.Bid, Ask: m.Ask, Time: util.UnixAuto(m.T)}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(q.Time).Seconds())

	_, _ = h.sink.HandleQuote(ctx, q)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaQuotesHandler)(nil)
