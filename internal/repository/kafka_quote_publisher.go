package repository

import (
	"context"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	pkgkafka "SessionBreak/pkg/kafka"
)

// QuoteMessage is the wire shape of the quotes topic. T is unix milliseconds.
type QuoteMessage struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	T      int64   `json:"t"`
}

func NewQuoteMessage(q *models.Quote) QuoteMessage {
	return QuoteMessage{Symbol: q.Symbol, Bid: q.Bid, Ask: q.Ask, T: q.Time.UnixMilli()}
}

// KafkaQuotePublisher writes quotes keyed by symbol so one symbol stays ordered.
type KafkaQuotePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaQuotePublisher(producer *pkgkafka.Producer, topic string) *KafkaQuotePublisher {
	return &KafkaQuotePublisher{producer: producer, topic: topic}
}

func (p *KafkaQuotePublisher) Publish(ctx context.Context, q *models.Quote) error {
	return p.producer.Publish(ctx, p.topic, []byte(q.Symbol), NewQuoteMessage(q))
}

func (p *KafkaQuotePublisher) PublishBatch(ctx context.Context, quotes []*models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(quotes))
	for i, q := range quotes {
		msgs[i] = pkgkafka.Message{Key: []byte(q.Symbol), Value: NewQuoteMessage(q)}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaQuotePublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

var _ domrepo.QuotePublisher = (*KafkaQuotePublisher)(nil)
