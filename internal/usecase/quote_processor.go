package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SessionBreak/internal/domain/models"
	drepo "SessionBreak/internal/domain/repository"
	"SessionBreak/internal/services/features"
	"SessionBreak/pkg/logger"
)

// QuoteProcessor publishes live quotes to Kafka and archives the bars they close.
type QuoteProcessor struct {
	pub     drepo.QuotePublisher
	store   drepo.BarStore
	metrics drepo.Metrics
	log     *logger.Logger

	mu       sync.Mutex
	builders map[string]*features.BarBuilder
	tf       drepo.Timeframe
}

// NewQuoteProcessor builds a processor. store may be nil when ClickHouse is disabled.
func NewQuoteProcessor(pub drepo.QuotePublisher, store drepo.BarStore, metrics drepo.Metrics, tf drepo.Timeframe, log *logger.Logger) *QuoteProcessor {
	if log == nil {
		log = logger.Nop()
	}
	return &QuoteProcessor{
		pub:      pub,
		store:    store,
		metrics:  metrics,
		log:      log,
		builders: make(map[string]*features.BarBuilder),
		tf:       tf,
	}
}

func (p *QuoteProcessor) Process(ctx context.Context, q *models.Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}
	start := time.Now()
	if err := p.pub.Publish(ctx, q); err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process quote: %w", err)
	}
	p.metrics.RecordMessageSent("kafka", q.Symbol)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	if p.store != nil {
		p.archive(ctx, *q)
	}
	return nil
}

// archive never fails the quote: it was already published.
func (p *QuoteProcessor) archive(ctx context.Context, q models.Quote) {
	p.mu.Lock()
	b, ok := p.builders[q.Symbol]
	if !ok {
		b = features.NewBarBuilder(q.Symbol, p.tf)
		p.builders[q.Symbol] = b
	}
	closed, done := b.Add(q)
	p.mu.Unlock()
	if !done {
		return
	}
	if err := p.store.Store(ctx, closed); err != nil {
		p.metrics.RecordError("bar_store")
		p.log.Warn("closed bar not stored",
			logger.String("symbol", closed.Symbol),
			logger.Time("time", closed.Time),
			logger.Error(err),
		)
	}
}

// Flush stores the bars still forming, used at shutdown.
func (p *QuoteProcessor) Flush(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	p.mu.Lock()
	bars := make([]models.Bar, 0, len(p.builders))
	for _, b := range p.builders {
		if bar, ok := b.Flush(); ok {
			bars = append(bars, bar)
		}
	}
	p.mu.Unlock()
	return p.store.StoreBatch(ctx, bars)
}

func (p *QuoteProcessor) Close() error {
	if p.pub == nil {
		return nil
	}
	return p.pub.Close()
}
