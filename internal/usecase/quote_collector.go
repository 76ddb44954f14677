package usecase

import (
	"context"

	"SessionBreak/internal/domain/models"
	drepo "SessionBreak/internal/domain/repository"
	mid "SessionBreak/internal/middleware"
	"SessionBreak/pkg/logger"
)

// QuoteCollector reads the live feed and pushes quotes through the pipeline.
type QuoteCollector struct {
	stream  drepo.QuoteStream
	proc    *QuoteProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
	log     *logger.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewQuoteCollector(stream drepo.QuoteStream, proc *QuoteProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline, log *logger.Logger) *QuoteCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &QuoteCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe, log: log, done: make(chan struct{})}
}

func (c *QuoteCollector) IsConnected() bool { return c.stream.IsConnected() }

func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	go c.run(ctx)
	return nil
}

type droppedCounter interface {
	Dropped() uint64
}

func (c *QuoteCollector) run(ctx context.Context) {
	defer close(c.done)
	for {
		quotes, errs := c.stream.Read(ctx)
		c.consume(ctx, quotes)
		if ctx.Err() != nil {
			return
		}
		if err := <-errs; err != nil {
			c.metrics.RecordError("stream")
			c.log.Warn("feed stream ended, reconnecting", logger.Error(err))
		}
		if d, ok := c.stream.(droppedCounter); ok && d.Dropped() > 0 {
			c.log.Warn("feed dropped quotes on full buffer", logger.Int64("dropped", int64(d.Dropped())))
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.metrics.RecordError("stream_reconnect")
			c.log.Error("feed reconnect failed", logger.Error(err))
		}
	}
}

func (c *QuoteCollector) consume(ctx context.Context, quotes <-chan *models.Quote) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-quotes:
			if !ok {
				return
			}
			var err error
			if c.pipe != nil {
				err = c.pipe.Process(ctx, q)
			} else {
				err = c.proc.Process(ctx, q)
			}
			if err != nil {
				c.log.Debug("quote not forwarded", logger.String("symbol", q.Symbol), logger.Error(err))
				continue
			}
			c.metrics.RecordLastPrice(q.Symbol, q.Bid)
		}
	}
}

// Shutdown stops the pipeline, closes the feed and flushes forming bars.
func (c *QuoteCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	err := c.stream.Close()
	if c.cancel != nil {
		select {
		case <-c.done:
		case <-ctx.Done():
		}
	}
	if ferr := c.proc.Flush(ctx); ferr != nil && err == nil {
		err = ferr
	}
	return err
}
