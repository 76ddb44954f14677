package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/internal/service/ratelimit"
)

var ErrInvalidQuote = errors.New("pipeline: invalid quote")

// Proc is the downstream the pipeline forwards accepted quotes to.
type Proc interface {
	Process(ctx context.Context, q *models.Quote) error
}

// RealtimePipeline sits between the feed and Kafka. It validates quotes,
// throttles them per symbol and buffers them while downstream fails.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	limiter *ratelimit.Limiter
	// transform rewrites accepted quotes, e.g. maps a feed symbol to the traded one
	transform func(*models.Quote) *models.Quote
	bufSize int
	bufCh   chan *models.Quote
	stopCh  chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	started bool

	minBackoff time.Duration
	maxBackoff time.Duration
}

type PipelineOption func(*RealtimePipeline)

// WithRateLimit sets the token bucket per symbol. A zero capacity disables throttling.
func WithRateLimit(capacity, refillPerSec int) PipelineOption {
	return func(p *RealtimePipeline) {
		p.limiter = ratelimit.New(float64(capacity), float64(refillPerSec))
	}
}

func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithTransform(fn func(*models.Quote) *models.Quote) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func WithBackoff(lo, hi time.Duration) PipelineOption {
	return func(p *RealtimePipeline) {
		if lo > 0 && hi >= lo {
			p.minBackoff, p.maxBackoff = lo, hi
		}
	}
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:       proc,
		metrics:    metrics,
		limiter:    ratelimit.New(50, 20),
		bufSize:    1000,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		minBackoff: 50 * time.Millisecond,
		maxBackoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Quote, p.bufSize)
	return p
}

// Start launches the goroutine that retries buffered quotes.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		backoff := p.minBackoff
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case q := <-p.bufCh:
				if err := p.proc.Process(ctx, q); err != nil {
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					backoff = min(2*backoff, p.maxBackoff)
					select {
					case p.bufCh <- q:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
					continue
				}
				backoff = p.minBackoff
			}
		}
	}()
}

// Stop ends the retry goroutine. Buffered quotes are discarded.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
}

// Process validates, throttles and forwards q. A throttled quote is dropped
// without error; a downstream failure buffers q and is returned.
func (p *RealtimePipeline) Process(ctx context.Context, q *models.Quote) error {
	start := time.Now()
	if err := validateQuote(q); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		q = p.transform(q)
		if err := validateQuote(q); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.limiter.Allow(q.Symbol) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	if err := p.proc.Process(ctx, q); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- q:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// Buffered reports how many quotes wait for a retry.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

func validateQuote(q *models.Quote) error {
	switch {
	case q == nil:
		return fmt.Errorf("%w: nil", ErrInvalidQuote)
	case q.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrInvalidQuote)
	case q.Time.IsZero():
		return fmt.Errorf("%w: missing time", ErrInvalidQuote)
	case q.Bid <= 0 || q.Ask <= 0:
		return fmt.Errorf("%w: non-positive price", ErrInvalidQuote)
	case q.Ask < q.Bid:
		return fmt.Errorf("%w: ask %v below bid %v", ErrInvalidQuote, q.Ask, q.Bid)
	}
	return nil
}
