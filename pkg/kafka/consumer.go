package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"SessionBreak/pkg/logger"
)

// MessageHandler handles the messages of one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type partitionKey struct {
	topic     string
	partition int
}

type delivery struct {
	topic string
	km    kafka.Message
}

// Consumer reads every registered topic through a worker pool. Messages of
// one partition are handled one at a time; offsets are committed after
// success or after the message was dead-lettered.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	hook     ConsumerHook
	dlq      *kafka.Writer

	queue    chan delivery
	locksMu  sync.Mutex
	locks    map[partitionKey]*sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "sessionbreak",
		WorkerCount: 1,
		BufferSize:  256,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer: brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		hook:     NoopHook{},
		queue:    make(chan delivery, cfg.BufferSize),
		locks:    make(map[partitionKey]*sync.Mutex),
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	consumerMetricsOnce.Do(registerConsumerMetrics)
	return c, nil
}

// RegisterHandler must be called before Start. A second handler for a topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("kafka handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

// WithConsumerHook replaces the lifecycle hook.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return errors.New("kafka consumer: no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.work()
	}
	for topic, r := range c.readers {
		c.wg.Add(1)
		go c.fetch(topic, r)
	}
	c.log.Info("kafka consumer started",
		logger.String("group", c.cfg.GroupID),
		logger.Int("topics", len(c.readers)),
		logger.Int("workers", c.cfg.WorkerCount),
	)
	return nil
}

// Stop cancels fetching, waits for the workers and closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		c.cancel()
		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		}
		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close kafka reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
		c.log.Info("kafka consumer stopped")
	})
	return err
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	defer c.wg.Done()
	for {
		km, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn("kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			if !sleepCtx(c.ctx, time.Second) {
				return
			}
			continue
		}
		select {
		case c.queue <- delivery{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.queue)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) work() {
	defer c.wg.Done()
	for {
		select {
		case d := <-c.queue:
			c.process(d)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) process(d delivery) {
	h, ok := c.handlers[d.topic]
	if !ok {
		return
	}
	lock := c.partitionLock(d.topic, d.km.Partition)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	err := c.handleWithRetry(h, d)
	consumerHandleLatency.WithLabelValues(d.topic).Observe(time.Since(start).Seconds())

	if err != nil {
		consumerFailures.WithLabelValues(d.topic).Inc()
		c.log.Error("kafka message failed",
			logger.String("topic", d.topic),
			logger.Int("partition", d.km.Partition),
			logger.Int64("offset", d.km.Offset),
			logger.Error(err),
		)
		if !c.deadLetter(d) {
			return
		}
	}
	c.commit(d)
}

func (c *Consumer) handleWithRetry(h MessageHandler, d delivery) (err error) {
	for attempt := 1; ; attempt++ {
		err = c.handleOnce(h, d)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		var herr *HookError
		if errors.As(err, &herr) {
			return err
		}
		c.hook.OnError(c.ctx, d.topic, d.km, d.km.Value, err)
		if !sleepCtx(c.ctx, backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return err
		}
	}
}

func (c *Consumer) handleOnce(h MessageHandler, d delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	ctx, km, data, err := c.hook.BeforeHandle(c.ctx, d.topic, d.km, d.km.Value)
	if err != nil {
		return err
	}
	err = h.Handle(ctx, data)
	c.hook.AfterHandle(ctx, d.topic, km, data, err)
	return err
}

func (c *Consumer) deadLetter(d delivery) bool {
	if c.dlq == nil {
		return false
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     d.km.Key,
		Value:   d.km.Value,
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(d.topic)}},
	})
	if err != nil {
		c.log.Error("kafka dead-letter write failed", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(d delivery) {
	r := c.readers[d.topic]
	if r == nil {
		return
	}
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := r.CommitMessages(ctx, d.km)
		cancel()
		if err == nil {
			return
		}
		if attempt == 3 {
			c.log.Warn("kafka commit failed", logger.String("topic", d.topic), logger.Error(err))
			return
		}
		time.Sleep(backoff(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	k := partitionKey{topic, partition}
	l, ok := c.locks[k]
	if !ok {
		l = &sync.Mutex{}
		c.locks[k] = l
	}
	return l
}

// backoff doubles from lo per attempt up to hi and removes up to half as jitter.
func backoff(lo, hi time.Duration, attempt int) time.Duration {
	if lo <= 0 {
		lo = 50 * time.Millisecond
	}
	if hi < lo {
		hi = lo
	}
	d := lo << uint(attempt-1)
	if d > hi || d <= 0 {
		d = hi
	}
	if half := int64(d) / 2; half > 0 {
		d -= time.Duration(rand.Int63n(half))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var (
	consumerMetricsOnce   sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerFailures      *prometheus.CounterVec
)

func registerConsumerMetrics() {
	consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sessionbreak_kafka_consumer_queue_depth",
		Help: "Fetched messages waiting for a worker",
	}, []string{"topic"})
	consumerHandleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "sessionbreak_kafka_consumer_handle_seconds",
		Help: "Handling time per message including retries",
	}, []string{"topic"})
	consumerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessionbreak_kafka_consumer_failures_total",
		Help: "Messages that exhausted their retries",
	}, []string{"topic"})
}
