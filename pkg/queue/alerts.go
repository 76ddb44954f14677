package queue

import (
	"context"
	"sync"

	"SessionBreak/pkg/logger"
)

// AlertBook keeps the most recent aggregated error entries in a ring.
// It can stand in for a queue publisher when Redis is not configured.
type AlertBook struct {
	mu    sync.RWMutex
	ring  []logger.AggregatedLogEntry
	next  int
	count int
}

func NewAlertBook(capacity int) *AlertBook {
	if capacity <= 0 {
		capacity = 500
	}
	return &AlertBook{ring: make([]logger.AggregatedLogEntry, capacity)}
}

func (b *AlertBook) Add(entries ...logger.AggregatedLogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range entries {
		b.ring[b.next] = e
		b.next = (b.next + 1) % len(b.ring)
		if b.count < len(b.ring) {
			b.count++
		}
	}
}

// Recent returns up to n entries, newest first.
func (b *AlertBook) Recent(n int) []logger.AggregatedLogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]logger.AggregatedLogEntry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (b.next - i + len(b.ring)) % len(b.ring)
		out = append(out, b.ring[idx])
	}
	return out
}

// PublishMessage records the payload directly, ignoring the topic.
func (b *AlertBook) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	entries, err := ParsePayload[[]logger.AggregatedLogEntry](payload)
	if err != nil {
		return err
	}
	b.Add(*entries...)
	return nil
}

// AlertJob consumes aggregated error batches from the queue into an AlertBook.
type AlertJob struct {
	topic string
	book  *AlertBook
}

func NewAlertJob(topic string, book *AlertBook) *AlertJob {
	return &AlertJob{topic: topic, book: book}
}

func (j *AlertJob) Name() string { return "alert-book" }
func (j *AlertJob) Type() string { return j.topic }

func (j *AlertJob) Handle(ctx context.Context, payload interface{}) error {
	return j.book.PublishMessage(ctx, j.topic, payload)
}
