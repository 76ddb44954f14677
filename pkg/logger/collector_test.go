package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
}

func (c *capturePublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (c *capturePublisher) all() []AggregatedLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func TestLogCollector_AggregatesDuplicates(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "alerts", Publisher: pub})

	c.AddLog("error", "tick failed", map[string]interface{}{"label": "GoldenEye"}, "engine.go:10")
	c.AddLog("error", "tick failed", map[string]interface{}{"label": "GoldenEye"}, "engine.go:10")
	c.AddLog("error", "tick failed", map[string]interface{}{"label": "Area51"}, "engine.go:10")
	c.Close()

	entries := pub.all()
	require.Len(t, entries, 2)
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Fields["label"].(string)] = e.Count
	}
	assert.Equal(t, 2, counts["GoldenEye"])
	assert.Equal(t, 1, counts["Area51"])
}

func TestLogger_ErrorFeedsCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Topic: "alerts", Publisher: pub})

	l.Error("venue rejected order", String("label", "GoldenEye"), Error(errors.New("no margin")))
	l.Info("not collected")
	l.RemoveCollector()

	entries := pub.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "venue rejected order", entries[0].Message)
	assert.Equal(t, "no margin", entries[0].Fields["error"])
	assert.Contains(t, entries[0].Caller, "collector_test.go")
}
