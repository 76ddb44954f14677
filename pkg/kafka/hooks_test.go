package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookChain_OrderAndPanic(t *testing.T) {
	var calls []string
	rec := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
				calls = append(calls, "before:"+name)
				return ctx, km, d, nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				calls = append(calls, "after:"+name)
			},
		}
	}
	chain := NewHookChain(rec("a"), nil, rec("b"))
	ctx, _, _, err := chain.BeforeHandle(context.Background(), "quotes", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	chain.AfterHandle(ctx, "quotes", kafka.Message{}, []byte("x"), nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, calls)

	var onErr error
	panicky := HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		},
		Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { onErr = err },
	}
	_, _, _, err = NewHookChain(panicky).BeforeHandle(context.Background(), "quotes", kafka.Message{}, nil)
	var herr *HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "ERR_PANIC", herr.Code)
	assert.Equal(t, err, onErr)
}

func TestTimingHookAndRejectEmpty(t *testing.T) {
	var topic string
	var seconds float64 = -1
	h := TimingHook(func(tp string, s float64) { topic, seconds = tp, s })

	ctx, _, _, err := h.BeforeHandle(context.Background(), "executions", kafka.Message{}, []byte("{}"))
	require.NoError(t, err)
	start, ok := StartTime(ctx)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), start, time.Second)
	h.AfterHandle(ctx, "executions", kafka.Message{}, nil, nil)
	assert.Equal(t, "executions", topic)
	assert.GreaterOrEqual(t, seconds, 0.0)

	_, _, _, err = RejectEmpty().BeforeHandle(context.Background(), "quotes", kafka.Message{}, nil)
	var herr *HookError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, "ERR_VALIDATION", herr.Code)
}

func TestBackoffBounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoff(50*time.Millisecond, 2*time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue("raw")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), b)

	b, err = encodeValue(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))
}
