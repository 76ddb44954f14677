package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAPIMetrics(t *testing.T) {
	m := NewAPIMetrics(prometheus.NewRegistry())
	var ok error
	failed := errors.New("boom")
	m.Observe("bars", time.Now(), &ok)
	m.Observe("bars", time.Now(), &failed)
	m.Observe("sizing", time.Now(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("bars")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.errors.WithLabelValues("sizing")))

	var nilMetrics *APIMetrics
	nilMetrics.Observe("bars", time.Now(), &failed)
}
