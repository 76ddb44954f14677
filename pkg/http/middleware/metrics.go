package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SessionBreak/pkg/logger"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionbreak",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status class",
		}, []string{"route", "method", "class"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sessionbreak",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sessionbreak",
			Name:      "http_in_flight_requests",
			Help:      "Requests being served",
		}),
	}
}

// Metrics records request counts and latency labelled by the echo route
// template, and logs 5xx answers and requests slower than slow.
func Metrics(reg prometheus.Registerer, log *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := newHTTPMetrics(reg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			m.inFlight.Dec()

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			status := c.Response().Status
			d := time.Since(start)
			m.requests.WithLabelValues(route, method, StatusClass(status)).Inc()
			m.duration.WithLabelValues(route, method).Observe(d.Seconds())

			switch {
			case status >= 500:
				log.Error("http request failed",
					logger.String("route", route),
					logger.String("method", method),
					logger.String("status", strconv.Itoa(status)),
					logger.Duration("duration_ms", d),
				)
			case slow > 0 && d >= slow:
				log.Warn("http request slow",
					logger.String("route", route),
					logger.String("method", method),
					logger.Duration("duration_ms", d),
				)
			}
			return nil
		}
	}
}

func StatusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
