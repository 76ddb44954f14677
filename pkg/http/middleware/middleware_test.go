package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionBreak/pkg/logger"
)

func TestMetricsAndRecover(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := echo.New()
	e.Use(Metrics(reg, logger.Nop(), time.Second))
	e.Use(Recover(logger.Nop()))
	e.GET("/api/sessions/:label", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Param("label"))
	})
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/GoldenEye", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GoldenEye", rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	m := newHTTPMetricsProbe(t, reg)
	assert.Equal(t, 1.0, m("/api/sessions/:label", "2xx"))
	assert.Equal(t, 1.0, m("/boom", "5xx"))
}

func newHTTPMetricsProbe(t *testing.T, reg *prometheus.Registry) func(route, class string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	return func(route, class string) float64 {
		for _, f := range families {
			if f.GetName() != "sessionbreak_http_requests_total" {
				continue
			}
			for _, m := range f.GetMetric() {
				labels := map[string]string{}
				for _, l := range m.GetLabel() {
					labels[l.GetName()] = l.GetValue()
				}
				if labels["route"] == route && labels["class"] == class {
					return m.GetCounter().GetValue()
				}
			}
		}
		return 0
	}
}

func TestCORSPreflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{AllowOrigins: []string{"*"}, AllowMethods: []string{http.MethodGet}}))
	e.GET("/api/alerts", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/alerts", nil)
	req.Header.Set(echo.HeaderOrigin, "http://dash.local")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://dash.local", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, http.MethodGet, rec.Header().Get(echo.HeaderAccessControlAllowMethods))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(204))
	assert.Equal(t, "4xx", StatusClass(422))
	assert.Equal(t, "5xx", StatusClass(503))
}
