package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/internal/service/metrics"
	"SessionBreak/internal/services/features"
	"SessionBreak/internal/services/venue"
	"SessionBreak/internal/usecase"
	xlogger "SessionBreak/pkg/logger"
	"SessionBreak/pkg/queue"
)

type staticBars struct{ bars []models.Bar }

func (s staticBars) Init(context.Context) error                     { return nil }
func (s staticBars) Health(context.Context) error                   { return nil }
func (s staticBars) Store(context.Context, models.Bar) error        { return nil }
func (s staticBars) StoreBatch(context.Context, []models.Bar) error { return nil }
func (s staticBars) GetBars(_ context.Context, _ string, from, to time.Time, _ domrepo.Timeframe) ([]models.Bar, error) {
	return s.bars, nil
}
func (s staticBars) GetLatestBars(_ context.Context, _ string, n int, _ domrepo.Timeframe) ([]models.Bar, error) {
	if n < len(s.bars) {
		return s.bars[len(s.bars)-n:], nil
	}
	return s.bars, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, positions PositionsFunc) (*echo.Echo, *usecase.EngineRunner) {
	t.Helper()
	series := features.NewBarSeries(64)
	paper := venue.NewPaperVenue(1, nil)
	cfg := usecase.EngineConfig{
		Symbol:     "XAUUSD",
		Sessions:   []usecase.SessionConfig{{Label: "GoldenEye", Enabled: true, StartHour: 16, EndHour: 19}},
		RiskAmount: 1000,
		Instrument: models.Instrument{Symbol: "XAUUSD", PipSize: 1, PipValue: 10, LotSize: 1000, VolumeStep: 1000, VolumeMin: 1000},
	}
	engine, err := usecase.NewStrategyEngine(cfg, series, paper)
	require.NoError(t, err)
	runner := usecase.NewEngineRunner(engine, series, domrepo.TF30m, usecase.WithQuoteListener(paper))

	t0 := time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)
	history := usecase.NewBarHistory(staticBars{bars: []models.Bar{
		{Symbol: "XAUUSD", Time: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Symbol: "XAUUSD", Time: t0.Add(30 * time.Minute), Open: 1.5, High: 2, Low: 1, Close: 1.8},
	}}, "XAUUSD")

	alerts := queue.NewAlertBook(10)
	alerts.Add(xlogger.AggregatedLogEntry{Level: "error", Message: "feed down", Count: 3})

	h := NewStrategyEchoHandler(xlogger.Nop(), runner, history, positions, alerts, metrics.NewAPIMetrics(prometheus.NewRegistry()))
	e := echo.New()
	h.RegisterRoutes(e)
	return e, runner
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestSessionsEndpoints(t *testing.T) {
	e, runner := newTestServer(t, nil)
	_, err := runner.HandleQuote(context.Background(), models.Quote{
		Symbol: "XAUUSD", Bid: 2317, Ask: 2317.2, Time: time.Date(2024, 3, 5, 16, 5, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	code, env := do(t, e, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, code)
	var st statusResponse
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "XAUUSD", st.Symbol)
	assert.Equal(t, "30m", st.Timeframe)
	require.NotNil(t, st.LastQuote)
	assert.Equal(t, 2317.0, st.LastQuote.Bid)
	require.Len(t, st.Sessions, 1)
	assert.True(t, st.Sessions[0].Inside)

	code, env = do(t, e, http.MethodGet, "/api/sessions/GoldenEye", "")
	require.Equal(t, http.StatusOK, code)
	var snap models.SessionSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "GoldenEye", snap.Label)

	code, _ = do(t, e, http.MethodGet, "/api/sessions/Area51", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSizingEndpoint(t *testing.T) {
	e, _ := newTestServer(t, nil)

	code, env := do(t, e, http.MethodPost, "/api/sizing", `{"stop_loss_pips":2.5}`)
	require.Equal(t, http.StatusOK, code)
	var res models.SizingResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 40000.0, res.Volume)
	assert.Equal(t, 1000.0, res.RiskAmount)

	code, _ = do(t, e, http.MethodPost, "/api/sizing", `{"stop_loss_pips":0}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodPost, "/api/sizing", `{"stop_loss_pips":5000}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestPositionsEndpoint(t *testing.T) {
	e, _ := newTestServer(t, func(context.Context) ([]models.Position, error) {
		return []models.Position{{ID: "p1", Label: "GoldenEye", Status: models.PositionOpen}}, nil
	})
	code, env := do(t, e, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"total":1`)

	e, _ = newTestServer(t, func(context.Context) ([]models.Position, error) { return nil, errors.New("redis down") })
	code, _ = do(t, e, http.MethodGet, "/api/positions", "")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestBarsEndpoint(t *testing.T) {
	e, _ := newTestServer(t, nil)

	code, env := do(t, e, http.MethodGet, "/api/bars?n=1&tf=30m", "")
	require.Equal(t, http.StatusOK, code)
	var res usecase.BarsResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Count)

	code, _ = do(t, e, http.MethodGet, "/api/bars?tf=2h", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodGet, "/api/bars?from=2024-03-05T18:00:00Z&to=2024-03-05T16:00:00Z", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodGet, "/api/bars?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAlertsEndpoint(t *testing.T) {
	e, _ := newTestServer(t, nil)
	code, env := do(t, e, http.MethodGet, "/api/alerts?n=5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "feed down")
}
