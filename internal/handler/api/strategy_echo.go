package api

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"SessionBreak/internal/domain/models"
	domrepo "SessionBreak/internal/domain/repository"
	"SessionBreak/internal/service/metrics"
	"SessionBreak/internal/services/risk"
	"SessionBreak/internal/usecase"
	xhttp "SessionBreak/pkg/http"
	xlogger "SessionBreak/pkg/logger"
	"SessionBreak/pkg/queue"
	"SessionBreak/pkg/util"
)

// PositionsFunc lists the positions the engine currently holds.
type PositionsFunc func(ctx context.Context) ([]models.Position, error)

// StrategyEchoHandler serves the read-only status API of the engine.
type StrategyEchoHandler struct {
	logger    *xlogger.Logger
	runner    *usecase.EngineRunner
	history   *usecase.BarHistory
	positions PositionsFunc
	alerts    *queue.AlertBook
	metrics   *metrics.APIMetrics
}

func NewStrategyEchoHandler(
	logger *xlogger.Logger,
	runner *usecase.EngineRunner,
	history *usecase.BarHistory,
	positions PositionsFunc,
	alerts *queue.AlertBook,
	apiMetrics *metrics.APIMetrics,
) *StrategyEchoHandler {
	return &StrategyEchoHandler{
		logger:    logger,
		runner:    runner,
		history:   history,
		positions: positions,
		alerts:    alerts,
		metrics:   apiMetrics,
	}
}

func (h *StrategyEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/sessions", h.Sessions)
	g.GET("/sessions/:label", h.Session)
	g.GET("/positions", h.Positions)
	g.POST("/sizing", h.Sizing)
	g.GET("/bars", h.Bars)
	g.GET("/alerts", h.Alerts)
}

type trendStatus struct {
	Value float64 `json:"value"`
	Ready bool    `json:"ready"`
}

type statusResponse struct {
	Symbol    string                   `json:"symbol"`
	Timeframe string                   `json:"timeframe"`
	LastQuote *models.Quote            `json:"last_quote,omitempty"`
	Trend     trendStatus              `json:"trend"`
	Sessions  []models.SessionSnapshot `json:"sessions"`
}

func (h *StrategyEchoHandler) Sessions(c echo.Context) error {
	defer h.metrics.Observe("sessions", time.Now(), nil)
	v, ok := h.runner.TrendValue()
	res := statusResponse{
		Symbol:    h.runner.Symbol(),
		Timeframe: string(h.runner.Timeframe()),
		Trend:     trendStatus{Value: v, Ready: ok},
		Sessions:  h.runner.Snapshots(),
	}
	if q := h.runner.LastQuote(); !q.Time.IsZero() {
		res.LastQuote = &q
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StrategyEchoHandler) Session(c echo.Context) error {
	label := c.Param("label")
	snap, ok := h.runner.Snapshot(label)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("session %q is not running", label))
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *StrategyEchoHandler) Positions(c echo.Context) (err error) {
	defer h.metrics.Observe("positions", time.Now(), &err)
	if h.positions == nil {
		return xhttp.ListResponse(c, []models.Position{}, 0)
	}
	list, err := h.positions(c.Request().Context())
	if err != nil {
		h.logger.Error("positions lookup failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("positions unavailable").WithError(err))
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *StrategyEchoHandler) Sizing(c echo.Context) (err error) {
	defer h.metrics.Observe("sizing", time.Now(), &err)
	req := &models.SizingRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.runner.Size(*req)
	if err != nil {
		code := "ERR_SIZING"
		if errors.Is(err, risk.ErrBelowMinimumVolume) {
			code = "ERR_BELOW_MIN_VOLUME"
		}
		return xhttp.AppErrorResponse(c, xhttp.UnprocessableErrorf(code, "%v", err).WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StrategyEchoHandler) Bars(c echo.Context) (err error) {
	defer h.metrics.Observe("bars", time.Now(), &err)
	req := &models.BarsRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	q := usecase.BarsQuery{Timeframe: domrepo.NormalizeTimeframe(req.TF), Limit: req.N}
	if req.From != "" || req.To != "" {
		from, okFrom := util.ParseTime(req.From)
		to, okTo := util.ParseTime(req.To)
		if !okFrom || !okTo {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from and to must both be valid times"))
		}
		q.From, q.To = from, to
	}
	res, err := h.history.Bars(c.Request().Context(), q)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidQuery) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
		}
		h.logger.Error("bars usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("bars unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *StrategyEchoHandler) Alerts(c echo.Context) error {
	req := &models.AlertsRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.alerts == nil {
		return xhttp.ListResponse(c, []xlogger.AggregatedLogEntry{}, 0)
	}
	rows := h.alerts.Recent(req.N)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

var _ xhttp.Handler = (*StrategyEchoHandler)(nil)
