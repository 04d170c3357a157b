package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"quant-backtester/internal/model"
	"quant-backtester/internal/storage"
	"quant-backtester/internal/strategy"
	"quant-backtester/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CandleReader interface {
	RecentCandles(ctx context.Context, symbol, period string, limit int) ([]model.Candle, error)
}

type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (storage.Run, error)
}

type Handler struct {
	dispatcher *worker.Dispatcher
	registry   *strategy.Registry
	candles    CandleReader
	runs       RunReader
	progress   func(worker.Response)
	logger     *zap.Logger
}

// NewHandler wires the HTTP surface. candles, runs and progress may be nil;
// the matching endpoints then answer 503 or skip progress publishing.
func NewHandler(dispatcher *worker.Dispatcher, registry *strategy.Registry, candles CandleReader, runs RunReader,
	progress func(worker.Response), logger *zap.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		registry:   registry,
		candles:    candles,
		runs:       runs,
		progress:   progress,
		logger:     logger,
	}
}

// Routes registers the v1 endpoints on r.
func (h *Handler) Routes(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	{
		v1.POST("/backtest", h.RunBacktest)
		v1.POST("/optimize", h.RunOptimization)
		v1.GET("/agents", h.ListAgents)
		v1.GET("/klines/:symbol", h.GetHistoryKLines)
		v1.GET("/runs/:id", h.GetRun)
	}
}

type runRequest struct {
	// ID is optional; clients that want progress over /ws choose it upfront.
	ID string `json:"id"`
	worker.RunPayload
}

func (h *Handler) RunBacktest(c *gin.Context) {
	h.run(c, worker.TypeRunBacktest)
}

func (h *Handler) RunOptimization(c *gin.Context) {
	h.run(c, worker.TypeRunOptimization)
}

func (h *Handler) run(c *gin.Context, typ worker.RequestType) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Config.AgentID == "" || req.Config.Timeframe == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "config.agentId and config.timeframe are required"})
		return
	}
	if len(req.Candles) == 0 && req.Source == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either candles or source is required"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	payload, err := json.Marshal(req.RunPayload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := h.dispatcher.Handle(c.Request.Context(), worker.Request{Type: typ, ID: req.ID, Payload: payload}, h.progress)
	if resp.Type == worker.ResponseError {
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

func (h *Handler) GetHistoryKLines(c *gin.Context) {
	if h.candles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle store not configured"})
		return
	}
	period := c.DefaultQuery("period", "1m")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 5000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 5000"})
		return
	}

	klines, err := h.candles.RecentCandles(c.Request.Context(), c.Param("symbol"), period, limit)
	if err != nil {
		h.logger.Error("failed to query klines", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, klines)
}

func (h *Handler) GetRun(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run store not configured"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.runs.GetRun(c.Request.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("failed to load run", zap.String("run_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, run)
}
