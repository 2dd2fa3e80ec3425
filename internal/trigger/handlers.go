package trigger

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leon-biju/trading-simulator/internal/portfolio"
	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/leon-biju/trading-simulator/pkg/response"
)

// GinHandlers exposes sweeps and price injection to internal callers.
type GinHandlers struct {
	processor *Processor
	pipeline  *Pipeline
	maxAge    time.Duration
}

func NewGinHandlers(processor *Processor, pipeline *Pipeline, maxAge time.Duration) *GinHandlers {
	return &GinHandlers{
		processor: processor,
		pipeline:  pipeline,
		maxAge:    maxAge,
	}
}

type sweepRequest struct {
	Owner       string   `json:"owner"`
	Assets      []string `json:"assets"`
	Exchange    string   `json:"exchange"`
	OrderType   string   `json:"order_type" binding:"omitempty,oneof=MARKET LIMIT"`
	OffExchange bool     `json:"off_exchange"`
	Limit       int      `json:"limit" binding:"gte=0"`
}

type expireRequest struct {
	MaxAge string `json:"max_age"`
}

type pricesRequest struct {
	Ticks []Tick `json:"ticks" binding:"required,min=1,dive"`
}

// SweepScopeHandler runs ProcessPendingOrders for the posted scope.
func (h *GinHandlers) SweepScopeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sweepRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}

		scope := portfolio.Scope{
			Owner:       req.Owner,
			Assets:      req.Assets,
			Exchange:    strings.ToUpper(req.Exchange),
			OrderType:   types.OrderType(req.OrderType),
			Limit:       req.Limit,
			OffExchange: req.OffExchange,
		}
		result, err := h.processor.ProcessPendingOrders(c.Request.Context(), scope)
		response.Handle(c, result, err)
	}
}

// ExpireHandler expires orders older than max_age, or the configured
// default when it is omitted.
func (h *GinHandlers) ExpireHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req expireRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				response.ValidationFailed(c, err.Error())
				return
			}
		}

		maxAge := h.maxAge
		if req.MaxAge != "" {
			d, err := time.ParseDuration(req.MaxAge)
			if err != nil || d < 0 {
				response.ValidationFailed(c, "max_age must be a non-negative duration")
				return
			}
			maxAge = d
		}

		result, err := h.processor.ExpireStaleOrders(c.Request.Context(), maxAge)
		response.Handle(c, result, err)
	}
}

// PricesHandler pushes ticks through the pipeline as if they came from
// the feed.
func (h *GinHandlers) PricesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req pricesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}

		result, err := h.pipeline.OnTick(c.Request.Context(), req.Ticks...)
		response.Handle(c, result, err)
	}
}
