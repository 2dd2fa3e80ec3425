package portfolio

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/leon-biju/trading-simulator/internal/auth"
	"github.com/leon-biju/trading-simulator/internal/types"
	"github.com/leon-biju/trading-simulator/pkg/response"
)

// GinHandlers contains HTTP handlers for portfolio endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates new portfolio handlers
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

func limitParam(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 500 {
		response.ValidationFailed(c, "limit must be between 0 and 500")
		return 0, false
	}
	return n, true
}

func ownerOrAbort(c *gin.Context) (string, bool) {
	owner := auth.OwnerFromContext(c)
	if owner == "" {
		response.Unauthorized(c, "Invalid client ID in token")
		return "", false
	}
	return owner, true
}

// PendingOrdersHandler lists the caller's pending orders, oldest first
func (h *GinHandlers) PendingOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerOrAbort(c)
		if !ok {
			return
		}
		limit, ok := limitParam(c, DefaultPendingLimit)
		if !ok {
			return
		}

		orders, err := h.service.PendingOrdersForOwner(c.Request.Context(), owner, limit)
		response.Handle(c, orders, err)
	}
}

// PositionsHandler lists the caller's open positions with valuations
func (h *GinHandlers) PositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerOrAbort(c)
		if !ok {
			return
		}

		positions, err := h.service.OpenPositions(c.Request.Context(), owner)
		response.Handle(c, positions, err)
	}
}

// TradesHandler lists the caller's trades, newest first
func (h *GinHandlers) TradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerOrAbort(c)
		if !ok {
			return
		}
		limit, ok := limitParam(c, 50)
		if !ok {
			return
		}

		trades, err := h.service.Trades(c.Request.Context(), owner, limit)
		response.Handle(c, trades, err)
	}
}

// OrderSummaryHandler counts the caller's orders per status
func (h *GinHandlers) OrderSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerOrAbort(c)
		if !ok {
			return
		}

		summary, err := h.service.OrderSummary(c.Request.Context(), owner)
		response.Handle(c, summary, err)
	}
}

// ScopePendingOrdersHandler lists pending orders for an asset or exchange
// scope. Internal only.
func (h *GinHandlers) ScopePendingOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := limitParam(c, 0)
		if !ok {
			return
		}

		offExchange, err := strconv.ParseBool(c.DefaultQuery("off_exchange", "false"))
		if err != nil {
			response.ValidationFailed(c, "off_exchange must be a boolean")
			return
		}

		scope := Scope{
			Owner:       c.Query("owner"),
			Exchange:    strings.ToUpper(c.Query("exchange")),
			OrderType:   types.OrderType(strings.ToUpper(c.Query("order_type"))),
			Limit:       limit,
			OffExchange: offExchange,
		}
		if assets := c.Query("assets"); assets != "" {
			scope.Assets = strings.Split(assets, ",")
		}

		orders, err := h.service.PendingOrdersForScope(c.Request.Context(), scope)
		response.Handle(c, orders, err)
	}
}

// HistoryHandler lists the caller's daily portfolio snapshots, oldest first.
// days defaults to 30; 0 returns the full history.
func (h *GinHandlers) HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := ownerOrAbort(c)
		if !ok {
			return
		}
		days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
		if err != nil || days < 0 || days > 3650 {
			response.ValidationFailed(c, "days must be between 0 and 3650")
			return
		}

		history, err := h.service.History(c.Request.Context(), owner, days)
		response.Handle(c, history, err)
	}
}

// SnapshotAllHandler snapshots every owner's portfolio. Internal only.
func (h *GinHandlers) SnapshotAllHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.SnapshotAll(c.Request.Context())
		response.Handle(c, result, err)
	}
}
