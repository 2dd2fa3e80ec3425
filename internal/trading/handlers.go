package trading

import (
	"github.com/gin-gonic/gin"

	"github.com/leon-biju/trading-simulator/internal/auth"
	"github.com/leon-biju/trading-simulator/pkg/response"
	"github.com/leon-biju/trading-simulator/pkg/validation"
)

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	validation.Register()
	return &GinHandlers{
		service: service,
	}
}

// executionResult is returned by the internal execution endpoint.
type executionResult struct {
	OrderID  string      `json:"order_id"`
	Executed bool        `json:"executed"`
	Trade    interface{} `json:"trade,omitempty"`
}

// CreateOrderHandler handles POST requests to place orders.
// An optional Idempotency-Key header makes retries return the first order.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := auth.OwnerFromContext(c)
		if owner == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		var req PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		req.Owner = owner
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")

		order, err := h.service.PlaceOrder(c.Request.Context(), req)
		response.Handle(c, order, err)
	}
}

// GetOrderStatusHandler handles GET requests for a single order
// URL parameter: order_id
func (h *GinHandlers) GetOrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := auth.OwnerFromContext(c)
		if owner == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		order, err := h.service.GetOrder(c.Request.Context(), c.Param("order_id"), owner)
		response.Handle(c, order, err)
	}
}

// CancelOrderHandler handles POST requests to cancel a pending order
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := auth.OwnerFromContext(c)
		if owner == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		order, err := h.service.CancelOrder(c.Request.Context(), c.Param("order_id"), owner)
		response.Handle(c, order, err)
	}
}

// ExecuteOrderHandler handles internal POST requests to execute a pending
// order now. A 201 with executed=false means conditions were not met.
func (h *GinHandlers) ExecuteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("order_id")

		trade, err := h.service.ExecutePendingOrder(c.Request.Context(), orderID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		result := executionResult{OrderID: orderID, Executed: trade != nil}
		if trade != nil {
			result.Trade = trade
		}
		response.Success(c, result)
	}
}
