package trading

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leon-biju/trading-simulator/internal/auth"
	"github.com/leon-biju/trading-simulator/internal/types"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newRouter(h *harness, owner string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handlers := NewGinHandlers(h.service)

	r := gin.New()
	withOwner := func(c *gin.Context) {
		if owner != "" {
			c.Set(auth.ContextOwnerKey, owner)
		}
		c.Next()
	}
	orders := r.Group("/api/v1/orders", withOwner)
	orders.POST("", handlers.CreateOrderHandler())
	orders.GET("/:order_id", handlers.GetOrderStatusHandler())
	orders.POST("/:order_id/cancel", handlers.CancelOrderHandler())
	r.POST("/api/v1/internal/execution/:order_id", handlers.ExecuteOrderHandler())
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestCreateOrderHandler(t *testing.T) {
	h := newHarness(t)
	r := newRouter(h, "alice")

	w, env := do(t, r, http.MethodPost, "/api/v1/orders", map[string]string{
		"asset": "ACME", "side": "BUY", "order_type": "MARKET", "quantity": "5",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)

	var order types.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, types.OrderStatusFilled, order.Status)
	assert.Equal(t, "alice", order.Owner)

	w, env = do(t, r, http.MethodGet, "/api/v1/orders/"+order.OrderID, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
}

func TestCreateOrderHandlerErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]string
		wantCode int
		wantErr  string
	}{
		{
			name:     "zero quantity",
			body:     map[string]string{"asset": "ACME", "side": "BUY", "order_type": "MARKET", "quantity": "0"},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_FAILED",
		},
		{
			name:     "bad side",
			body:     map[string]string{"asset": "ACME", "side": "HOLD", "order_type": "MARKET", "quantity": "1"},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION_FAILED",
		},
		{
			name:     "insufficient funds",
			body:     map[string]string{"asset": "ACME", "side": "BUY", "order_type": "MARKET", "quantity": "50"},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "INSUFFICIENT_FUNDS",
		},
		{
			name:     "no position",
			body:     map[string]string{"asset": "ACME", "side": "SELL", "order_type": "MARKET", "quantity": "1"},
			wantCode: http.StatusNotFound,
			wantErr:  "NO_POSITION",
		},
		{
			name:     "unknown asset",
			body:     map[string]string{"asset": "NOPE", "side": "BUY", "order_type": "MARKET", "quantity": "1"},
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			r := newRouter(h, "alice")

			w, env := do(t, r, http.MethodPost, "/api/v1/orders", tt.body, nil)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantErr, env.Error.Code)
		})
	}
}

func TestCreateOrderHandlerRequiresOwner(t *testing.T) {
	h := newHarness(t)
	r := newRouter(h, "")

	w, _ := do(t, r, http.MethodPost, "/api/v1/orders", map[string]string{
		"asset": "ACME", "side": "BUY", "order_type": "MARKET", "quantity": "1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrderHandlerHonoursIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	h.calendar.SetOverride("LSE", false)
	r := newRouter(h, "alice")
	body := map[string]string{"asset": "ACME", "side": "BUY", "order_type": "MARKET", "quantity": "1"}
	headers := map[string]string{"Idempotency-Key": "abc"}

	_, first := do(t, r, http.MethodPost, "/api/v1/orders", body, headers)
	_, second := do(t, r, http.MethodPost, "/api/v1/orders", body, headers)

	var a, b types.Order
	require.NoError(t, json.Unmarshal(first.Data, &a))
	require.NoError(t, json.Unmarshal(second.Data, &b))
	assert.Equal(t, a.OrderID, b.OrderID)
}

func TestCancelAndExecuteHandlers(t *testing.T) {
	h := newHarness(t)
	h.calendar.SetOverride("LSE", false)
	r := newRouter(h, "alice")

	_, env := do(t, r, http.MethodPost, "/api/v1/orders", map[string]string{
		"asset": "ACME", "side": "BUY", "order_type": "MARKET", "quantity": "1",
	}, nil)
	var pending types.Order
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Equal(t, types.OrderStatusPending, pending.Status)

	w, env := do(t, r, http.MethodPost, "/api/v1/internal/execution/"+pending.OrderID, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var result struct {
		Executed bool `json:"executed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.False(t, result.Executed)

	w, _ = do(t, r, http.MethodPost, "/api/v1/orders/"+pending.OrderID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, env = do(t, r, http.MethodPost, "/api/v1/orders/"+pending.OrderID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)
}
