package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/leon-biju/trading-simulator/internal/types"
)

func TestHandleMapsErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", fmt.Errorf("quantity: %w", types.ErrValidation), http.StatusBadRequest, ErrCodeValidationFailed},
		{"insufficient funds", fmt.Errorf("need 10: %w", types.ErrInsufficientFunds), http.StatusUnprocessableEntity, ErrCodeInsufficientFunds},
		{"insufficient holdings", types.ErrInsufficientHoldings, http.StatusUnprocessableEntity, ErrCodeInsufficientHoldings},
		{"rejected wins over funds", fmt.Errorf("x: %w: %w", types.ErrOrderRejected, types.ErrInsufficientFunds), http.StatusUnprocessableEntity, ErrCodeOrderRejected},
		{"no position", types.ErrNoPosition, http.StatusNotFound, ErrCodeNoPosition},
		{"not found", types.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"gorm not found", gorm.ErrRecordNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"price unavailable", types.ErrPriceUnavailable, http.StatusServiceUnavailable, ErrCodePriceUnavailable},
		{"invalid state", types.ErrInvalidState, http.StatusConflict, ErrCodeInvalidState},
		{"unknown", errors.New("disk full"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

			Handle(c, nil, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestSuccessStatusFollowsMethod(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for method, want := range map[string]int{http.MethodGet: http.StatusOK, http.MethodPost: http.StatusCreated} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(method, "/", nil)

		Handle(c, map[string]string{"ok": "yes"}, nil)
		assert.Equal(t, want, w.Code, method)
	}
}
