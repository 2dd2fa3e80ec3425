package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leon-biju/trading-simulator/internal/auth"
)

func newEngine(authService *auth.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api := r.Group("/api/v1", JWTAuth(authService))
	api.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, auth.OwnerFromContext(c))
	})

	internal := r.Group("/api/v1/internal", InternalAuth("s3cret"))
	internal.POST("/ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthSetsOwner(t *testing.T) {
	svc := auth.NewService("test-secret")
	svc.RegisterAPICredentials("alice", "pw")
	token, err := svc.GenerateToken(auth.Credentials{APIKey: "alice", APISecret: "pw"})
	require.NoError(t, err)

	r := newEngine(svc)

	w := serve(r, http.MethodGet, "/api/v1/whoami", map[string]string{"Authorization": "Bearer " + token.Token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	w = serve(r, http.MethodGet, "/api/v1/whoami", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/api/v1/whoami", map[string]string{"Authorization": "Bearer nonsense"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := auth.NewService("other-secret")
	other.RegisterAPICredentials("alice", "pw")
	forged, err := other.GenerateToken(auth.Credentials{APIKey: "alice", APISecret: "pw"})
	require.NoError(t, err)
	w = serve(r, http.MethodGet, "/api/v1/whoami", map[string]string{"Authorization": "Bearer " + forged.Token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc := auth.NewService("test-secret")
	svc.RegisterAPICredentials("alice", "pw")

	_, err := svc.GenerateToken(auth.Credentials{APIKey: "alice", APISecret: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestInternalAuth(t *testing.T) {
	r := newEngine(auth.NewService("test-secret"))

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/v1/internal/ping", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/v1/internal/ping", map[string]string{"X-Internal-Key": "guess"}).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/api/v1/internal/ping", map[string]string{"X-Internal-Key": "s3cret"}).Code)
}

func TestRateLimiterThrottlesAuthRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter()

	r := gin.New()
	r.Use(rl.Middleware())
	r.POST("/api/v1/auth/token", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/v1/internal/prices", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make(map[int]int)
	for i := 0; i < 8; i++ {
		codes[serve(r, http.MethodPost, "/api/v1/auth/token", nil).Code]++
	}
	assert.Equal(t, 5, codes[http.StatusOK], "burst admits five")
	assert.Equal(t, 3, codes[http.StatusTooManyRequests])

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/internal/prices", nil).Code)
	}
}
