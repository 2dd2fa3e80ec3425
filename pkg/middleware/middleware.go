package middleware

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leon-biju/trading-simulator/internal/auth"
	"github.com/leon-biju/trading-simulator/pkg/response"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller and route family.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	authLimit    rate.Limit
	tradingLimit rate.Limit
	readLimit    rate.Limit
	burst        int
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors:     make(map[string]*visitor),
		authLimit:    rate.Limit(10.0 / 60.0),   // 10 requests per minute
		tradingLimit: rate.Limit(120.0 / 60.0),  // 120 requests per minute
		readLimit:    rate.Limit(1000.0 / 60.0), // 1000 requests per minute
		burst:        5,
	}
}

func (rl *RateLimiter) limitFor(method, path string) rate.Limit {
	switch {
	case strings.HasPrefix(path, "/api/v1/auth"):
		return rl.authLimit
	case strings.HasPrefix(path, "/api/v1/internal"):
		return rate.Inf
	case method == "GET":
		return rl.readLimit
	case strings.HasPrefix(path, "/api/v1/orders"):
		return rl.tradingLimit
	default:
		return rate.Inf
	}
}

func (rl *RateLimiter) getLimiter(method, path, caller string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := caller + ":" + method + ":" + path
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.limitFor(method, path), rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup drops visitors idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if time.Since(v.lastSeen) > maxIdle {
			delete(rl.visitors, key)
		}
	}
}

// Middleware returns the gin handler enforcing the limits.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := auth.OwnerFromContext(c)
		if caller == "" {
			caller = c.ClientIP()
		}

		if !rl.getLimiter(c.Request.Method, c.FullPath(), caller).Allow() {
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// JWTAuth authenticates the caller and stores the owner in the context.
func JWTAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "Invalid authorization header")
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set(auth.ContextOwnerKey, claims.ClientID)
		c.Next()
	}
}

// InternalAuth admits callers presenting the shared internal key in
// X-Internal-Key. Schedulers and operators use these routes.
func InternalAuth(internalKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Internal-Key")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(internalKey)) != 1 {
			log.Warn().Str("path", c.FullPath()).Str("ip", c.ClientIP()).Msg("rejected internal request")
			response.Unauthorized(c, "Internal key required")
			c.Abort()
			return
		}

		c.Next()
	}
}
