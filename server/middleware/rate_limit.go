// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// PerClientLimiter rate limits requests per client IP. Limiters are
// created lazily and kept for the lifetime of the server.
type PerClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func NewPerClientLimiter(requestsPerSecond float64, burst int) *PerClientLimiter {
	return &PerClientLimiter{
		clients: make(map[string]*rate.Limiter),
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
	}
}

func (l *PerClientLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.clients[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.clients[key] = limiter
	}
	return limiter
}

// Allow reports whether a request from the given client may proceed.
func (l *PerClientLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

// Middleware rejects over-limit requests with 429.
func (l *PerClientLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}
