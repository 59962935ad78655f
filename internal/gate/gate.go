// Package gate implements the request gate guarding every scrape: CORS
// decisions from an origin allow-list, API-key authentication, and per-client
// fixed window rate limiting. Ordering is fixed: CORS headers are computed on
// every request (rejected ones included), authentication runs before rate
// limiting on gated routes, and the health route skips authentication but not
// rate limiting.
package gate

import (
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// noOrigin is the sentinel for requests without an Origin header, which
// covers local file-based callers.
const noOrigin = "no-origin"

const (
	headerAPIKey        = "X-API-Key"
	queryAPIKey         = "api_key"
	headerTotalRequests = "Rate-Limiting-Total-Requests"
	headerExpiresAt     = "Rate-Limiting-Expires-At"
)

var rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "caseproxy_gate_rejections_total",
	Help: "Requests rejected by the gate, by reason.",
}, []string{"reason"})

// Gate bundles the three checks with their configuration.
type Gate struct {
	apiKey   []byte
	origins  map[string]struct{}
	strategy Strategy
	limit    uint64
	window   time.Duration
	logger   *log.Logger
}

// New creates a Gate. strategy decides where the rate counters live.
func New(apiKey string, allowedOrigins []string, strategy Strategy, limit uint64, window time.Duration, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.New(log.Writer(), "[GATE] ", log.LstdFlags)
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Gate{
		apiKey:   []byte(apiKey),
		origins:  origins,
		strategy: strategy,
		limit:    limit,
		window:   window,
		logger:   logger,
	}
}

// CORS computes the allow headers for every request and short-circuits
// preflights with a bare success status.
func (g *Gate) CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if origin == "" {
				origin = noOrigin
			}
			h := c.Response().Header()
			if origin == noOrigin {
				h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			} else if _, ok := g.origins[origin]; ok {
				h.Set(echo.HeaderAccessControlAllowOrigin, origin)
			}
			h.Set(echo.HeaderAccessControlAllowMethods, "GET, OPTIONS")
			h.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, X-API-Key")

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}

// APIKeyAuth requires the configured key via the X-API-Key header or the
// api_key query parameter. Missing key maps to 401, mismatched key to 403.
func (g *Gate) APIKeyAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(headerAPIKey)
			if key == "" {
				key = c.QueryParam(queryAPIKey)
			}
			if key == "" {
				rejections.WithLabelValues("unauthenticated").Inc()
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error":   "unauthenticated",
					"message": "API key required via X-API-Key header or api_key query parameter",
				})
			}
			if subtle.ConstantTimeCompare([]byte(key), g.apiKey) != 1 {
				rejections.WithLabelValues("forbidden").Inc()
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":   "forbidden",
					"message": "invalid API key",
				})
			}
			return next(c)
		}
	}
}

// RateLimit applies the fixed window limit keyed by client address. A
// strategy failure is a server error, not an open gate.
func (g *Gate) RateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res, err := g.strategy.Execute(c.Request().Context(), &Request{
				Key:    c.RealIP(),
				Limit:  g.limit,
				Window: g.window,
			})
			if err != nil {
				g.logger.Printf("rate limit check failed for %s: %v", c.RealIP(), err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "rate limit check failed"})
			}

			h := c.Response().Header()
			h.Set(headerTotalRequests, strconv.FormatUint(res.TotalRequests, 10))
			h.Set(headerExpiresAt, res.ExpiresAt.Format(time.RFC3339))

			if res.State == Deny {
				rejections.WithLabelValues("rate_limited").Inc()
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":   "rate limit exceeded",
					"message": fmt.Sprintf("too many requests from this address, retry after %s", res.ExpiresAt.Format(time.RFC3339)),
				})
			}
			return next(c)
		}
	}
}
