// Package ratelimit implements rate limiting logic using Redis or local memory.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Carbonfreezer/multiplayer/internal/v1/config"
	"github.com/Carbonfreezer/multiplayer/internal/v1/logging"
	"github.com/Carbonfreezer/multiplayer/internal/v1/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// RateLimiter holds the rate limiter instances, keyed purely by client IP
// since this relay has no authenticated identity to key on.
type RateLimiter struct {
	wsIP        *limiter.Limiter
	adminIP     *limiter.Limiter
	store       limiter.Store
	redisClient *redis.Client
}

// NewRateLimiter creates a new RateLimiter instance
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	adminIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAdminIP)
	if err != nil {
		return nil, fmt.Errorf("invalid admin IP rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using memory store (Redis disabled)")
	}

	return &RateLimiter{
		wsIP:        limiter.New(store, wsIPRate),
		adminIP:     limiter.New(store, adminIPRate),
		store:       store,
		redisClient: redisClient,
	}, nil
}

// MiddlewareForEndpoint returns a Gin middleware enforcing a per-IP rate limit
// on the given logical endpoint ("ws" or "admin").
func (rl *RateLimiter) MiddlewareForEndpoint(endpoint string) gin.HandlerFunc {
	var limiterInstance *limiter.Limiter
	switch endpoint {
	case "ws":
		limiterInstance = rl.wsIP
	case "admin":
		limiterInstance = rl.adminIP
	default:
		limiterInstance = rl.wsIP
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		ctx := c.Request.Context()

		lctx, err := limiterInstance.Get(ctx, key)
		if err != nil {
			// Fail open: availability of the relay matters more than a missed limit.
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(endpoint).Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(endpoint).Inc()
		c.Next()
	}
}
