// Package middleware provides HTTP middleware shared by the catalogue API:
// distributed rate limiting backed by Redis and security response headers.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/piwi3910/catweave/internal/auth"
)

// RateLimiter provides distributed rate limiting using Redis. It implements
// a token bucket so that limits hold across all catalogue replicas sharing
// the same Redis.
type RateLimiter struct {
	client redis.UniversalClient
	logger *zap.Logger
	config *RateLimitConfig
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active
	Enabled bool

	// PerActor configures per-actor rate limits. Requests without an
	// authenticated actor are keyed by client IP.
	PerActor ActorLimitConfig

	// Global configures a limit across all callers
	Global GlobalLimitConfig

	// RedisClient is the Redis client for distributed limiting
	RedisClient redis.UniversalClient
}

// ActorLimitConfig configures per-actor rate limits.
type ActorLimitConfig struct {
	RequestsPerSecond int
	BurstSize         int
}

// GlobalLimitConfig configures global rate limits.
type GlobalLimitConfig struct {
	RequestsPerSecond int
}

// BurstSize returns the burst size for global limits, defaulting to twice
// the configured rate.
func (g *GlobalLimitConfig) BurstSize() int {
	if g.RequestsPerSecond == 0 {
		return 0
	}
	return g.RequestsPerSecond * 2
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config *RateLimitConfig, logger *zap.Logger) (*RateLimiter, error) {
	if config == nil {
		return nil, fmt.Errorf("rate limit config cannot be nil")
	}
	if config.RedisClient == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := config.RedisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RateLimiter{
		client: config.RedisClient,
		logger: logger,
		config: config,
	}, nil
}

// Middleware returns a Gin middleware function for rate limiting.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		caller := callerKey(c)

		if rl.config.PerActor.RequestsPerSecond > 0 {
			if !rl.checkLimit(ctx, c, fmt.Sprintf("ratelimit:actor:%s", caller),
				rl.config.PerActor.RequestsPerSecond, rl.config.PerActor.BurstSize) {
				return
			}
		}

		if rl.config.Global.RequestsPerSecond > 0 {
			if !rl.checkLimit(ctx, c, "ratelimit:global",
				rl.config.Global.RequestsPerSecond, rl.config.Global.BurstSize()) {
				return
			}
		}

		c.Next()
	}
}

// checkLimit checks if the request is within the rate limit using a token
// bucket. Returns true if allowed, false if the limit is exceeded.
func (rl *RateLimiter) checkLimit(ctx context.Context, c *gin.Context, key string, requestsPerSecond, burstSize int) bool {
	now := time.Now().Unix()
	windowSize := int64(1) // 1 second window

	// Lua script for atomic token bucket check and update
	script := `
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local rate = tonumber(ARGV[2])
		local burst = tonumber(ARGV[3])
		local window = tonumber(ARGV[4])

		local tokens_key = key .. ":tokens"
		local timestamp_key = key .. ":ts"

		local tokens = tonumber(redis.call('GET', tokens_key) or burst)
		local last_update = tonumber(redis.call('GET', timestamp_key) or now)

		local elapsed = now - last_update
		local tokens_to_add = elapsed * rate
		tokens = math.min(burst, tokens + tokens_to_add)

		if tokens >= 1 then
			tokens = tokens - 1
			redis.call('SET', tokens_key, tokens, 'EX', window * 2)
			redis.call('SET', timestamp_key, now, 'EX', window * 2)
			return {1, tokens, burst}
		else
			return {0, 0, burst}
		end
	`

	result, err := rl.client.Eval(ctx, script, []string{key}, now, requestsPerSecond, burstSize, windowSize).Result()
	if err != nil {
		rl.logger.Error("rate limit check failed",
			zap.String("key", key),
			zap.Error(err),
		)
		// Fail open: allow the request if Redis fails
		return true
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		rl.logger.Error("invalid rate limit result format")
		return true
	}

	allowed := resultSlice[0].(int64) == 1
	remaining := resultSlice[1].(int64)
	limit := resultSlice[2].(int64)

	c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(now+windowSize, 10))

	if !allowed {
		c.Header("Retry-After", strconv.FormatInt(windowSize, 10))

		rl.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("client_ip", c.ClientIP()),
		)

		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"retry_after": windowSize,
		})
		c.Abort()
		return false
	}

	return true
}

// callerKey derives the limiting key for a request. Authenticated requests
// are keyed by the acting user's email so limits follow the actor across
// machines; anonymous requests fall back to client IP.
func callerKey(c *gin.Context) string {
	if actor, ok := auth.ActorFromContext(c.Request.Context()); ok && actor.Email != "" {
		return actor.Email
	}
	return c.ClientIP()
}
