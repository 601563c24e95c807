package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultRateLimit = 50
	rateLimitWindow  = time.Second
)

var now = time.Now

// RateLimit caps anonymous clients at limit requests per second per IP using
// a fixed one-second window in Redis. Staff requests are not limited. Redis
// errors let the request through.
func RateLimit(rdb *redis.Client, limit int, log *zap.Logger) gin.HandlerFunc {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	return func(c *gin.Context) {
		if rdb == nil || IsAuthenticated(c) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("qrdine:rate_limit:%s:%d", ip, now().Unix())

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, rateLimitWindow+time.Second)
		}

		if count > int64(limit) {
			if count == int64(limit)+1 && log != nil {
				log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			}
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"ok":      0,
				"code":    http.StatusTooManyRequests,
				"message": "Too many requests, please slow down",
			})
			return
		}

		c.Next()
	}
}
