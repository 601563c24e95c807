package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotenceHeader = "x-idempotence"
	idempotenceTTL    = 60 * time.Second
)

// Idempotence rejects a repeated POST or PUT with 409 while the first one is
// in flight and for 60 seconds after it succeeded. Only requests carrying an
// x-idempotence header are tracked, keyed by method, path and header value,
// so a deliberate identical resubmission with a fresh key goes through.
func Idempotence(rdb *redis.Client, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[normalizePath(p)] = struct{}{}
	}

	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut:
		default:
			c.Next()
			return
		}
		if _, ok := skip[normalizePath(c.Request.URL.Path)]; ok {
			c.Next()
			return
		}

		key := resolveIdempotenceKey(c)
		if key == "" {
			c.Next()
			return
		}

		redisKey := fmt.Sprintf("qrdine:idempotence:%s", key)
		ctx := c.Request.Context()

		val, err := rdb.Get(ctx, redisKey).Result()
		if err == nil {
			msg := "An identical request succeeded less than 60 seconds ago"
			if val == "0" {
				msg = "An identical request is still being processed"
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"ok":      0,
				"code":    http.StatusConflict,
				"message": msg,
			})
			return
		}

		if !errors.Is(err, redis.Nil) {
			c.Next()
			return
		}

		if setErr := rdb.Set(ctx, redisKey, "0", idempotenceTTL).Err(); setErr != nil {
			c.Next()
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			rdb.Set(ctx, redisKey, "1", redis.KeepTTL)
		} else {
			rdb.Del(ctx, redisKey)
		}
	}
}

func normalizePath(path string) string {
	return strings.TrimRight(strings.TrimSpace(strings.ToLower(path)), "/")
}

// resolveIdempotenceKey returns the idempotence key for the current request,
// or "" when the client sent none.
func resolveIdempotenceKey(c *gin.Context) string {
	hdr := strings.TrimSpace(c.GetHeader(idempotenceHeader))
	if hdr == "" {
		return ""
	}
	raw := c.Request.Method + "|" + normalizePath(c.Request.URL.Path) + "|" + hdr
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
