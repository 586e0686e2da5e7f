package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adamscao/shotserver/internal/api/response"
	"github.com/adamscao/shotserver/internal/apperr"
	"github.com/adamscao/shotserver/internal/guard"
	"github.com/adamscao/shotserver/internal/metrics"
)

// RateLimit admits requests through the per-IP limiter. Preflight requests
// and paths under exemptPrefix bypass it.
func RateLimit(limiter *guard.RateLimiter, m *metrics.Metrics, exemptPrefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions ||
			(exemptPrefix != "" && strings.HasPrefix(c.Request.URL.Path, exemptPrefix)) {
			c.Next()
			return
		}

		ok, retryAfter := limiter.Admit(response.GetClientIP(c), time.Now())
		if !ok {
			m.RateLimited()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			response.Abort(c, apperr.RateLimited())
			return
		}

		c.Next()
	}
}
