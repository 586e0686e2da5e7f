package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/adamscao/shotserver/internal/metrics"
)

// Metrics counts finished requests by route template
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		m.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status())
	}
}
