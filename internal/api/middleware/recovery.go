package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/api/response"
	"github.com/adamscao/shotserver/internal/apperr"
)

// Recovery turns a handler panic into a generic 500
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("path", c.Request.URL.Path).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered")
				if !c.Writer.Written() {
					response.RespondError(c, http.StatusInternalServerError, apperr.CodeInternal, "Internal server error")
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
