// Package response writes JSON bodies and translates service errors into
// HTTP responses.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adamscao/shotserver/internal/apperr"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// RespondError sends an error response
func RespondError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// RespondSuccess sends a success response
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error translates err into its status and body. Internal causes are
// logged and never sent to the client.
func Error(c *gin.Context, err error) {
	e := apperr.From(err)
	status := apperr.HTTPStatus(e.Kind)

	if e.Kind == apperr.KindInternal {
		zerolog.Ctx(c.Request.Context()).Error().
			Err(e.Err).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}

	RespondError(c, status, e.Code, e.Message)
}

// Abort writes err and stops the handler chain
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// GetClientIP gets the client IP address. Forwarding headers are honoured
// only from configured trusted proxies.
func GetClientIP(c *gin.Context) string {
	return c.ClientIP()
}
