package httptransport

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"kani-tts-server/internal/platform/errors"
)

// APIResponse is the uniform JSON envelope for every API route.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a success envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(httpStatus, APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondError writes a failure envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	})
}

// RespondDomainError maps a domain error to its HTTP shape. Rate limited
// responses include a Retry-After hint.
func RespondDomainError(c *gin.Context, err error) {
	typed := errors.Convert(err)

	status := http.StatusInternalServerError
	switch typed.Kind {
	case errors.KindInvalidInput, errors.KindNarrationTooLong:
		status = http.StatusBadRequest
	case errors.KindForbidden:
		status = http.StatusForbidden
	case errors.KindNotFound:
		status = http.StatusNotFound
	case errors.KindVoiceUnavailable, errors.KindNotReady:
		status = http.StatusConflict
	case errors.KindRateLimited:
		status = http.StatusTooManyRequests
		if typed.RetryAfter > 0 {
			seconds := int(math.Ceil(typed.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
	case errors.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	RespondError(c, status, typed.Message, gin.H{"kind": string(typed.Kind)})
}
