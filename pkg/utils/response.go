package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "fleetwatch/pkg/errors"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func SuccessResponse(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, Response{
		Success: false,
		Error:   message,
	})
}

// AppErrorResponse writes err with the status matching its code. Errors
// that are not AppErrors are reported as internal errors without detail.
func AppErrorResponse(c *gin.Context, err error) {
	appErr, ok := appErrors.As(err)
	if !ok {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "internal server error",
			Code:    appErrors.CodeInternal,
		})
		return
	}

	c.JSON(StatusFor(appErr.Code), Response{
		Success: false,
		Error:   appErr.Message,
		Code:    appErr.Code,
	})
}

func StatusFor(code string) int {
	switch code {
	case appErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case appErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case appErrors.CodeNotFound:
		return http.StatusNotFound
	case appErrors.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
