package util

import (
	"edutest_backend/pkg/logger"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData is used when the client needs state back with the failure,
// e.g. the preserved answers of a submit that could not be persisted.
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err), zap.String("path", c.FullPath()))
	InternalServerError(c)
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidationError(err):
		return http.StatusBadRequest
	case IsPersistenceError(err):
		return http.StatusServiceUnavailable
	case IsCollaboratorError(err):
		return http.StatusBadGateway
	case errors.Is(err, ErrTestNotFound), errors.Is(err, ErrSubmissionNotFound), errors.Is(err, ErrNoActiveSession):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrSessionNotInProgress), errors.Is(err, ErrSubmissionPending):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Fail writes err using StatusFor; unknown errors are logged and hidden.
func Fail(c *gin.Context, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		LogInternalError(c, err)
		return
	}
	Error(c, code, err.Error())
}
