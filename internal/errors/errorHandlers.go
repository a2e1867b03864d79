package errors

import (
	stderrors "errors"
	"net/http"

	"etkash_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden           ErrorType = "FORBIDDEN"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeConflict            ErrorType = "CONFLICT"
	ErrorTypeQuotaExceeded       ErrorType = "QUOTA_EXCEEDED"
	ErrorTypeTooManyRequests     ErrorType = "TOO_MANY_REQUESTS"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// New400Error creates a new bad request error
func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// New401Error creates a new unauthorized error. An empty message falls back
// to a generic one.
func New401Error(message string) *CustomError {
	if message == "" {
		message = "Unauthorized access"
	}
	return newError(ErrorTypeUnauthorized, message, http.StatusUnauthorized, nil)
}

// New403Error creates a new forbidden error
func New403Error() *CustomError {
	return newError(ErrorTypeForbidden, "Access forbidden", http.StatusForbidden, nil)
}

// New404Error creates a new not found error
func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

func New409Error(message string) *CustomError {
	return newError(ErrorTypeConflict, message, http.StatusConflict, nil)
}

func New429Error() *CustomError {
	return newError(ErrorTypeTooManyRequests, "Too many requests, try again later", http.StatusTooManyRequests, nil)
}

// NewQuotaExceededError is reported as 400 so clients treat it like any other
// rejected input rather than a server fault.
func NewQuotaExceededError() *CustomError {
	return newError(ErrorTypeQuotaExceeded, "Token usage exceeds monthly limit", http.StatusBadRequest, services.ErrQuotaExceeded)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// FromDomain maps service-layer errors onto HTTP errors. Anything unknown is
// an internal error.
func FromDomain(err error) *CustomError {
	var customErr *CustomError
	switch {
	case stderrors.As(err, &customErr):
		return customErr
	case stderrors.Is(err, services.ErrQuotaExceeded):
		return NewQuotaExceededError()
	case stderrors.Is(err, services.ErrQuotaNotFound):
		return New404Error("Token usage record not found")
	case stderrors.Is(err, services.ErrUserNotFound):
		return New404Error("User not found")
	case stderrors.Is(err, services.ErrSessionNotFound):
		return New404Error("Chat session not found")
	case stderrors.Is(err, services.ErrConflict):
		return New409Error("User with this email or username already exists")
	case stderrors.Is(err, services.ErrQuotaExists):
		return New409Error("Token usage record already exists")
	case stderrors.Is(err, services.ErrInvalidAmount),
		stderrors.Is(err, services.ErrInvalidLimit),
		stderrors.Is(err, services.ErrInvalidClientID):
		return New400Error(err.Error())
	default:
		return New500Error(err)
	}
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	customErr := FromDomain(err)

	// Log internal server errors
	if customErr.Type == ErrorTypeInternalServerError {
		log.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Internal Server Error")
	}

	c.AbortWithStatusJSON(customErr.StatusCode, gin.H{
		"error": gin.H{
			"type":    customErr.Type,
			"message": customErr.Message,
		},
	})
}

// LogAndReturn500 logs an internal error and returns a 500 error
func LogAndReturn500(internal error) *CustomError {
	log.Error().Err(internal).Msg("Internal Server Error")
	return New500Error(internal)
}
