package errors

import (
	stderrors "errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"portfolio_translation_go_backend/internal/services"

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
	ErrorTypeTooManyRequests     ErrorType = "TOO_MANY_REQUESTS"
	ErrorTypeBadGateway          ErrorType = "BAD_GATEWAY"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
	RetryAfter time.Duration
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

// New401Error creates a new unauthorized error
func New401Error() *CustomError {
	return newError(ErrorTypeUnauthorized, "Unauthorized access", http.StatusUnauthorized, nil)
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

// New429Error tells the client to retry after retryAfter.
func New429Error(message string, retryAfter time.Duration) *CustomError {
	e := newError(ErrorTypeTooManyRequests, message, http.StatusTooManyRequests, nil)
	e.RetryAfter = retryAfter
	return e
}

// New502Error reports that every upstream translation provider failed.
func New502Error(message string, internal error) *CustomError {
	return newError(ErrorTypeBadGateway, message, http.StatusBadGateway, internal)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// FromError maps domain errors onto HTTP errors. Unknown errors become 500s.
func FromError(err error) *CustomError {
	var (
		customErr    *CustomError
		validation   *services.ValidationError
		rateLimit    *services.RateLimitError
		allProviders *services.AllProvidersFailedError
	)
	switch {
	case stderrors.As(err, &customErr):
		return customErr
	case stderrors.As(err, &validation):
		return New400Error(validation.Error())
	case stderrors.As(err, &rateLimit):
		return New429Error(rateLimit.Error(), rateLimit.RetryAfter)
	case stderrors.As(err, &allProviders):
		return New502Error(allProviders.Error(), err)
	case stderrors.Is(err, services.ErrJobNotFound):
		return New404Error("Job not found")
	case stderrors.Is(err, services.ErrUnknownTable):
		return New404Error(err.Error())
	case stderrors.Is(err, services.ErrInvalidJobTransition):
		return New409Error(err.Error())
	default:
		return New500Error(err)
	}
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	customErr := FromError(err)

	switch customErr.Type {
	case ErrorTypeInternalServerError:
		log.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Internal Server Error")
	case ErrorTypeBadGateway:
		log.Warn().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Translation providers unavailable")
	case ErrorTypeTooManyRequests:
		seconds := int(math.Ceil(customErr.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
	}

	c.AbortWithStatusJSON(customErr.StatusCode, gin.H{
		"error": gin.H{
			"type":    customErr.Type,
			"message": customErr.Message,
		},
	})
}
