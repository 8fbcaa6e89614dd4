package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrJobNotFound          = errors.New("job not found")
	ErrInvalidJobTransition = errors.New("invalid job state transition")
	ErrNoProviders          = errors.New("no translation providers available")
	ErrUnknownTable         = errors.New("no active field mappings for table")
)

// ValidationError is a malformed request. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// RateLimitError tells the caller to back off for RetryAfter.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d requests per minute exceeded, retry in %s", e.Limit, e.RetryAfter.Round(time.Second))
}

// AllProvidersFailedError is returned once every provider failed on every attempt.
type AllProvidersFailedError struct {
	Attempts int
	LastErr  error
}

func (e *AllProvidersFailedError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("all translation providers failed after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("all translation providers failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *AllProvidersFailedError) Unwrap() error {
	return e.LastErr
}
