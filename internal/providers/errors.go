package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

// ProviderError is a failed call to one provider. It is absorbed by the
// fallback loop.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: request timed out", e.Provider)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 200))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s: request failed", e.Provider)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func requestError(provider string, err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return err
	}
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &ProviderError{Provider: provider, Timeout: timeout, Err: err}
}

func statusError(provider string, resp *resty.Response) error {
	return &ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode(),
		Body:       resp.String(),
		Err:        fmt.Errorf("unexpected status %s", resp.Status()),
	}
}

func malformedError(provider, format string, args ...interface{}) error {
	return &ProviderError{Provider: provider, Err: fmt.Errorf(format, args...)}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
