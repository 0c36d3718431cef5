package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrMissingAPIKey     = errors.New("completion API key is not configured")
	ErrMalformedResponse = errors.New("malformed completion response")
)

// StatusError is returned when the completion service answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion service status %d: %s", e.Code, e.Body)
}

// ErrorType categorizes completion failures.
type ErrorType string

const (
	ErrTypeConfig    ErrorType = "config"       // missing credential
	ErrTypeTimeout   ErrorType = "timeout"      // deadline exceeded
	ErrTypeNetwork   ErrorType = "network"      // dial, reset, DNS
	ErrTypeRateLimit ErrorType = "rate_limit"   // 429
	ErrTypeServer    ErrorType = "server_error" // 5xx
	ErrTypeClient    ErrorType = "client_error" // other 4xx
	ErrTypeMalformed ErrorType = "malformed"
	ErrTypeCanceled  ErrorType = "canceled"
	ErrTypeUnknown   ErrorType = "unknown"
)

// CompletionError classifies an error and says whether another attempt may succeed.
type CompletionError struct {
	Type      ErrorType
	Retryable bool
	Err       error
}

func (e *CompletionError) Error() string { return e.Err.Error() }
func (e *CompletionError) Unwrap() error { return e.Err }

func ClassifyError(err error) *CompletionError {
	ce := &CompletionError{Type: ErrTypeUnknown, Err: err}

	var statusErr *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrMissingAPIKey):
		ce.Type = ErrTypeConfig
	case errors.Is(err, ErrMalformedResponse):
		ce.Type = ErrTypeMalformed
	case errors.Is(err, context.Canceled):
		ce.Type = ErrTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		ce.Type, ce.Retryable = ErrTypeTimeout, true
	case errors.As(err, &statusErr):
		switch {
		case statusErr.Code == http.StatusTooManyRequests:
			ce.Type, ce.Retryable = ErrTypeRateLimit, true
		case statusErr.Code >= 500:
			ce.Type, ce.Retryable = ErrTypeServer, true
		default:
			ce.Type = ErrTypeClient
		}
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			ce.Type = ErrTypeTimeout
		} else {
			ce.Type = ErrTypeNetwork
		}
		ce.Retryable = true
	}
	return ce
}

// FallbackReply is the text delivered to the user when the completion fails.
func FallbackReply(err error) string {
	return fmt.Sprintf("I'm sorry, I encountered an error processing your request. Error: %v", err)
}
