package resilience

import (
	"errors"
	"net"
	"net/textproto"
	"syscall"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// TransientError wraps an error that is safe to retry, with an optional HTTP
// status code for observability.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether the error is worth retrying. It recognizes
// explicit TransientError wraps, Anthropic API errors with a retryable
// status, transient FTP replies, and network-level timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// Structuring calls surface the API's HTTP status on the SDK error.
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return IsTransientHTTPStatus(apiErr.StatusCode)
	}

	// FTP 4yz replies are transient negative completions (RFC 959): the
	// same command can be reissued. 5yz replies are permanent.
	var ftpErr *textproto.Error
	if errors.As(err, &ftpErr) {
		return ftpErr.Code >= 400 && ftpErr.Code < 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED)
}

// IsTransientHTTPStatus reports whether the status code indicates a
// rate-limit or server-side condition that is safe to retry. 529 is
// Anthropic's overloaded_error.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504, // Gateway Timeout
		529: // Overloaded
		return true
	default:
		return false
	}
}
