package sitediff

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Application error codes.
const (
	ECONFLICT = "conflict"
	EINTERNAL = "internal"
	EINVALID  = "invalid"
	ENOTFOUND = "not_found"

	// Pipeline error codes.
	EFETCH   = "fetch"
	EEXTRACT = "extract"
	EPARSE   = "parse"
	ESTATE   = "state"
)

// Error represents an application-specific error.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return EFETCH
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error".
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return "Internal error"
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// FetchError reports a failed page retrieval. Retryable distinguishes
// transient failures (network, timeout, 5xx, 429) from terminal ones
// (other 4xx, cancellation).
type FetchError struct {
	URL        string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s failed", e.URL)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewStatusError classifies an HTTP status code into a FetchError.
func NewStatusError(url string, status int) *FetchError {
	return &FetchError{
		URL:        url,
		StatusCode: status,
		Retryable:  status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout,
	}
}

// NewTransportError classifies a transport-level failure into a FetchError.
// Context cancellation is terminal; deadlines, timeouts and other network
// failures are retryable.
func NewTransportError(url string, err error) *FetchError {
	retryable := true
	if errors.Is(err, context.Canceled) {
		retryable = false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		retryable = true
	}
	return &FetchError{URL: url, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is a FetchError worth retrying.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// IsClientError reports whether err is a terminal 4xx FetchError, which
// pagination treats as the end of a listing.
func IsClientError(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.StatusCode >= 400 && fe.StatusCode < 500 && !fe.Retryable
	}
	return false
}
