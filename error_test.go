package sitediff_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/fwojciec/sitediff"
	"github.com/stretchr/testify/assert"
)

func TestErrorf(t *testing.T) {
	t.Parallel()

	err := sitediff.Errorf(sitediff.ENOTFOUND, "site %q not found", "test")

	assert.Equal(t, sitediff.ENOTFOUND, sitediff.ErrorCode(err))
	assert.Equal(t, "site \"test\" not found", sitediff.ErrorMessage(err))
}

func TestErrorCode_NilError(t *testing.T) {
	t.Parallel()

	assert.Empty(t, sitediff.ErrorCode(nil))
}

func TestErrorMessage_NilError(t *testing.T) {
	t.Parallel()

	assert.Empty(t, sitediff.ErrorMessage(nil))
}

func TestErrorCode_WrappedErrors(t *testing.T) {
	t.Parallel()

	t.Run("unwraps application error", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("loading: %w", sitediff.Errorf(sitediff.ESTATE, "disk full"))
		assert.Equal(t, sitediff.ESTATE, sitediff.ErrorCode(err))
	})

	t.Run("fetch errors report EFETCH", func(t *testing.T) {
		t.Parallel()
		err := fmt.Errorf("page 2: %w", sitediff.NewStatusError("https://example.com", http.StatusBadGateway))
		assert.Equal(t, sitediff.EFETCH, sitediff.ErrorCode(err))
		assert.Equal(t, "HTTP 502 for https://example.com", sitediff.ErrorMessage(err))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, sitediff.EINTERNAL, sitediff.ErrorCode(errors.New("boom")))
		assert.Equal(t, "Internal error", sitediff.ErrorMessage(errors.New("boom")))
	})
}

func TestFetchError_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		retryable   bool
		clientError bool
	}{
		{"server error", sitediff.NewStatusError("u", http.StatusInternalServerError), true, false},
		{"too many requests", sitediff.NewStatusError("u", http.StatusTooManyRequests), true, false},
		{"not found", sitediff.NewStatusError("u", http.StatusNotFound), false, true},
		{"forbidden", sitediff.NewStatusError("u", http.StatusForbidden), false, true},
		{"network failure", sitediff.NewTransportError("u", errors.New("connection reset")), true, false},
		{"deadline", sitediff.NewTransportError("u", context.DeadlineExceeded), true, false},
		{"canceled", sitediff.NewTransportError("u", context.Canceled), false, false},
		{"not a fetch error", errors.New("other"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, sitediff.IsRetryable(tt.err))
			assert.Equal(t, tt.clientError, sitediff.IsClientError(tt.err))
		})
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	t.Parallel()

	err := sitediff.NewTransportError("https://example.com", context.Canceled)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "https://example.com")
}
