package llm

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"venturedesk/internal/domain"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
		fatal    bool
	}{
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimit, false},
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuthInvalid, true},
		{"forbidden", http.StatusForbidden, domain.ErrAuthInvalid, true},
		{"payload too large", http.StatusRequestEntityTooLarge, domain.ErrContextOverflow, true},
		{"request timeout", http.StatusRequestTimeout, domain.ErrTimeout, false},
		{"bad request", http.StatusBadRequest, domain.ErrInvalidInput, true},
		{"unprocessable", http.StatusUnprocessableEntity, domain.ErrInvalidInput, true},
		{"server error", http.StatusInternalServerError, domain.ErrProviderError, false},
		{"bad gateway", http.StatusBadGateway, domain.ErrProviderError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapHTTPError(tt.status, []byte("detail"))
			assert.True(t, errors.Is(err, tt.sentinel), "want %v, got %v", tt.sentinel, err)
			assert.Equal(t, tt.fatal, domain.IsFatalProviderError(err))
			assert.Contains(t, err.Error(), "detail")
		})
	}
}

func TestMapHTTPErrorUnknownStatus(t *testing.T) {
	err := mapHTTPError(http.StatusTeapot, []byte("short and stout"))
	assert.False(t, domain.IsRetryableError(err))
	assert.False(t, domain.IsFatalProviderError(err))
	assert.Contains(t, err.Error(), "418")
}
