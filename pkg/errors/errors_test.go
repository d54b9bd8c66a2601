package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuth(t *testing.T) {
	authErr := New(ErrorTypeAuth, 401, "bad token")

	assert.True(t, IsAuth(authErr))
	assert.True(t, IsAuth(fmt.Errorf("failed to fetch likes: %w", authErr)))
	assert.False(t, IsAuth(New(ErrorTypeNetwork, 0, "connection reset")))
	assert.False(t, IsAuth(fmt.Errorf("plain error")))
	assert.False(t, IsAuth(nil))
}

func TestTypeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(ErrorTypeRateLimit, 429, "slow down"))
	assert.Equal(t, ErrorTypeRateLimit, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(fmt.Errorf("untyped")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeServerError, true},
		{ErrorTypeRateLimit, false},
		{ErrorTypeAuth, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeParsing, false},
		{ErrorTypeStorage, false},
		{ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.errorType))
		})
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(0))
	assert.True(t, IsRetryableStatusCode(503))
	assert.True(t, IsRetryableStatusCode(599))
	assert.False(t, IsRetryableStatusCode(429))
	assert.False(t, IsRetryableStatusCode(401))
	assert.False(t, IsRetryableStatusCode(404))
}

func TestErrorMessage(t *testing.T) {
	err := New(ErrorTypeAuth, 401, "token %s rejected", "abc")
	assert.Equal(t, "auth error (code 401): token abc rejected", err.Error())
}
