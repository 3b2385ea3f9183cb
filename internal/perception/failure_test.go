package perception

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code      int
		want      FailureClass
		transient bool
	}{
		{429, FailureRateLimited, true},
		{403, FailureAuthQuota, false},
		{401, FailureAuthQuota, false},
		{400, FailureMalformed, false},
		{500, FailureServerError, true},
		{502, FailureServerError, true},
		{504, FailureServerError, true},
		{503, FailureOverloaded, true},
		{404, FailureGeneric, false},
		{418, FailureGeneric, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			got := ClassifyStatus(tt.code)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.transient, got.Transient())
		})
	}
}

func TestTransportError(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.Equal(t, FailureConnection, transportError("local", dial).Class)
	assert.Equal(t, FailureConnection, transportError("local", fmt.Errorf("post: %w", context.DeadlineExceeded)).Class)
	assert.Equal(t, FailureGeneric, transportError("local", context.Canceled).Class)
	assert.Equal(t, FailureGeneric, transportError("local", errors.New("weird")).Class)
}

func TestBackendErrorWrapping(t *testing.T) {
	inner := errors.New("boom")
	be := statusError("gemini-pro", 503, "model overloaded", inner)
	wrapped := fmt.Errorf("architect: %w", be)

	assert.True(t, IsTransient(wrapped))
	assert.Equal(t, FailureOverloaded, ClassOf(wrapped))
	assert.ErrorIs(t, wrapped, inner)
	assert.Contains(t, be.Error(), "status 503")
	assert.Contains(t, be.Error(), "model overloaded")

	assert.False(t, IsTransient(errors.New("plain")))
	assert.Equal(t, FailureGeneric, ClassOf(errors.New("plain")))
}
