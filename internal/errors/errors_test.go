package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := ProtocolError("invalid JSON")
	assert.Equal(t, "protocol: invalid JSON", err.Error())

	wrapped := ExternalError("store lookup failed", stderrors.New("connection refused"))
	assert.Equal(t, "external: store lookup failed: connection refused", wrapped.Error())
	assert.ErrorContains(t, wrapped, "connection refused")
}

func TestError_CloseCode(t *testing.T) {
	cases := []struct {
		err  *Error
		code int
	}{
		{ProtocolError("bad frame"), websocket.CloseGoingAway},
		{AuthClaimError("no sub"), websocket.CloseNormalClosure},
		{NotFoundError("unknown set"), websocket.CloseNormalClosure},
		{InternalError("boom", nil), websocket.CloseInternalServerErr},
		{ExternalError("store down", nil), websocket.CloseInternalServerErr},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, c.err.CloseCode(), "type %s", c.err.Type)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := DeliveryError("send failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFoundError("missing")))
	assert.True(t, IsNotFound(fmt.Errorf("resolving: %w", NotFoundError("missing"))))
	assert.False(t, IsNotFound(ProtocolError("bad frame")))
	assert.False(t, IsNotFound(stderrors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestWithContext(t *testing.T) {
	err := NotFoundError("missing").WithContext("subscription_set_id", "abc")
	assert.Equal(t, "abc", err.Context["subscription_set_id"])
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	original := ProtocolError("bad frame")
	assert.Same(t, original, AsStructuredError(original))
	assert.Same(t, original, AsStructuredError(fmt.Errorf("wrapped: %w", original)))

	plain := stderrors.New("plain")
	structured := AsStructuredError(plain)
	require.NotNil(t, structured)
	assert.Equal(t, TypeInternal, structured.Type)
	assert.ErrorIs(t, structured, plain)
}
