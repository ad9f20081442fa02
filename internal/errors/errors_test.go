package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ValidationError("bad").HTTPStatus())
	assert.Equal(t, http.StatusNotFound, NotFoundError("missing").HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, RateLimitedError("slow down").HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, InternalError("boom", nil).HTTPStatus())
}

func TestToResponseHidesCause(t *testing.T) {
	err := InternalError("operation failed", errors.New("dsn=secret://creds"))

	resp := err.ToResponse()
	assert.Equal(t, "operation failed", resp.Error)
	assert.Equal(t, TypeInternal, resp.Type)
	assert.NotContains(t, resp.Error, "secret")
}

func TestErrorStringAndUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := InternalError("send failed", cause)

	assert.Equal(t, "internal: send failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, "validation: bad input", ValidationError("bad input").Error())
}

func TestWithContext(t *testing.T) {
	err := ValidationError("bad target").
		WithContext("target", "BTC:USDT").
		WithContext("category", "prices")

	assert.Equal(t, "BTC:USDT", err.Context["target"])
	assert.Equal(t, "prices", err.Context["category"])
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	typed := RateLimitedError("busy")
	assert.Same(t, typed, AsStructuredError(typed))

	plain := errors.New("plain")
	structured := AsStructuredError(plain)
	require.NotNil(t, structured)
	assert.Equal(t, TypeInternal, structured.Type)
	assert.ErrorIs(t, structured, plain)
}
