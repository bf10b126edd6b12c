package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{NotFound("x"), http.StatusNotFound},
		{Unauthorized("x"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{BadRequest("x"), http.StatusBadRequest},
		{Conflict("x"), http.StatusConflict},
		{Invalid("x"), http.StatusUnprocessableEntity},
		{RateLimited("x"), http.StatusTooManyRequests},
		{Internal("x", nil), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.status, tc.err.HTTPStatus())
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusOf(nil))
	assert.Equal(t, http.StatusNotFound, StatusOf(NotFound("missing")))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(fmt.Errorf("plain")))

	wrapped := fmt.Errorf("handler: %w", Forbidden("nope"))
	assert.Equal(t, http.StatusForbidden, StatusOf(wrapped), "StatusOf sees through wrapping")
}

func TestReasonOf(t *testing.T) {
	err := Forbidden("channel is closed").WithReason("closed")
	assert.Equal(t, "closed", ReasonOf(err))
	assert.Equal(t, "closed", ReasonOf(fmt.Errorf("wrap: %w", err)))
	assert.Equal(t, "", ReasonOf(fmt.Errorf("plain")))
	assert.Equal(t, "", ReasonOf(nil))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("x")))
	assert.True(t, IsNotFound(fmt.Errorf("wrap: %w", ErrNotFound)))
	assert.False(t, IsNotFound(Forbidden("x")))
	assert.False(t, IsNotFound(nil))

	assert.True(t, IsForbidden(Forbidden("x")))
	assert.True(t, IsConflict(Conflict("x")))
	assert.False(t, IsConflict(Invalid("x")))
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Internal("load channel", fmt.Errorf("connection refused"))
	assert.Equal(t, "load channel: connection refused", err.Error())
	assert.Equal(t, "no such thing: resource not found", NotFound("no such thing").Error())
}
