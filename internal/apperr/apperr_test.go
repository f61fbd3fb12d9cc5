package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
	}{
		{Input("field", "bad"), http.StatusBadRequest},
		{AuthN("no token"), http.StatusUnauthorized},
		{NotFound("hidden"), http.StatusNotFound},
		{InsufficientCredits("broke"), http.StatusPaymentRequired},
		{RateLimited("free", 20, 60), http.StatusTooManyRequests},
		{Acquisition(ReasonTimeout, "slow", nil), http.StatusBadGateway},
		{Parse("bad number", nil), http.StatusUnprocessableEntity},
		{Dependency("redis down", nil), http.StatusServiceUnavailable},
		{Busy("too many"), http.StatusServiceUnavailable},
		{Internal("boom", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus())
	}
}

func TestAsUnwrapsWrappedError(t *testing.T) {
	inner := Dependency("cache unreachable", errors.New("dial failed"))
	wrapped := errors.Join(errors.New("context"), inner)

	ae, ok := As(wrapped)
	require := assert.New(t)
	require.True(ok)
	require.Equal(KindDependency, ae.Kind)
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := RateLimited("starter", 100, 42)
	assert.Equal(t, 42, err.RetryAfter)
	assert.Equal(t, 100, err.Limit)
	assert.Equal(t, "starter", err.Tier)
}
