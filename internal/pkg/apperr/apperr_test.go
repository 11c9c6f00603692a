package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Conflict("locked"), http.StatusConflict},
		{Gone("expired"), http.StatusGone},
		{Upstream("stripe", errors.New("timeout")), http.StatusBadGateway},
		{Integrity("amount missing"), http.StatusInternalServerError},
		{Authentication("bad signature", nil), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusCode(tc.err), tc.err.Error())
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("lock gift: %w", Conflict("Gift is already locked"))
	assert.True(t, Is(err, KindConflict))
	assert.Equal(t, "Gift is already locked", PublicMessage(err))
}

func TestPublicMessage_HidesInternal(t *testing.T) {
	assert.Equal(t, "Internal Server Error", PublicMessage(errors.New("pq: connection refused")))
	assert.Equal(t, "Gift created, but failed to generate invitation link",
		PublicMessage(New(KindInternal, "Gift created, but failed to generate invitation link", errors.New("boom"))))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(New(KindInternal, "x", nil)))
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")
	err := Upstream("Payment provider unavailable", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Payment provider unavailable: dial tcp: i/o timeout", err.Error())
}
