package accounts_test

import (
	"errors"
	"net/http"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, http.StatusOK},
		{"invalid credentials", accounts.ErrMismatchedHashAndPassword, http.StatusUnauthorized},
		{"identity not found", accounts.ErrIdentityNotFound, http.StatusUnauthorized},
		{"expired token", accounts.ErrTokenExpired, http.StatusUnauthorized},
		{"malformed token", accounts.ErrTokenMalformed, http.StatusForbidden},
		{"missing scope", accounts.ErrMissingScope, http.StatusForbidden},
		{"xsrf mismatch", accounts.ErrXSRFMismatch, http.StatusForbidden},
		{"blacklisted origin", accounts.ErrBlacklisted, http.StatusForbidden},
		{"inactive account", accounts.ErrAccountInactive, http.StatusNotAcceptable},
		{"expired modification", accounts.ErrModificationGone, http.StatusGone},
		{"expired 2fa code", accounts.ErrTwoFactorExpired, http.StatusGone},
		{"mismatched 2fa code", accounts.ErrTwoFactorMismatch, http.StatusConflict},
		{"email taken", accounts.ErrEmailTaken, http.StatusConflict},
		{"mail delivery failure", accounts.ErrMailDelivery, http.StatusFailedDependency},
		{"throttled login", accounts.ErrTooManyLoginAttempts, http.StatusTooManyRequests},
		{"bad input", accounts.ErrNoEmptyString, http.StatusBadRequest},
		{"unclassified error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, accounts.HTTPStatus(tt.err))
		})
	}
}

func TestHTTPStatusWrapped(t *testing.T) {
	wrapped := goerrors.Wrap(accounts.ErrModificationGone, goerrors.CategoryValidation, "redeeming modification")
	assert.Equal(t, http.StatusGone, accounts.HTTPStatus(wrapped))
}

func TestIsTokenExpiredError(t *testing.T) {
	assert.True(t, accounts.IsTokenExpiredError(accounts.ErrTokenExpired))
	assert.True(t, accounts.IsTokenExpiredError(errors.New("token is expired by 5m")))
	assert.False(t, accounts.IsTokenExpiredError(accounts.ErrTokenMalformed))
	assert.False(t, accounts.IsTokenExpiredError(nil))
}

func TestIsMalformedError(t *testing.T) {
	assert.True(t, accounts.IsMalformedError(accounts.ErrTokenMalformed))
	assert.True(t, accounts.IsMalformedError(errors.New("missing or malformed JWT")))
	assert.False(t, accounts.IsMalformedError(accounts.ErrTokenExpired))
	assert.False(t, accounts.IsMalformedError(nil))
}
