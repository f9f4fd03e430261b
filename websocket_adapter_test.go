package accounts_test

import (
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSTokenValidator(t *testing.T) {
	ts := newTestTokens()
	validator := accounts.NewWSTokenValidator(ts)

	raw, err := ts.CreateAuthToken(testIdentity(), []string{accounts.ScopeUserRead}, time.Hour)
	require.NoError(t, err)

	t.Run("valid token maps scopes onto resource access", func(t *testing.T) {
		claims, err := validator.Validate(raw)
		require.NoError(t, err)

		assert.NotEmpty(t, claims.UserID())
		assert.True(t, claims.CanRead("user"))
		assert.False(t, claims.CanEdit("user"))
		assert.False(t, claims.CanCreate("user"))
		assert.False(t, claims.CanDelete("user"))
		assert.False(t, claims.CanRead("settings"))
	})

	t.Run("role checks are case insensitive", func(t *testing.T) {
		claims, err := validator.Validate(raw)
		require.NoError(t, err)

		assert.True(t, claims.HasRole("admin"))
		assert.False(t, claims.HasRole(accounts.RoleUser))
		assert.True(t, claims.IsAtLeast(accounts.RoleAdmin))
		assert.True(t, claims.IsAtLeast(accounts.RoleUser))
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := validator.Validate("not-a-token")
		require.Error(t, err)
	})

	t.Run("refresh token is not accepted", func(t *testing.T) {
		refresh, err := ts.CreateRefreshToken("12345", time.Hour)
		require.NoError(t, err)

		_, err = validator.Validate(refresh)
		require.Error(t, err)
	})
}
