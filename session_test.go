package accounts_test

import (
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionObject(t *testing.T) {
	userID := uuid.New()
	issued := time.Now().Add(-time.Minute)

	session := &accounts.SessionObject{
		UserID:   userID.String(),
		Role:     accounts.RoleUser,
		Scopes:   []string{accounts.ScopeUserRead},
		Status:   accounts.AccountStatusActive,
		IssuedAt: &issued,
	}

	t.Run("accessors", func(t *testing.T) {
		assert.Equal(t, userID.String(), session.GetUserID())
		assert.Equal(t, accounts.RoleUser, session.GetRole())
		assert.Equal(t, []string{accounts.ScopeUserRead}, session.GetScopes())
		assert.Equal(t, accounts.AccountStatusActive, session.GetStatus())
		assert.Equal(t, &issued, session.GetIssuedAt())

		parsed, err := session.GetUserUUID()
		require.NoError(t, err)
		assert.Equal(t, userID, parsed)
	})

	t.Run("non uuid subject fails to parse", func(t *testing.T) {
		bad := &accounts.SessionObject{UserID: "api-client"}
		_, err := bad.GetUserUUID()
		assert.Error(t, err)
	})

	t.Run("scope check is any-of", func(t *testing.T) {
		assert.True(t, session.ContainsScopes(accounts.ScopeUserRead))
		assert.True(t, session.ContainsScopes(accounts.ScopeUserWrite, accounts.ScopeUserRead))
		assert.False(t, session.ContainsScopes(accounts.ScopeUserWrite))
	})

	t.Run("active tracks account status", func(t *testing.T) {
		assert.True(t, session.IsActive())

		blocked := &accounts.SessionObject{Status: accounts.AccountStatusBlocked}
		assert.False(t, blocked.IsActive())
	})
}
