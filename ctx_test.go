package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localsContext only implements the Locals lookup the claims helpers use
type localsContext struct {
	router.Context
	locals map[any]any
}

func (c *localsContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		c.locals[key] = value[0]
	}
	return c.locals[key]
}

func validClaims(t *testing.T) accounts.AuthClaims {
	t.Helper()
	ts := newTestTokens()

	raw, err := ts.CreateAuthToken(testIdentity(), []string{accounts.ScopeUserRead}, time.Hour)
	require.NoError(t, err)

	claims, err := ts.ValidateAuthToken(raw)
	require.NoError(t, err)
	return claims
}

func TestAccountContext(t *testing.T) {
	account := &accounts.Account{ID: uuid.New(), Name: "Test Account"}

	t.Run("round trip", func(t *testing.T) {
		ctx := accounts.WithContext(context.Background(), account)
		got, ok := accounts.FromContext(ctx)
		require.True(t, ok)
		assert.Same(t, account, got)
	})

	t.Run("absent account", func(t *testing.T) {
		_, ok := accounts.FromContext(context.Background())
		assert.False(t, ok)
	})
}

func TestClaimsContext(t *testing.T) {
	claims := validClaims(t)

	t.Run("round trip", func(t *testing.T) {
		ctx := accounts.WithClaimsContext(context.Background(), claims)
		got, ok := accounts.GetClaims(ctx)
		require.True(t, ok)
		assert.Equal(t, claims.UserID(), got.UserID())
	})

	t.Run("absent claims", func(t *testing.T) {
		_, ok := accounts.GetClaims(context.Background())
		assert.False(t, ok)
	})

	t.Run("scope check", func(t *testing.T) {
		ctx := accounts.WithClaimsContext(context.Background(), claims)
		assert.True(t, accounts.HasScope(ctx, accounts.ScopeUserRead))
		assert.False(t, accounts.HasScope(ctx, accounts.ScopeUserWrite))
		assert.False(t, accounts.HasScope(context.Background(), accounts.ScopeUserRead))
	})
}

func TestRouterClaims(t *testing.T) {
	claims := validClaims(t)

	t.Run("reads the middleware locals key", func(t *testing.T) {
		ctx := &localsContext{locals: map[any]any{"user": claims}}

		got, ok := accounts.GetRouterClaims(ctx, "")
		require.True(t, ok)
		assert.Equal(t, claims.UserID(), got.UserID())

		got, ok = accounts.GetRouterClaims(ctx, "user")
		require.True(t, ok)
		assert.Equal(t, claims.UserID(), got.UserID())
	})

	t.Run("missing or foreign values", func(t *testing.T) {
		empty := &localsContext{locals: map[any]any{}}
		_, ok := accounts.GetRouterClaims(empty, "")
		assert.False(t, ok)

		wrong := &localsContext{locals: map[any]any{"user": "not-claims"}}
		_, ok = accounts.GetRouterClaims(wrong, "")
		assert.False(t, ok)
	})

	t.Run("scope check", func(t *testing.T) {
		ctx := &localsContext{locals: map[any]any{"user": claims}}
		assert.True(t, accounts.HasScopeFromRouter(ctx, accounts.ScopeUserRead))
		assert.False(t, accounts.HasScopeFromRouter(ctx, accounts.ScopeUserWrite))
	})
}
