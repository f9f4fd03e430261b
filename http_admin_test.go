package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminEnv struct {
	repo *stubRepo
	ctrl *accounts.AdminController

	handled []error
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()

	env := &adminEnv{repo: newStubRepo()}

	auther, err := accounts.NewHTTPAuthenticator(nil, accounts.AuthTokenValidator(newTestTokens()), newTestConfig())
	require.NoError(t, err)

	auther.ErrorHandler = func(_ router.Context, err error) error {
		env.handled = append(env.handled, err)
		return nil
	}

	env.ctrl = accounts.NewAdminController(auther, accounts.AdminController{
		Repo:    env.repo,
		Machine: accounts.NewAccountStateMachine(env.repo.accts),
	}, accounts.WithAdminControllerLogger(quietLogger{}))

	return env
}

func (e *adminEnv) lastHandled(t *testing.T) error {
	t.Helper()
	require.NotEmpty(t, e.handled, "expected a handled error")
	return e.handled[len(e.handled)-1]
}

func TestAccountShowRoute(t *testing.T) {
	t.Run("returns the record", func(t *testing.T) {
		env := newAdminEnv(t)
		account, _ := seedAccount(t, env.repo, "user@example.com", "password-123")

		ctx := router.NewMockContext()
		ctx.ParamsM["id"] = account.ID.String()
		ctx.On("Context").Return(context.Background())

		rec := &jsonRecorder{}
		recordJSON(ctx, rec)

		require.NoError(t, env.ctrl.AccountShow(ctx))
		require.Empty(t, env.handled)

		require.Equal(t, router.StatusOK, rec.status)
		got, ok := rec.body.(*accounts.Account)
		require.True(t, ok)
		assert.Equal(t, account.ID, got.ID)
	})

	t.Run("rejects a malformed id", func(t *testing.T) {
		env := newAdminEnv(t)

		ctx := router.NewMockContext()
		ctx.ParamsM["id"] = "not-a-uuid"

		require.NoError(t, env.ctrl.AccountShow(ctx))

		err := env.lastHandled(t)
		require.Error(t, err)
		assert.Equal(t, router.StatusBadRequest, accounts.HTTPStatus(err))
	})
}

func TestAccountDeleteRoute(t *testing.T) {
	t.Run("cascades the delete", func(t *testing.T) {
		env := newAdminEnv(t)
		account, _ := seedAccount(t, env.repo, "user@example.com", "password-123")

		ctx := router.NewMockContext()
		ctx.ParamsM["id"] = account.ID.String()
		ctx.On("Context").Return(context.Background())

		rec := &jsonRecorder{}
		recordJSON(ctx, rec)

		require.NoError(t, env.ctrl.AccountDelete(ctx))
		require.Empty(t, env.handled)
		require.Equal(t, router.StatusOK, rec.status)
		assert.Contains(t, env.repo.accts.deleted, account.ID)
	})

	t.Run("rejects a malformed id before touching the store", func(t *testing.T) {
		env := newAdminEnv(t)
		seedAccount(t, env.repo, "user@example.com", "password-123")

		ctx := router.NewMockContext()
		ctx.ParamsM["id"] = "42"

		require.NoError(t, env.ctrl.AccountDelete(ctx))

		assert.Equal(t, router.StatusBadRequest, accounts.HTTPStatus(env.lastHandled(t)))
		assert.Empty(t, env.repo.accts.deleted)
	})
}
