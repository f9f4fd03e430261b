package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passwordResetEnv struct {
	repo     *stubRepo
	tokens   accounts.TokenService
	mailer   *captureMailer
	sink     *capturingSink
	init     *accounts.InitializePasswordResetHandler
	finalize *accounts.FinalizePasswordResetHandler
}

func newPasswordResetEnv(t *testing.T) *passwordResetEnv {
	t.Helper()

	repo := newStubRepo()
	tokens := newTestTokens()
	settings := accounts.NewSettingsService(repo.settings).WithLogger(quietLogger{})
	codec := accounts.NewEmailCodec(newTestCipher(t), settings)
	machine := accounts.NewAccountStateMachine(repo.accts)
	blacklist := accounts.NewBlacklistService(repo, codec, machine).WithLogger(quietLogger{})
	mailer := &captureMailer{}
	sink := &capturingSink{}

	return &passwordResetEnv{
		repo:   repo,
		tokens: tokens,
		mailer: mailer,
		sink:   sink,
		init: accounts.NewInitializePasswordResetHandler(repo, codec, tokens, blacklist, mailer).
			WithLogger(quietLogger{}),
		finalize: accounts.NewFinalizePasswordResetHandler(repo, tokens, settings).
			WithLogger(quietLogger{}).
			WithActivitySink(sink),
	}
}

func TestInitializePasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("known email records the reset and mails the link", func(t *testing.T) {
		env := newPasswordResetEnv(t)
		account, _ := seedAccount(t, env.repo, "user@example.com", "password-123")

		var resp *accounts.InitializePasswordResetResponse
		err := env.init.Execute(ctx, accounts.InitializePasswordResetMessage{
			Email:      "user@example.com",
			IP:         "10.0.0.1",
			OnResponse: func(r *accounts.InitializePasswordResetResponse) { resp = r },
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Modification)
		assert.Equal(t, accounts.ModificationPasswordReset, resp.Modification.Kind)
		assert.Equal(t, account.ID, resp.Modification.AccountID)

		mail := env.mailer.last(t)
		assert.Equal(t, "user@example.com", mail.To)
		assert.Contains(t, mail.Link, "/modification/resetPassword?token=")
	})

	t.Run("unknown email reports success without mailing", func(t *testing.T) {
		env := newPasswordResetEnv(t)

		var resp *accounts.InitializePasswordResetResponse
		err := env.init.Execute(ctx, accounts.InitializePasswordResetMessage{
			Email:      "nobody@example.com",
			IP:         "10.0.0.1",
			OnResponse: func(r *accounts.InitializePasswordResetResponse) { resp = r },
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Modification)
		assert.Empty(t, env.mailer.sent)
	})

	t.Run("blacklisted origin is refused", func(t *testing.T) {
		env := newPasswordResetEnv(t)
		env.repo.blocked.store(&accounts.BlacklistEntry{ID: uuid.New(), IP: "10.0.0.66"})

		err := env.init.Execute(ctx, accounts.InitializePasswordResetMessage{
			Email: "user@example.com",
			IP:    "10.0.0.66",
		})
		assert.ErrorIs(t, err, accounts.ErrBlacklisted)
	})

	t.Run("invalid email is rejected", func(t *testing.T) {
		env := newPasswordResetEnv(t)
		err := env.init.Execute(ctx, accounts.InitializePasswordResetMessage{Email: "not-an-email"})
		assert.Error(t, err)
	})
}

func TestFinalizePasswordReset(t *testing.T) {
	ctx := context.Background()

	start := func(t *testing.T, env *passwordResetEnv) (*accounts.Account, string) {
		t.Helper()
		account, _ := seedAccount(t, env.repo, "user@example.com", "password-123")
		require.NoError(t, env.init.Execute(ctx, accounts.InitializePasswordResetMessage{
			Email: "user@example.com",
			IP:    "10.0.0.1",
		}))
		return account, mailToken(t, env.mailer, "/modification/resetPassword?token=")
	}

	t.Run("sets the new password and consumes the record", func(t *testing.T) {
		env := newPasswordResetEnv(t)
		account, token := start(t, env)

		var resp *accounts.ModificationRedeemedResponse
		err := env.finalize.Execute(ctx, accounts.FinalizePasswordResetMessage{
			Token:       token,
			NewPassword: "fresh-password-789",
			OnResponse:  func(r *accounts.ModificationRedeemedResponse) { resp = r },
		})
		require.NoError(t, err)
		require.NotNil(t, resp)

		_, creds, err := env.repo.accts.GetWithCredentials(ctx, account.ID)
		require.NoError(t, err)
		assert.NoError(t, accounts.ComparePasswordAndHash("fresh-password-789", creds.PasswordHash))

		assert.Equal(t, 0, env.repo.mods.count())
		assert.True(t, env.sink.has(accounts.ActivityEventPasswordReset))
	})

	t.Run("the link is single use", func(t *testing.T) {
		env := newPasswordResetEnv(t)
		_, token := start(t, env)

		require.NoError(t, env.finalize.Execute(ctx, accounts.FinalizePasswordResetMessage{
			Token:       token,
			NewPassword: "fresh-password-789",
		}))

		err := env.finalize.Execute(ctx, accounts.FinalizePasswordResetMessage{
			Token:       token,
			NewPassword: "another-password-000",
		})
		assert.True(t, accounts.IsMalformedError(err))
	})

	t.Run("short replacement password is rejected", func(t *testing.T) {
		env := newPasswordResetEnv(t)
		_, token := start(t, env)

		err := env.finalize.Execute(ctx, accounts.FinalizePasswordResetMessage{
			Token:       token,
			NewPassword: "short",
		})
		assert.Error(t, err)
	})

	t.Run("expired record is gone", func(t *testing.T) {
		env := newPasswordResetEnv(t)
		_, token := start(t, env)

		env.finalize.WithClock(func() time.Time {
			return time.Now().Add(accounts.ModificationWindow + time.Minute)
		})

		err := env.finalize.Execute(ctx, accounts.FinalizePasswordResetMessage{
			Token:       token,
			NewPassword: "fresh-password-789",
		})
		assert.ErrorIs(t, err, accounts.ErrModificationGone)
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		env := newPasswordResetEnv(t)
		err := env.finalize.Execute(ctx, accounts.FinalizePasswordResetMessage{NewPassword: "fresh-password-789"})
		assert.Error(t, err)
	})
}
