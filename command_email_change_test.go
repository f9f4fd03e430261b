package accounts_test

import (
	"context"
	"strings"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emailChangeEnv struct {
	repo   *stubRepo
	tokens accounts.TokenService
	mailer *captureMailer
	sink   *capturingSink
	init   *accounts.InitializeEmailChangeHandler
	redeem *accounts.RedeemEmailChangeHandler
}

func newEmailChangeEnv(t *testing.T) *emailChangeEnv {
	t.Helper()

	repo := newStubRepo()
	tokens := newTestTokens()
	settings := accounts.NewSettingsService(repo.settings).WithLogger(quietLogger{})
	codec := accounts.NewEmailCodec(newTestCipher(t), settings)
	mailer := &captureMailer{}
	sink := &capturingSink{}

	return &emailChangeEnv{
		repo:   repo,
		tokens: tokens,
		mailer: mailer,
		sink:   sink,
		init: accounts.NewInitializeEmailChangeHandler(repo, codec, tokens, mailer).
			WithLogger(quietLogger{}),
		redeem: accounts.NewRedeemEmailChangeHandler(repo, tokens, settings).
			WithLogger(quietLogger{}).
			WithActivitySink(sink),
	}
}

func mailToken(t *testing.T, mailer *captureMailer, prefix string) string {
	t.Helper()
	link := mailer.last(t).Link
	require.True(t, strings.HasPrefix(link, prefix), "unexpected link %q", link)
	return link[len(prefix):]
}

func TestInitializeEmailChange(t *testing.T) {
	ctx := context.Background()

	t.Run("records the pending change and mails the current address", func(t *testing.T) {
		env := newEmailChangeEnv(t)
		account, creds := seedAccount(t, env.repo, "old@example.com", "password-123")

		var resp *accounts.ModificationStartedResponse
		err := env.init.Execute(ctx, accounts.InitializeEmailChangeMessage{
			AccountID:  account.ID,
			NewEmail:   "new@example.com",
			OnResponse: func(r *accounts.ModificationStartedResponse) { resp = r },
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		mod := resp.Modification
		assert.Equal(t, accounts.ModificationEmail, mod.Kind)
		assert.Equal(t, account.ID, mod.AccountID)
		assert.Equal(t, creds.Email, mod.OriginEmail)
		assert.Equal(t, "new@example.com", mod.NewEmail)
		assert.WithinDuration(t, time.Now().Add(accounts.ModificationWindow), mod.ExpiresAt, time.Minute)

		mail := env.mailer.last(t)
		assert.Equal(t, "old@example.com", mail.To, "confirmation goes to the current address")
		assert.Contains(t, mail.Link, "/modification/email?token=")
	})

	t.Run("invalid new email is rejected", func(t *testing.T) {
		env := newEmailChangeEnv(t)
		account, _ := seedAccount(t, env.repo, "old@example.com", "password-123")

		err := env.init.Execute(ctx, accounts.InitializeEmailChangeMessage{
			AccountID: account.ID,
			NewEmail:  "not-an-email",
		})
		assert.Error(t, err)
	})

	t.Run("taken new email conflicts", func(t *testing.T) {
		env := newEmailChangeEnv(t)
		account, _ := seedAccount(t, env.repo, "old@example.com", "password-123")
		seedAccount(t, env.repo, "new@example.com", "password-123")

		err := env.init.Execute(ctx, accounts.InitializeEmailChangeMessage{
			AccountID: account.ID,
			NewEmail:  "new@example.com",
		})
		assert.ErrorIs(t, err, accounts.ErrEmailTaken)
	})

	t.Run("a second init supersedes the first", func(t *testing.T) {
		env := newEmailChangeEnv(t)
		account, _ := seedAccount(t, env.repo, "old@example.com", "password-123")

		require.NoError(t, env.init.Execute(ctx, accounts.InitializeEmailChangeMessage{
			AccountID: account.ID,
			NewEmail:  "first@example.com",
		}))
		firstToken := mailToken(t, env.mailer, "/modification/email?token=")

		require.NoError(t, env.init.Execute(ctx, accounts.InitializeEmailChangeMessage{
			AccountID: account.ID,
			NewEmail:  "second@example.com",
		}))

		assert.Equal(t, 1, env.repo.mods.count())

		err := env.redeem.Execute(ctx, accounts.RedeemEmailChangeMessage{Token: firstToken})
		assert.ErrorIs(t, err, accounts.ErrTokenMalformed)
	})

	t.Run("unknown account errors", func(t *testing.T) {
		env := newEmailChangeEnv(t)

		err := env.init.Execute(ctx, accounts.InitializeEmailChangeMessage{
			AccountID: uuid.New(),
			NewEmail:  "new@example.com",
		})
		assert.Error(t, err)
	})
}

func TestRedeemEmailChange(t *testing.T) {
	ctx := context.Background()

	start := func(t *testing.T, env *emailChangeEnv) (*accounts.Account, string) {
		t.Helper()
		account, _ := seedAccount(t, env.repo, "old@example.com", "password-123")
		require.NoError(t, env.init.Execute(ctx, accounts.InitializeEmailChangeMessage{
			AccountID: account.ID,
			NewEmail:  "new@example.com",
		}))
		return account, mailToken(t, env.mailer, "/modification/email?token=")
	}

	t.Run("applies the change and consumes the record", func(t *testing.T) {
		env := newEmailChangeEnv(t)
		account, token := start(t, env)

		var resp *accounts.ModificationRedeemedResponse
		err := env.redeem.Execute(ctx, accounts.RedeemEmailChangeMessage{
			Token:      token,
			OnResponse: func(r *accounts.ModificationRedeemedResponse) { resp = r },
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		assert.Equal(t, account.ID, resp.Account.ID)

		_, creds, err := env.repo.accts.GetWithCredentials(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", creds.Email)

		assert.Equal(t, 0, env.repo.mods.count())
		assert.True(t, env.sink.has(accounts.ActivityEventEmailChanged))

		err = env.redeem.Execute(ctx, accounts.RedeemEmailChangeMessage{Token: token})
		assert.ErrorIs(t, err, accounts.ErrTokenMalformed)
	})

	t.Run("expired record is gone", func(t *testing.T) {
		env := newEmailChangeEnv(t)
		_, token := start(t, env)

		env.redeem.WithClock(func() time.Time {
			return time.Now().Add(accounts.ModificationWindow + time.Minute)
		})

		err := env.redeem.Execute(ctx, accounts.RedeemEmailChangeMessage{Token: token})
		assert.ErrorIs(t, err, accounts.ErrModificationGone)
		assert.Equal(t, 0, env.repo.mods.count())
	})

	t.Run("password change invalidates the token", func(t *testing.T) {
		env := newEmailChangeEnv(t)
		account, token := start(t, env)

		newHash, err := accounts.HashPassword("rotated-password")
		require.NoError(t, err)
		require.NoError(t, env.repo.accts.SetPasswordTx(ctx, nil, account.ID, newHash))

		err = env.redeem.Execute(ctx, accounts.RedeemEmailChangeMessage{Token: token})
		assert.True(t, accounts.IsMalformedError(err))
	})

	t.Run("a token of another kind does not redeem", func(t *testing.T) {
		env := newEmailChangeEnv(t)
		account, _ := seedAccount(t, env.repo, "other@example.com", "password-123")

		record := &accounts.UserModification{
			ID:        uuid.New(),
			AccountID: account.ID,
			Kind:      accounts.ModificationPassword,
			ExpiresAt: time.Now().Add(accounts.ModificationWindow),
		}
		env.repo.mods.add(record)

		_, creds, err := env.repo.accts.GetWithCredentials(ctx, account.ID)
		require.NoError(t, err)

		token, err := env.tokens.CreateModificationToken(record.ID.String(), creds.PasswordHash, record.ExpiresAt)
		require.NoError(t, err)

		err = env.redeem.Execute(ctx, accounts.RedeemEmailChangeMessage{Token: token})
		assert.ErrorIs(t, err, accounts.ErrTokenMalformed)
	})

	t.Run("empty token is rejected", func(t *testing.T) {
		env := newEmailChangeEnv(t)
		err := env.redeem.Execute(ctx, accounts.RedeemEmailChangeMessage{})
		assert.ErrorIs(t, err, accounts.ErrNoEmptyString)
	})
}
