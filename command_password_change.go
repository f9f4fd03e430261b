package accounts

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// InitializePasswordChangeMessage starts an authenticated password
// change. The new password is hashed immediately and stored on the
// pending record; redemption copies the hash verbatim.
type InitializePasswordChangeMessage struct {
	AccountID       uuid.UUID `json:"-"`
	CurrentPassword string    `json:"current_password"`
	NewPassword     string    `json:"new_password"`

	OnResponse func(resp *ModificationStartedResponse)
}

func (m InitializePasswordChangeMessage) Type() string { return "account.password_change" }

// Validate checks the message payload
func (m InitializePasswordChangeMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.CurrentPassword, validation.Required),
		validation.Field(&m.NewPassword, validation.Required, validation.Length(8, 128)),
	)
}

type InitializePasswordChangeHandler struct {
	repo   RepositoryManager
	codec  *EmailCodec
	tokens TokenService
	mailer Mailer
	logger Logger
}

// NewInitializePasswordChangeHandler wires the password change initialization
func NewInitializePasswordChangeHandler(
	repo RepositoryManager,
	codec *EmailCodec,
	tokens TokenService,
	mailer Mailer,
) *InitializePasswordChangeHandler {
	return &InitializePasswordChangeHandler{
		repo:   repo,
		codec:  codec,
		tokens: tokens,
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *InitializePasswordChangeHandler) WithLogger(logger Logger) *InitializePasswordChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordChangeHandler) Execute(ctx context.Context, event InitializePasswordChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordChangeHandler) execute(ctx context.Context, event InitializePasswordChangeMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password change payload").
			WithCode(goerrors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, creds, err := h.repo.Accounts().GetWithCredentials(ctx, event.AccountID)
	if err != nil {
		return err
	}

	if err := ComparePasswordAndHash(event.CurrentPassword, creds.PasswordHash); err != nil {
		return err
	}

	newHash, err := HashPassword(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	var modification *UserModification

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &UserModification{
			ID:           uuid.New(),
			AccountID:    account.ID,
			Kind:         ModificationPassword,
			PasswordHash: newHash,
		}

		modification, err = h.repo.Modifications().CreateReplacingTx(ctx, tx, record)
		return err
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password change transaction failed")
	}

	token, err := h.tokens.CreateModificationToken(modification.ID.String(), creds.PasswordHash, modification.ExpiresAt)
	if err != nil {
		return err
	}

	email, err := h.codec.Open(ctx, creds.Email)
	if err != nil {
		return err
	}

	msg := MailMessage{
		To:      email,
		Subject: "Confirm your password change",
		Body:    fmt.Sprintf("A password change was requested for your account. The link expires in %s.", ModificationWindow),
		Link:    fmt.Sprintf("/modification/password?token=%s", token),
	}

	if err := deliver(ctx, h.mailer, msg); err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&ModificationStartedResponse{Modification: modification})
	}

	return nil
}

// RedeemPasswordChangeMessage applies a pending password change from the
// emailed link.
type RedeemPasswordChangeMessage struct {
	Token string `json:"token"`

	OnResponse func(resp *ModificationRedeemedResponse)
}

func (m RedeemPasswordChangeMessage) Type() string { return "account.password_change.redeem" }

type RedeemPasswordChangeHandler struct {
	repo         RepositoryManager
	tokens       TokenService
	settings     *SettingsService
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// NewRedeemPasswordChangeHandler wires the password change redemption
func NewRedeemPasswordChangeHandler(
	repo RepositoryManager,
	tokens TokenService,
	settings *SettingsService,
) *RedeemPasswordChangeHandler {
	return &RedeemPasswordChangeHandler{
		repo:         repo,
		tokens:       tokens,
		settings:     settings,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}
}

func (h *RedeemPasswordChangeHandler) WithLogger(logger Logger) *RedeemPasswordChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RedeemPasswordChangeHandler) WithActivitySink(sink ActivitySink) *RedeemPasswordChangeHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *RedeemPasswordChangeHandler) WithClock(clock func() time.Time) *RedeemPasswordChangeHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *RedeemPasswordChangeHandler) Execute(ctx context.Context, event RedeemPasswordChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change redemption",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RedeemPasswordChangeHandler) execute(ctx context.Context, event RedeemPasswordChangeMessage) error {
	modification, account, err := resolveModification(ctx, h.repo, h.tokens, event.Token, ModificationPassword, h.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// the stored hash was produced at initialization, copy it verbatim
		if err := h.repo.Accounts().SetPasswordTx(ctx, tx, account.ID, modification.PasswordHash); err != nil {
			return err
		}

		return h.repo.Modifications().DeleteByAccountKindTx(ctx, tx, account.ID, ModificationPassword)
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password change redemption failed")
	}

	recordModification(ctx, h.activitySink, h.logger, ActivityEventPasswordChanged, account)

	if event.OnResponse != nil {
		event.OnResponse(&ModificationRedeemedResponse{
			Account: account,
			Hook:    hookURL(ctx, h.settings, HookPasswordChange, h.logger),
		})
	}

	return nil
}
