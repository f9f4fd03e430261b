package accounts

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// InitializePasswordResetMessage starts a forgotten-password reset. The
// response is identical whether or not the email is registered so the
// endpoint cannot be used to enumerate accounts.
type InitializePasswordResetMessage struct {
	Email string `json:"email"`
	IP    string `json:"-"`

	OnResponse func(resp *InitializePasswordResetResponse)
}

func (m InitializePasswordResetMessage) Type() string { return "account.password_reset" }

// Validate checks the message payload
func (m InitializePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
	)
}

// InitializePasswordResetResponse always reports success; Modification
// is set only when an account matched.
type InitializePasswordResetResponse struct {
	Success      bool
	Modification *UserModification
}

type InitializePasswordResetHandler struct {
	repo      RepositoryManager
	codec     *EmailCodec
	tokens    TokenService
	blacklist *BlacklistService
	mailer    Mailer
	logger    Logger
}

// NewInitializePasswordResetHandler wires the reset initialization
func NewInitializePasswordResetHandler(
	repo RepositoryManager,
	codec *EmailCodec,
	tokens TokenService,
	blacklist *BlacklistService,
	mailer Mailer,
) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:      repo,
		codec:     codec,
		tokens:    tokens,
		blacklist: blacklist,
		mailer:    mailer,
		logger:    defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload").
			WithCode(goerrors.CodeBadRequest)
	}

	if err := h.blacklist.Guard(ctx, event.IP, event.Email); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &InitializePasswordResetResponse{Success: true}

	sealed, err := h.codec.Seal(ctx, event.Email)
	if err != nil {
		return err
	}

	account, creds, err := h.repo.Accounts().GetByEmail(ctx, sealed)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// report success anyway
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return err
	}

	var modification *UserModification

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &UserModification{
			ID:          uuid.New(),
			AccountID:   account.ID,
			Kind:        ModificationPasswordReset,
			OriginEmail: creds.Email,
		}

		modification, err = h.repo.Modifications().CreateReplacingTx(ctx, tx, record)
		return err
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset transaction failed")
	}

	token, err := h.tokens.CreateModificationToken(modification.ID.String(), creds.PasswordHash, modification.ExpiresAt)
	if err != nil {
		return err
	}

	msg := MailMessage{
		To:      event.Email,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("A password reset was requested for your account. The link expires in %s.", ModificationWindow),
		Link:    fmt.Sprintf("/modification/resetPassword?token=%s", token),
	}

	if err := deliver(ctx, h.mailer, msg); err != nil {
		return err
	}

	resp.Modification = modification
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// FinalizePasswordResetMessage completes the reset from the emailed
// link, setting the newly chosen password.
type FinalizePasswordResetMessage struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`

	OnResponse func(resp *ModificationRedeemedResponse)
}

func (m FinalizePasswordResetMessage) Type() string { return "account.password_reset.finalize" }

// Validate checks the message payload
func (m FinalizePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.NewPassword, validation.Required, validation.Length(8, 128)),
	)
}

type FinalizePasswordResetHandler struct {
	repo         RepositoryManager
	tokens       TokenService
	settings     *SettingsService
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// NewFinalizePasswordResetHandler wires the reset finalization
func NewFinalizePasswordResetHandler(
	repo RepositoryManager,
	tokens TokenService,
	settings *SettingsService,
) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:         repo,
		tokens:       tokens,
		settings:     settings,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}
}

func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *FinalizePasswordResetHandler) WithClock(clock func() time.Time) *FinalizePasswordResetHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload").
			WithCode(goerrors.CodeBadRequest)
	}

	modification, account, err := resolveModification(ctx, h.repo, h.tokens, event.Token, ModificationPasswordReset, h.now())
	if err != nil {
		return err
	}

	newHash, err := HashPassword(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.repo.Accounts().SetPasswordTx(ctx, tx, account.ID, newHash); err != nil {
			return err
		}

		return h.repo.Modifications().DeleteByIDTx(ctx, tx, modification.ID)
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "password reset finalization failed")
	}

	recordModification(ctx, h.activitySink, h.logger, ActivityEventPasswordReset, account)

	if event.OnResponse != nil {
		event.OnResponse(&ModificationRedeemedResponse{
			Account: account,
			Hook:    hookURL(ctx, h.settings, HookPasswordReset, h.logger),
		})
	}

	return nil
}
