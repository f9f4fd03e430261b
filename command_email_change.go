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

// InitializeEmailChangeMessage starts an email change. The confirmation
// link is mailed to the current address, not the new one, so a hijacked
// session alone cannot move the account.
type InitializeEmailChangeMessage struct {
	AccountID uuid.UUID `json:"-"`
	NewEmail  string    `json:"new_email"`

	OnResponse func(resp *ModificationStartedResponse)
}

func (m InitializeEmailChangeMessage) Type() string { return "account.email_change" }

// Validate checks the message payload
func (m InitializeEmailChangeMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.NewEmail, validation.Required, is.Email),
	)
}

// ModificationStartedResponse reports the pending record created by an
// initialization command.
type ModificationStartedResponse struct {
	Modification *UserModification
}

type InitializeEmailChangeHandler struct {
	repo   RepositoryManager
	codec  *EmailCodec
	tokens TokenService
	mailer Mailer
	logger Logger
}

// NewInitializeEmailChangeHandler wires the email change initialization
func NewInitializeEmailChangeHandler(
	repo RepositoryManager,
	codec *EmailCodec,
	tokens TokenService,
	mailer Mailer,
) *InitializeEmailChangeHandler {
	return &InitializeEmailChangeHandler{
		repo:   repo,
		codec:  codec,
		tokens: tokens,
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *InitializeEmailChangeHandler) WithLogger(logger Logger) *InitializeEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializeEmailChangeHandler) Execute(ctx context.Context, event InitializeEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializeEmailChangeHandler) execute(ctx context.Context, event InitializeEmailChangeMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email change payload").
			WithCode(goerrors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	sealedNew, err := h.codec.Seal(ctx, event.NewEmail)
	if err != nil {
		return err
	}

	account, creds, err := h.repo.Accounts().GetWithCredentials(ctx, event.AccountID)
	if err != nil {
		return err
	}

	var modification *UserModification

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, _, err := h.repo.Accounts().GetByEmailTx(ctx, tx, sealedNew); err == nil {
			return ErrEmailTaken
		} else if !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
		}

		record := &UserModification{
			ID:          uuid.New(),
			AccountID:   account.ID,
			Kind:        ModificationEmail,
			OriginEmail: creds.Email,
			NewEmail:    sealedNew,
		}

		modification, err = h.repo.Modifications().CreateReplacingTx(ctx, tx, record)
		return err
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email change transaction failed")
	}

	token, err := h.tokens.CreateModificationToken(modification.ID.String(), creds.PasswordHash, modification.ExpiresAt)
	if err != nil {
		return err
	}

	currentEmail, err := h.codec.Open(ctx, creds.Email)
	if err != nil {
		return err
	}

	msg := MailMessage{
		To:      currentEmail,
		Subject: "Confirm your email change",
		Body:    fmt.Sprintf("A change of your account email was requested. The link expires in %s.", ModificationWindow),
		Link:    fmt.Sprintf("/modification/email?token=%s", token),
	}

	if err := deliver(ctx, h.mailer, msg); err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&ModificationStartedResponse{Modification: modification})
	}

	return nil
}

// RedeemEmailChangeMessage applies a pending email change from the
// emailed link.
type RedeemEmailChangeMessage struct {
	Token string `json:"token"`

	OnResponse func(resp *ModificationRedeemedResponse)
}

func (m RedeemEmailChangeMessage) Type() string { return "account.email_change.redeem" }

// ModificationRedeemedResponse reports a redeemed modification and the
// configured redirect hook.
type ModificationRedeemedResponse struct {
	Account *Account
	Hook    string
}

type RedeemEmailChangeHandler struct {
	repo         RepositoryManager
	tokens       TokenService
	settings     *SettingsService
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// NewRedeemEmailChangeHandler wires the email change redemption
func NewRedeemEmailChangeHandler(
	repo RepositoryManager,
	tokens TokenService,
	settings *SettingsService,
) *RedeemEmailChangeHandler {
	return &RedeemEmailChangeHandler{
		repo:         repo,
		tokens:       tokens,
		settings:     settings,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}
}

func (h *RedeemEmailChangeHandler) WithLogger(logger Logger) *RedeemEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RedeemEmailChangeHandler) WithActivitySink(sink ActivitySink) *RedeemEmailChangeHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *RedeemEmailChangeHandler) WithClock(clock func() time.Time) *RedeemEmailChangeHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *RedeemEmailChangeHandler) Execute(ctx context.Context, event RedeemEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change redemption",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RedeemEmailChangeHandler) execute(ctx context.Context, event RedeemEmailChangeMessage) error {
	modification, account, err := resolveModification(ctx, h.repo, h.tokens, event.Token, ModificationEmail, h.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.repo.Accounts().SetEmailTx(ctx, tx, account.ID, modification.NewEmail); err != nil {
			return err
		}

		return h.repo.Modifications().DeleteByAccountKindTx(ctx, tx, account.ID, ModificationEmail)
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email change redemption failed")
	}

	recordModification(ctx, h.activitySink, h.logger, ActivityEventEmailChanged, account)

	if event.OnResponse != nil {
		event.OnResponse(&ModificationRedeemedResponse{
			Account: account,
			Hook:    hookURL(ctx, h.settings, HookEmailChange, h.logger),
		})
	}

	return nil
}

// resolveModification decodes a modification token, loads the live
// record and owning account, and verifies the signature against the
// account's current password hash. Expired records are deleted and
// reported gone.
func resolveModification(
	ctx context.Context,
	repo RepositoryManager,
	tokens TokenService,
	raw string,
	kind ModificationKind,
	now time.Time,
) (*UserModification, *Account, error) {
	if raw == "" {
		return nil, nil, ErrNoEmptyString
	}

	modificationID, err := tokens.DecodeModificationID(raw)
	if err != nil {
		return nil, nil, err
	}

	modification, err := repo.Modifications().GetByID(ctx, modificationID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, nil, ErrTokenMalformed
		}
		return nil, nil, err
	}

	if modification.Kind != kind {
		return nil, nil, ErrTokenMalformed
	}

	account, creds, err := repo.Accounts().GetWithCredentials(ctx, modification.AccountID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, nil, ErrTokenMalformed
		}
		return nil, nil, err
	}

	if _, err := tokens.ValidateModificationToken(raw, creds.PasswordHash); err != nil {
		return nil, nil, err
	}

	if modification.Expired(now) {
		derr := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return repo.Modifications().DeleteByIDTx(ctx, tx, modification.ID)
		})
		if derr != nil && !goerrors.IsNotFound(derr) {
			return nil, nil, derr
		}
		return nil, nil, ErrModificationGone
	}

	return modification, account, nil
}

func recordModification(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEventType, account *Account) {
	e := ActivityEvent{
		EventType:  event,
		Actor:      ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID:  account.ID.String(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(sink).Record(ctx, e); err != nil {
		logger.Warn("modification activity sink error: %v", err)
	}
}

func hookURL(ctx context.Context, settings *SettingsService, kind string, logger Logger) string {
	current, err := settings.Current(ctx)
	if err != nil {
		logger.Warn("failed to read settings for %s hook: %v", kind, err)
		return ""
	}
	return current.Hook(kind)
}
