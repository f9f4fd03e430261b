package accounts

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CreateInvitationMessage issues an onboarding offer for an email that
// is not yet registered. At most one invitation exists per email.
type CreateInvitationMessage struct {
	Email string   `json:"email"`
	Role  string   `json:"role"`
	Actor ActorRef `json:"-"`

	OnResponse func(resp *CreateInvitationResponse)
}

func (m CreateInvitationMessage) Type() string { return "account.invitation" }

// Validate checks the message payload
func (m CreateInvitationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Role, validation.Required),
	)
}

// CreateInvitationResponse carries the created invitation.
type CreateInvitationResponse struct {
	Invitation *UserInvitation
}

type CreateInvitationHandler struct {
	repo   RepositoryManager
	codec  *EmailCodec
	tokens TokenService
	mailer Mailer
	logger Logger
}

// NewCreateInvitationHandler wires the invitation creation command
func NewCreateInvitationHandler(
	repo RepositoryManager,
	codec *EmailCodec,
	tokens TokenService,
	mailer Mailer,
) *CreateInvitationHandler {
	return &CreateInvitationHandler{
		repo:   repo,
		codec:  codec,
		tokens: tokens,
		mailer: mailer,
		logger: defLogger{},
	}
}

func (h *CreateInvitationHandler) WithLogger(logger Logger) *CreateInvitationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *CreateInvitationHandler) Execute(ctx context.Context, event CreateInvitationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invitation creation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CreateInvitationHandler) execute(ctx context.Context, event CreateInvitationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid invitation payload").
			WithCode(goerrors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if _, err := h.repo.Roles().GetByName(ctx, event.Role); err != nil {
		if goerrors.IsNotFound(err) {
			return goerrors.New("invitation role does not exist", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"role": event.Role})
		}
		return err
	}

	sealed, err := h.codec.Seal(ctx, event.Email)
	if err != nil {
		return err
	}

	var invitation *UserInvitation

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, _, err := h.repo.Accounts().GetByEmailTx(ctx, tx, sealed); err == nil {
			return ErrEmailTaken
		} else if !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
		}

		record := &UserInvitation{
			ID:    uuid.New(),
			Email: sealed,
			Role:  event.Role,
		}

		invitation, err = h.repo.Invitations().CreateReplacingTx(ctx, tx, record)
		return err
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invitation transaction failed")
	}

	token, err := h.tokens.CreateInvitationToken(invitation.ID.String(), invitation.ExpiresAt)
	if err != nil {
		return err
	}

	msg := MailMessage{
		To:      event.Email,
		Subject: "You have been invited",
		Body:    fmt.Sprintf("You were invited to create an account. The invitation expires in %s.", InvitationWindow),
		Link:    fmt.Sprintf("/authentication/invitation?token=%s", token),
	}

	if err := deliver(ctx, h.mailer, msg); err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&CreateInvitationResponse{Invitation: invitation})
	}

	return nil
}

// RedeemInvitationMessage converts an invitation into an active account.
type RedeemInvitationMessage struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Password string `json:"password"`

	OnResponse func(resp *RedeemInvitationResponse)
}

func (m RedeemInvitationMessage) Type() string { return "account.invitation.redeem" }

// Validate checks the message payload
func (m RedeemInvitationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required),
		validation.Field(&m.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&m.Password, validation.Required, validation.Length(8, 128)),
	)
}

// RedeemInvitationResponse carries the account created from the invitation.
type RedeemInvitationResponse struct {
	Account *Account
}

type RedeemInvitationHandler struct {
	repo         RepositoryManager
	codec        *EmailCodec
	tokens       TokenService
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// NewRedeemInvitationHandler wires the invitation redemption command
func NewRedeemInvitationHandler(
	repo RepositoryManager,
	codec *EmailCodec,
	tokens TokenService,
) *RedeemInvitationHandler {
	return &RedeemInvitationHandler{
		repo:         repo,
		codec:        codec,
		tokens:       tokens,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}
}

func (h *RedeemInvitationHandler) WithLogger(logger Logger) *RedeemInvitationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RedeemInvitationHandler) WithActivitySink(sink ActivitySink) *RedeemInvitationHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *RedeemInvitationHandler) WithClock(clock func() time.Time) *RedeemInvitationHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *RedeemInvitationHandler) Execute(ctx context.Context, event RedeemInvitationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during invitation redemption",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RedeemInvitationHandler) execute(ctx context.Context, event RedeemInvitationMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid invitation payload").
			WithCode(goerrors.CodeBadRequest)
	}

	claims, err := h.tokens.ValidateInvitationToken(event.Token)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	invitation, err := h.repo.Invitations().GetByID(ctx, claims.InvitationID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrTokenMalformed
		}
		return err
	}

	if invitation.Expired(h.now()) {
		derr := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return h.repo.Invitations().DeleteByIDTx(ctx, tx, invitation.ID)
		})
		if derr != nil && !goerrors.IsNotFound(derr) {
			h.logger.Warn("expired invitation cleanup failed: %v", derr)
		}
		return ErrModificationGone
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	email, err := h.codec.Open(ctx, invitation.Email)
	if err != nil {
		return err
	}

	account := &Account{
		Name:   event.Name,
		Role:   invitation.Role,
		Status: AccountStatusActive,
	}
	if id, err := hashid.NewUUID(NormalizeEmail(email)); err == nil {
		account.ID = id
	}

	creds := &Credentials{
		Email:        invitation.Email,
		PasswordHash: hash,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, _, err := h.repo.Accounts().GetByEmailTx(ctx, tx, invitation.Email); err == nil {
			return ErrEmailTaken
		} else if !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
		}

		if account, err = h.repo.Accounts().CreateWithCredentialsTx(ctx, tx, account, creds); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		return h.repo.Invitations().DeleteByIDTx(ctx, tx, invitation.ID)
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invitation redemption failed")
	}

	recordModification(ctx, h.activitySink, h.logger, ActivityEventInvitationRedeemed, account)

	if event.OnResponse != nil {
		event.OnResponse(&RedeemInvitationResponse{Account: account})
	}

	return nil
}
