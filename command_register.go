package accounts

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// RegisterAccountMessage creates a pending account and mails a
// confirmation link. The confirmation token is signed with the fresh
// password hash so a later password change invalidates the link.
type RegisterAccountMessage struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	IP       string `json:"-"`

	OnResponse func(resp *RegisterAccountResponse)
}

func (m RegisterAccountMessage) Type() string { return "account.register" }

// Validate checks the message payload before any mutation
func (m RegisterAccountMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(8, 128)),
	)
}

// RegisterAccountResponse carries the created account and the refresh
// token the HTTP layer sets as a cookie.
type RegisterAccountResponse struct {
	Account        *Account
	RefreshToken   string
	RefreshExpires time.Time
}

type RegisterAccountHandler struct {
	repo         RepositoryManager
	codec        *EmailCodec
	tokens       TokenService
	settings     *SettingsService
	blacklist    *BlacklistService
	mailer       Mailer
	activitySink ActivitySink
	logger       Logger
}

// NewRegisterAccountHandler wires the registration command
func NewRegisterAccountHandler(
	repo RepositoryManager,
	codec *EmailCodec,
	tokens TokenService,
	settings *SettingsService,
	blacklist *BlacklistService,
	mailer Mailer,
) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		repo:         repo,
		codec:        codec,
		tokens:       tokens,
		settings:     settings,
		blacklist:    blacklist,
		mailer:       mailer,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
}

func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterAccountHandler) WithActivitySink(sink ActivitySink) *RegisterAccountHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload").
			WithCode(goerrors.CodeBadRequest)
	}

	if err := h.blacklist.Guard(ctx, event.IP, event.Email); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	settings, err := h.settings.Current(ctx)
	if err != nil {
		return err
	}

	role := event.Role
	if role == "" {
		role = settings.DefaultRole
	}

	sealed, err := h.codec.Seal(ctx, event.Email)
	if err != nil {
		return err
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	account := &Account{
		Name:   event.Name,
		Role:   role,
		Status: AccountStatusPending,
	}
	if id, err := hashid.NewUUID(NormalizeEmail(event.Email)); err == nil {
		account.ID = id
	}

	creds := &Credentials{
		Email:        sealed,
		PasswordHash: hash,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, _, err := h.repo.Accounts().GetByEmailTx(ctx, tx, sealed); err == nil {
			return ErrEmailTaken
		} else if !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email uniqueness")
		}

		if account, err = h.repo.Accounts().CreateWithCredentialsTx(ctx, tx, account, creds); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	confirmToken, err := h.tokens.CreateModificationToken(account.ID.String(), hash, *account.PendingUntil)
	if err != nil {
		return err
	}

	msg := MailMessage{
		To:      event.Email,
		Subject: "Confirm your account",
		Body:    fmt.Sprintf("Welcome %s. Use the link below to activate your account.", event.Name),
		Link:    fmt.Sprintf("/authentication/confirm?token=%s", confirmToken),
	}

	if err := deliver(ctx, h.mailer, msg); err != nil {
		return err
	}

	h.recordRegistration(ctx, account)

	if event.OnResponse != nil {
		resp := &RegisterAccountResponse{Account: account}

		_, refreshTTL, err := h.settings.TokenTTLs(ctx)
		if err != nil {
			return err
		}

		refresh, err := h.tokens.CreateRefreshToken(account.ID.String(), refreshTTL)
		if err != nil {
			return err
		}

		resp.RefreshToken = refresh
		resp.RefreshExpires = time.Now().Add(refreshTTL)

		event.OnResponse(resp)
	}

	return nil
}

func (h *RegisterAccountHandler) recordRegistration(ctx context.Context, account *Account) {
	event := ActivityEvent{
		EventType:  ActivityEventRegistration,
		Actor:      ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID:  account.ID.String(),
		ToStatus:   AccountStatusPending,
		OccurredAt: time.Now(),
	}

	if err := h.activitySink.Record(ctx, event); err != nil {
		h.logger.Warn("registration activity sink error: %v", err)
	}
}
