package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ConfirmRegistrationMessage activates a pending account from the
// emailed confirmation link. The token carries the account id and is
// signed with the password hash set at registration.
type ConfirmRegistrationMessage struct {
	Token string `json:"token"`

	OnResponse func(resp *ConfirmRegistrationResponse)
}

func (m ConfirmRegistrationMessage) Type() string { return "account.confirm" }

// ConfirmRegistrationResponse carries the activated account and the
// post-confirmation redirect hook, when configured.
type ConfirmRegistrationResponse struct {
	Account *Account
	Hook    string
}

type ConfirmRegistrationHandler struct {
	repo         RepositoryManager
	tokens       TokenService
	settings     *SettingsService
	machine      AccountStateMachine
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// NewConfirmRegistrationHandler wires the confirmation command
func NewConfirmRegistrationHandler(
	repo RepositoryManager,
	tokens TokenService,
	settings *SettingsService,
	machine AccountStateMachine,
) *ConfirmRegistrationHandler {
	return &ConfirmRegistrationHandler{
		repo:         repo,
		tokens:       tokens,
		settings:     settings,
		machine:      machine,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}
}

func (h *ConfirmRegistrationHandler) WithLogger(logger Logger) *ConfirmRegistrationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ConfirmRegistrationHandler) WithActivitySink(sink ActivitySink) *ConfirmRegistrationHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *ConfirmRegistrationHandler) WithClock(clock func() time.Time) *ConfirmRegistrationHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *ConfirmRegistrationHandler) Execute(ctx context.Context, event ConfirmRegistrationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration confirmation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmRegistrationHandler) execute(ctx context.Context, event ConfirmRegistrationMessage) error {
	if event.Token == "" {
		return ErrNoEmptyString
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// the unverified decode only names a candidate record; the token is
	// verified below against that record's password hash
	accountID, err := h.tokens.DecodeModificationID(event.Token)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(accountID)
	if err != nil {
		return ErrTokenMalformed
	}

	account, creds, err := h.repo.Accounts().GetWithCredentials(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrTokenMalformed
		}
		return err
	}

	if _, err := h.tokens.ValidateModificationToken(event.Token, creds.PasswordHash); err != nil {
		return err
	}

	if account.Status == AccountStatusActive {
		// a repeated visit to an already redeemed link is harmless
		return h.respond(ctx, event, account)
	}

	if account.Status != AccountStatusPending {
		return ErrAccountInactive
	}

	if account.PendingUntil != nil && h.now().After(*account.PendingUntil) {
		return ErrModificationGone
	}

	actor := ActorRef{ID: account.ID.String(), Type: "account"}
	if _, err := h.machine.Transition(ctx, actor, account, AccountStatusActive,
		WithTransitionReason("registration confirmed")); err != nil {
		return err
	}

	return h.respond(ctx, event, account)
}

func (h *ConfirmRegistrationHandler) respond(ctx context.Context, event ConfirmRegistrationMessage, account *Account) error {
	if event.OnResponse == nil {
		return nil
	}

	resp := &ConfirmRegistrationResponse{Account: account}

	settings, err := h.settings.Current(ctx)
	if err != nil {
		h.logger.Warn("failed to read settings for confirmation hook: %v", err)
	} else {
		resp.Hook = settings.Hook(HookAuthentication)
	}

	event.OnResponse(resp)

	return nil
}
