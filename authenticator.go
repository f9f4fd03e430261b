package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	// MaxLoginAttempts is the number of consecutive failures before
	// sign in is throttled.
	MaxLoginAttempts = 5
	// LoginCooldownPeriod is how long the throttle lasts after the
	// last failed attempt.
	LoginCooldownPeriod = "15m"
)

// SignInResult is the outcome of a credential check. Exactly one of
// Token or TwoFactorAuthID is set: a challenged sign in carries the
// challenge id instead of tokens.
type SignInResult struct {
	Token           *string `json:"token"`
	Hook            *string `json:"hook"`
	TwoFactorAuthID *string `json:"twoFactorAuthId"`

	RefreshToken   string    `json:"-"`
	RefreshExpires time.Time `json:"-"`
}

// Authenticator drives the interactive sign in and token refresh flows.
type Authenticator interface {
	SignIn(ctx context.Context, email, password, ip string) (*SignInResult, error)
	CompleteTwoFactor(ctx context.Context, challengeID uuid.UUID, code, ip string) (*SignInResult, error)
	Refresh(ctx context.Context, rawRefreshToken string) (*SignInResult, error)
	IssueTokens(ctx context.Context, account *Account, email string) (*SignInResult, error)
}

type authenticator struct {
	repo         RepositoryManager
	tokens       TokenService
	settings     *SettingsService
	blacklist    *BlacklistService
	twoFactor    *TwoFactorService
	codec        *EmailCodec
	activitySink ActivitySink
	logger       Logger
}

// AuthenticatorOption customizes authenticator construction.
type AuthenticatorOption func(*authenticator)

// WithAuthenticatorLogger overrides the default logger
func WithAuthenticatorLogger(logger Logger) AuthenticatorOption {
	return func(a *authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAuthenticatorActivitySink wires the audit sink
func WithAuthenticatorActivitySink(sink ActivitySink) AuthenticatorOption {
	return func(a *authenticator) {
		a.activitySink = normalizeActivitySink(sink)
	}
}

// NewAuthenticator wires the sign in flow over its collaborators
func NewAuthenticator(
	repo RepositoryManager,
	tokens TokenService,
	settings *SettingsService,
	blacklist *BlacklistService,
	twoFactor *TwoFactorService,
	codec *EmailCodec,
	opts ...AuthenticatorOption,
) Authenticator {
	a := &authenticator{
		repo:         repo,
		tokens:       tokens,
		settings:     settings,
		blacklist:    blacklist,
		twoFactor:    twoFactor,
		codec:        codec,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// SignIn runs the full gate sequence: blacklist, credential check with
// attempt throttling, then either a two factor challenge or token
// issuance.
func (a *authenticator) SignIn(ctx context.Context, email, password, ip string) (*SignInResult, error) {
	if email == "" || password == "" {
		return nil, ErrNoEmptyString
	}

	if err := a.blacklist.Guard(ctx, ip, email); err != nil {
		return nil, err
	}

	sealed, err := a.codec.Seal(ctx, email)
	if err != nil {
		return nil, err
	}

	account, creds, err := a.repo.Accounts().GetByEmail(ctx, sealed)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// burn a comparison so unknown emails cost the same
			_ = ComparePasswordAndHash(password, RandomPasswordHash())
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, err
	}

	if a.throttled(account) {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, creds.PasswordHash); err != nil {
		if terr := a.repo.Accounts().TrackAttemptedLogin(ctx, account); terr != nil {
			a.logger.Warn("failed to track login attempt: %v", terr)
		}
		a.record(ctx, ActivityEventSignInFailure, account, map[string]any{"ip": ip})
		return nil, err
	}

	if account.IsAdmin() {
		settings, err := a.settings.Current(ctx)
		if err != nil {
			return nil, err
		}
		if settings.RestrictAdminLogin {
			a.record(ctx, ActivityEventSignInFailure, account, map[string]any{"ip": ip, "restricted": true})
			return nil, ErrAdminSignInRestricted
		}
	}

	challenged, err := a.settings.TwoFactorEnabledFor(ctx, account)
	if err != nil {
		return nil, err
	}

	if challenged {
		challengeID, err := a.twoFactor.Challenge(ctx, account, email)
		if err != nil {
			return nil, err
		}

		a.record(ctx, ActivityEventSignInChallenged, account, map[string]any{"ip": ip})

		id := challengeID.String()
		return &SignInResult{TwoFactorAuthID: &id}, nil
	}

	result, err := a.IssueTokens(ctx, account, email)
	if err != nil {
		return nil, err
	}

	if err := a.repo.Accounts().TrackSuccessfulLogin(ctx, account, ip); err != nil {
		a.logger.Warn("failed to track successful login: %v", err)
	}

	a.record(ctx, ActivityEventSignInSuccess, account, map[string]any{"ip": ip})

	return result, nil
}

// CompleteTwoFactor redeems a pending challenge and finishes sign in.
func (a *authenticator) CompleteTwoFactor(ctx context.Context, challengeID uuid.UUID, code, ip string) (*SignInResult, error) {
	account, err := a.twoFactor.Redeem(ctx, challengeID, code)
	if err != nil {
		return nil, err
	}

	_, creds, err := a.repo.Accounts().GetWithCredentials(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	email, err := a.codec.Open(ctx, creds.Email)
	if err != nil {
		return nil, err
	}

	result, err := a.IssueTokens(ctx, account, email)
	if err != nil {
		return nil, err
	}

	if err := a.repo.Accounts().TrackSuccessfulLogin(ctx, account, ip); err != nil {
		a.logger.Warn("failed to track successful login: %v", err)
	}

	a.record(ctx, ActivityEventSignInSuccess, account, map[string]any{"ip": ip, "two_factor": true})

	return result, nil
}

// Refresh validates the refresh cookie and rotates both tokens.
func (a *authenticator) Refresh(ctx context.Context, rawRefreshToken string) (*SignInResult, error) {
	claims, err := a.tokens.ValidateRefreshToken(rawRefreshToken)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.UID)
	if err != nil {
		return nil, ErrTokenMalformed
	}

	account, creds, err := a.repo.Accounts().GetWithCredentials(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}

	email, err := a.codec.Open(ctx, creds.Email)
	if err != nil {
		return nil, err
	}

	result, err := a.IssueTokens(ctx, account, email)
	if err != nil {
		return nil, err
	}

	a.record(ctx, ActivityEventTokenRefreshed, account, nil)

	return result, nil
}

// IssueTokens mints an auth and refresh token pair for the account,
// resolving the role's scopes and the configured TTLs.
func (a *authenticator) IssueTokens(ctx context.Context, account *Account, email string) (*SignInResult, error) {
	scopes, err := a.scopesFor(ctx, account)
	if err != nil {
		return nil, err
	}

	authTTL, refreshTTL, err := a.settings.TokenTTLs(ctx)
	if err != nil {
		return nil, err
	}

	identity := NewIdentityFromAccount(account, email)

	authToken, err := a.tokens.CreateAuthToken(identity, scopes, authTTL)
	if err != nil {
		return nil, err
	}

	refreshToken, err := a.tokens.CreateRefreshToken(account.ID.String(), refreshTTL)
	if err != nil {
		return nil, err
	}

	hook := a.hookFor(ctx)

	return &SignInResult{
		Token:          &authToken,
		Hook:           hook,
		RefreshToken:   refreshToken,
		RefreshExpires: time.Now().Add(refreshTTL),
	}, nil
}

func (a *authenticator) scopesFor(ctx context.Context, account *Account) ([]string, error) {
	role, err := a.repo.Roles().GetByName(ctx, account.Role)
	if err != nil {
		if goerrors.IsNotFound(err) {
			a.logger.Warn("account %s references unknown role %q", account.ID, account.Role)
			return nil, nil
		}
		return nil, err
	}

	return role.Scopes, nil
}

func (a *authenticator) hookFor(ctx context.Context) *string {
	settings, err := a.settings.Current(ctx)
	if err != nil {
		a.logger.Warn("failed to read settings for hook lookup: %v", err)
		return nil
	}

	if hook := settings.Hook(HookAuthentication); hook != "" {
		return &hook
	}

	return nil
}

func (a *authenticator) throttled(account *Account) bool {
	if account.LoginAttempts < MaxLoginAttempts {
		return false
	}

	if account.LoginAttemptAt == nil {
		return false
	}

	within, err := IsWithinThresholdPeriod(*account.LoginAttemptAt, LoginCooldownPeriod)
	if err != nil {
		a.logger.Error("invalid login cooldown period: %v", err)
		return false
	}

	return within
}

func (a *authenticator) record(ctx context.Context, event ActivityEventType, account *Account, meta map[string]any) {
	e := ActivityEvent{
		EventType:  event,
		Actor:      ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID:  account.ID.String(),
		Metadata:   meta,
		OccurredAt: time.Now(),
	}

	if err := a.activitySink.Record(ctx, e); err != nil {
		a.logger.Warn("authenticator activity sink error: %v", err)
	}
}
