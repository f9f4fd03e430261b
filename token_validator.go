package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenValidator validates a raw credential and extracts claims without
// tying callers to a specific token kind.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (AuthClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(ctx context.Context, raw string) (AuthClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(ctx context.Context, raw string) (AuthClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(ctx, raw)
}

// MultiTokenValidator tries validators in order until one succeeds. It
// treats malformed-token failures as "try next" so API routes can accept
// either an interactive auth token or a personal access token.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(ctx context.Context, raw string) (AuthClaims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(ctx, raw)
		if err == nil {
			return claims, nil
		}
		if IsMalformedError(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}

// AuthTokenValidator wraps the TokenService for interactive tokens
func AuthTokenValidator(ts TokenService) TokenValidator {
	return TokenValidatorFunc(func(_ context.Context, raw string) (AuthClaims, error) {
		return ts.ValidateAuthToken(raw)
	})
}

// AccessTokenReader is the narrow store view the resolver needs
type AccessTokenReader interface {
	GetAccessToken(ctx context.Context, id uuid.UUID) (*AccessToken, error)
}

// AccessTokenResolver validates a personal access token envelope and
// resolves the record behind its tid claim. The returned claims carry the
// role/status snapshot and scope list captured when the token was created.
type AccessTokenResolver struct {
	tokens TokenService
	store  AccessTokenReader
	now    func() time.Time
}

// NewAccessTokenResolver builds a resolver over the given service and store
func NewAccessTokenResolver(tokens TokenService, store AccessTokenReader) *AccessTokenResolver {
	return &AccessTokenResolver{
		tokens: tokens,
		store:  store,
		now:    time.Now,
	}
}

// Validate satisfies the TokenValidator interface.
func (r *AccessTokenResolver) Validate(ctx context.Context, raw string) (AuthClaims, error) {
	claims, err := r.tokens.ValidateAccessToken(raw)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.TokenID)
	if err != nil {
		return nil, ErrTokenMalformed
	}

	record, err := r.store.GetAccessToken(ctx, id)
	if err != nil {
		// a deleted record and a bad token are indistinguishable on purpose
		return nil, ErrTokenMalformed
	}

	if record.Expired(r.now()) {
		return nil, ErrTokenExpired
	}

	return &AuthTokenClaims{
		UID:           record.AccountID.String(),
		UserRole:      record.Role,
		ScopeList:     append([]string(nil), record.Scopes...),
		AccountStatus: record.Status,
	}, nil
}
