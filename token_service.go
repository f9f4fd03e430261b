package accounts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenService mints and verifies the five token kinds. Auth, refresh,
// personal access, and invitation tokens are signed with process secrets;
// modification tokens are signed with the owning account's password hash.
type TokenService interface {
	CreateAuthToken(identity Identity, scopes []string, ttl time.Duration) (string, error)
	CreateRefreshToken(userID string, ttl time.Duration) (string, error)
	CreateAccessToken(tokenID string, duration string) (string, time.Time, error)
	CreateModificationToken(modificationID string, passwordHash string, expiresAt time.Time) (string, error)
	CreateInvitationToken(invitationID string, expiresAt time.Time) (string, error)

	ValidateAuthToken(raw string) (AuthClaims, error)
	ValidateRefreshToken(raw string) (*RefreshTokenClaims, error)
	ValidateAccessToken(raw string) (*AccessTokenClaims, error)
	ValidateModificationToken(raw string, passwordHash string) (*ModificationTokenClaims, error)
	ValidateInvitationToken(raw string) (*InvitationTokenClaims, error)

	DecodeModificationID(raw string) (string, error)
	DecodeInvitationID(raw string) (string, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	authKey    []byte
	refreshKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		authKey:    []byte(cfg.GetAuthSigningKey()),
		refreshKey: []byte(cfg.GetRefreshSigningKey()),
		issuer:     cfg.GetIssuer(),
		audience:   cfg.GetAudience(),
		logger:     logger,
	}
}

// CreateAuthToken mints an interactive token carrying role, scopes, and
// the account lifecycle state at mint time.
func (ts *TokenServiceImpl) CreateAuthToken(identity Identity, scopes []string, ttl time.Duration) (string, error) {
	if identity == nil {
		return "", goerrors.New("identity is required", goerrors.CategoryBadInput)
	}

	now := time.Now()
	claims := &AuthTokenClaims{
		RegisteredClaims: ts.registered(identity.ID(), now, now.Add(ttl)),
		Kind:             TokenKindAuth,
		UID:              identity.ID(),
		UserRole:         identity.Role(),
		ScopeList:        append([]string(nil), scopes...),
		AccountStatus:    identity.Status(),
	}

	return ts.sign(claims, ts.authKey)
}

// CreateRefreshToken mints a refresh token carrying only the user id
func (ts *TokenServiceImpl) CreateRefreshToken(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", ErrNoEmptyString
	}

	now := time.Now()
	claims := &RefreshTokenClaims{
		RegisteredClaims: ts.registered(userID, now, now.Add(ttl)),
		Kind:             TokenKindRefresh,
		UID:              userID,
	}

	return ts.sign(claims, ts.refreshKey)
}

// CreateAccessToken mints a personal access token for the given record id.
// The duration string follows time.ParseDuration.
func (ts *TokenServiceImpl) CreateAccessToken(tokenID string, duration string) (string, time.Time, error) {
	ttl, err := time.ParseDuration(duration)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid token duration").
			WithCode(goerrors.CodeBadRequest)
	}

	if ttl <= 0 {
		return "", time.Time{}, goerrors.New("token duration must be positive", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &AccessTokenClaims{
		RegisteredClaims: ts.registered(tokenID, now, expiresAt),
		Kind:             TokenKindAccess,
		TokenID:          tokenID,
	}

	raw, err := ts.sign(claims, ts.authKey)
	return raw, expiresAt, err
}

// CreateModificationToken signs with the account's current password hash.
// A later password change invalidates every outstanding token without a
// revocation list.
func (ts *TokenServiceImpl) CreateModificationToken(modificationID string, passwordHash string, expiresAt time.Time) (string, error) {
	if passwordHash == "" {
		return "", ErrNoEmptyString
	}

	now := time.Now()
	claims := &ModificationTokenClaims{
		RegisteredClaims: ts.registered(modificationID, now, expiresAt),
		Kind:             TokenKindModification,
		ModificationID:   modificationID,
	}

	return ts.sign(claims, []byte(passwordHash))
}

// CreateInvitationToken mints a token bound to an invitation record. The
// server-side record expiration is authoritative.
func (ts *TokenServiceImpl) CreateInvitationToken(invitationID string, expiresAt time.Time) (string, error) {
	now := time.Now()
	claims := &InvitationTokenClaims{
		RegisteredClaims: ts.registered(invitationID, now, expiresAt),
		Kind:             TokenKindInvitation,
		InvitationID:     invitationID,
	}

	return ts.sign(claims, ts.authKey)
}

// ValidateAuthToken parses and validates an auth token, returning structured claims
func (ts *TokenServiceImpl) ValidateAuthToken(raw string) (AuthClaims, error) {
	claims := &AuthTokenClaims{}
	if err := ts.parse(raw, claims, ts.authKey); err != nil {
		return nil, err
	}
	if claims.Kind != TokenKindAuth {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ValidateRefreshToken parses and validates a refresh token
func (ts *TokenServiceImpl) ValidateRefreshToken(raw string) (*RefreshTokenClaims, error) {
	claims := &RefreshTokenClaims{}
	if err := ts.parse(raw, claims, ts.refreshKey); err != nil {
		return nil, err
	}
	if claims.Kind != TokenKindRefresh {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ValidateAccessToken parses and validates a personal access token envelope.
// Callers must still resolve the AccessToken record behind the tid claim.
func (ts *TokenServiceImpl) ValidateAccessToken(raw string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	if err := ts.parse(raw, claims, ts.authKey); err != nil {
		return nil, err
	}
	if claims.Kind != TokenKindAccess || claims.TokenID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ValidateModificationToken verifies a modification token against the
// password hash it was supposedly signed with. Signature failures surface
// as malformed, never revealing which part failed.
func (ts *TokenServiceImpl) ValidateModificationToken(raw string, passwordHash string) (*ModificationTokenClaims, error) {
	claims := &ModificationTokenClaims{}
	if err := ts.parse(raw, claims, []byte(passwordHash)); err != nil {
		return nil, err
	}
	if claims.Kind != TokenKindModification {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ValidateInvitationToken parses and validates an invitation token
func (ts *TokenServiceImpl) ValidateInvitationToken(raw string) (*InvitationTokenClaims, error) {
	claims := &InvitationTokenClaims{}
	if err := ts.parse(raw, claims, ts.authKey); err != nil {
		return nil, err
	}
	if claims.Kind != TokenKindInvitation {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// DecodeModificationID extracts the mid claim without verifying the
// signature. The result is only good for locating the record that holds
// the real signing material; it must never drive an authorization decision.
func (ts *TokenServiceImpl) DecodeModificationID(raw string) (string, error) {
	claims := &ModificationTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", ErrTokenMalformed
	}

	if claims.ModificationID == "" {
		return "", ErrTokenMalformed
	}

	return claims.ModificationID, nil
}

// DecodeInvitationID extracts the iid claim without verification
func (ts *TokenServiceImpl) DecodeInvitationID(raw string) (string, error) {
	claims := &InvitationTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", ErrTokenMalformed
	}

	if claims.InvitationID == "" {
		return "", ErrTokenMalformed
	}

	return claims.InvitationID, nil
}

func (ts *TokenServiceImpl) registered(subject string, issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	return jwt.RegisteredClaims{
		Issuer:    ts.issuer,
		Subject:   subject,
		Audience:  aud,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
}

func (ts *TokenServiceImpl) sign(claims jwt.Claims, key []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

func (ts *TokenServiceImpl) parse(raw string, claims jwt.Claims, key []byte) error {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService parse encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(goerrors.CodeForbidden)
	}

	if !token.Valid {
		return ErrTokenMalformed
	}

	return nil
}
