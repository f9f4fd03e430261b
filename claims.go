package accounts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents a decoded interactive auth token
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	Scopes() []string
	Status() AccountStatus
	ContainsScopes(required ...string) bool
	IsActive() bool
	Expires() time.Time
	IssuedAt() time.Time
}

// Token kind discriminators. Auth, personal access, and invitation
// tokens all sign with the same process secret, so every claim shape
// carries a knd claim and each validator checks it: a token of one kind
// can never pass another kind's validator.
const (
	TokenKindAuth         = "auth"
	TokenKindRefresh      = "refresh"
	TokenKindAccess       = "access"
	TokenKindModification = "modification"
	TokenKindInvitation   = "invitation"
)

// AuthTokenClaims is the concrete claim shape of auth tokens
type AuthTokenClaims struct {
	jwt.RegisteredClaims
	Kind          string   `json:"knd,omitempty"`
	UID           string   `json:"uid,omitempty"`
	UserRole      string   `json:"role,omitempty"`
	ScopeList     []string `json:"scopes,omitempty"`
	AccountStatus string   `json:"state,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*AuthTokenClaims)(nil)

// Subject returns the subject claim
func (c *AuthTokenClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *AuthTokenClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the account's role name at mint time
func (c *AuthTokenClaims) Role() string {
	return c.UserRole
}

// Scopes returns the scope set carried by the token
func (c *AuthTokenClaims) Scopes() []string {
	return c.ScopeList
}

// Status returns the account lifecycle state at mint time
func (c *AuthTokenClaims) Status() AccountStatus {
	return c.AccountStatus
}

// ContainsScopes is true when the token holds at least one required scope
func (c *AuthTokenClaims) ContainsScopes(required ...string) bool {
	return ContainsScopes(c.ScopeList, required)
}

// IsActive reports whether the token was minted for an active account.
// Lifecycle state is enforced here, at the authorization layer, rather
// than at sign-in time.
func (c *AuthTokenClaims) IsActive() bool {
	return c.AccountStatus == AccountStatusActive
}

// Expires returns the expiration time
func (c *AuthTokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *AuthTokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// RefreshTokenClaims is the claim shape of refresh tokens: user id only.
type RefreshTokenClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"knd,omitempty"`
	UID  string `json:"uid,omitempty"`
}

// UserID returns the user ID
func (c *RefreshTokenClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// AccessTokenClaims carries only the personal access token record id; the
// actual role/scope snapshot is resolved by looking up that record.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Kind    string `json:"knd,omitempty"`
	TokenID string `json:"tid"`
}

// ModificationTokenClaims carries the pending modification id. The token is
// signed with the owning account's password hash, so it self-invalidates
// the moment the password changes.
type ModificationTokenClaims struct {
	jwt.RegisteredClaims
	Kind           string `json:"knd,omitempty"`
	ModificationID string `json:"mid"`
}

// InvitationTokenClaims carries the invitation record id.
type InvitationTokenClaims struct {
	jwt.RegisteredClaims
	Kind         string `json:"knd,omitempty"`
	InvitationID string `json:"iid"`
}
