package accounts

import (
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the serializable view of a decoded auth token
type SessionObject struct {
	UserID   string        `json:"user_id,omitempty"`
	Role     string        `json:"role,omitempty"`
	Scopes   []string      `json:"scopes,omitempty"`
	Status   AccountStatus `json:"status,omitempty"`
	IssuedAt *time.Time    `json:"issued_at,omitempty"`
	Expires  *time.Time    `json:"expires,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetRole() string {
	return s.Role
}

func (s *SessionObject) GetScopes() []string {
	return s.Scopes
}

func (s *SessionObject) GetStatus() AccountStatus {
	return s.Status
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

// ContainsScopes mirrors the claims-level check for session consumers
func (s *SessionObject) ContainsScopes(required ...string) bool {
	return ContainsScopes(s.Scopes, required)
}

// IsActive reports whether the session belongs to an active account
func (s *SessionObject) IsActive() bool {
	return s.Status == AccountStatusActive
}

func sessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrTokenMalformed
	}

	session := &SessionObject{
		UserID: claims.UserID(),
		Role:   claims.Role(),
		Scopes: claims.Scopes(),
		Status: claims.Status(),
	}

	if issued := claims.IssuedAt(); !issued.IsZero() {
		session.IssuedAt = &issued
	}

	if expires := claims.Expires(); !expires.IsZero() {
		session.Expires = &expires
	}

	return session, nil
}
