package accounts

import (
	"context"
	"strings"

	"github.com/goliatone/go-router"
)

// WSTokenValidator implements go-router's WSTokenValidator interface
// using the interactive token verifier, for WebSocket authentication.
type WSTokenValidator struct {
	tokens TokenService
}

// NewWSTokenValidator creates a WebSocket token validator backed by the given TokenService
func NewWSTokenValidator(tokens TokenService) *WSTokenValidator {
	return &WSTokenValidator{
		tokens: tokens,
	}
}

// Validate validates a token string and returns WebSocket-compatible auth claims
func (w *WSTokenValidator) Validate(tokenString string) (router.WSAuthClaims, error) {
	claims, err := w.tokens.ValidateAuthToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &WSAuthClaimsAdapter{claims: claims}, nil
}

// WSAuthClaimsAdapter adapts AuthClaims to go-router's WSAuthClaims
// interface, mapping resource access onto the scope grammar: resource
// "user" reads check USER_READ, writes check USER_WRITE.
type WSAuthClaimsAdapter struct {
	claims AuthClaims
}

// Subject returns the subject claim
func (w *WSAuthClaimsAdapter) Subject() string {
	return w.claims.Subject()
}

// UserID returns the account ID
func (w *WSAuthClaimsAdapter) UserID() string {
	return w.claims.UserID()
}

// Role returns the account's role
func (w *WSAuthClaimsAdapter) Role() string {
	return w.claims.Role()
}

// CanRead checks the read scope for the resource
func (w *WSAuthClaimsAdapter) CanRead(resource string) bool {
	return w.claims.ContainsScopes(resourceScope(resource, "READ"))
}

// CanEdit checks the write scope for the resource
func (w *WSAuthClaimsAdapter) CanEdit(resource string) bool {
	return w.claims.ContainsScopes(resourceScope(resource, "WRITE"))
}

// CanCreate checks the write scope for the resource
func (w *WSAuthClaimsAdapter) CanCreate(resource string) bool {
	return w.claims.ContainsScopes(resourceScope(resource, "WRITE"))
}

// CanDelete checks the write scope for the resource
func (w *WSAuthClaimsAdapter) CanDelete(resource string) bool {
	return w.claims.ContainsScopes(resourceScope(resource, "WRITE"))
}

// HasRole checks if the account holds the given role
func (w *WSAuthClaimsAdapter) HasRole(role string) bool {
	return strings.EqualFold(w.claims.Role(), role)
}

// IsAtLeast checks if the account's role is at least the given role;
// ADMIN outranks USER.
func (w *WSAuthClaimsAdapter) IsAtLeast(minRole string) bool {
	if strings.EqualFold(minRole, RoleAdmin) {
		return strings.EqualFold(w.claims.Role(), RoleAdmin)
	}
	return true
}

func resourceScope(resource, action string) string {
	return strings.ToUpper(strings.TrimSpace(resource)) + "_" + action
}

// NewWSAuthMiddleware creates a configured WebSocket authentication
// middleware using the given TokenService.
func NewWSAuthMiddleware(tokens TokenService, config ...router.WSAuthConfig) router.WebSocketMiddleware {
	validator := NewWSTokenValidator(tokens)

	var cfg router.WSAuthConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	cfg.TokenValidator = validator

	return router.NewWSAuth(cfg)
}

// WSAuthClaimsFromContext retrieves auth claims from a WebSocket context.
func WSAuthClaimsFromContext(ctx context.Context) (AuthClaims, bool) {
	wsAuthClaims, ok := router.WSAuthClaimsFromContext(ctx)
	if !ok {
		return nil, false
	}

	if adapter, ok := wsAuthClaims.(*WSAuthClaimsAdapter); ok {
		return adapter.claims, true
	}

	return nil, false
}
