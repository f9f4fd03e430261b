package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-accounts/middleware/csrf"
	"github.com/goliatone/go-accounts/middleware/jwtware"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteAuthenticator bridges the token layer and the HTTP surface: it
// guards routes, moves the refresh token through an HTTP-only cookie,
// and translates errors into JSON responses.
type RouteAuthenticator struct {
	auth         Authenticator
	validator    TokenValidator
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// NewHTTPAuthenticator builds the HTTP bridge. The validator decides
// which token kinds a guarded route accepts; pass a MultiTokenValidator
// for routes that take interactive or personal access tokens.
func NewHTTPAuthenticator(auther Authenticator, validator TokenValidator, cfg Config) (*RouteAuthenticator, error) {
	if validator == nil {
		return nil, errors.New("token validator is required", errors.CategoryBadInput)
	}

	a := &RouteAuthenticator{
		cfg:       cfg,
		auth:      auther,
		validator: validator,
		Logger:    defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

// jwtValidator adapts a TokenValidator to the middleware interface
type jwtValidator struct {
	v TokenValidator
}

func (j jwtValidator) Validate(ctx context.Context, raw string) (jwtware.AuthClaims, error) {
	claims, err := j.v.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ProtectedRoute guards a route with bearer token auth. The token must
// belong to an active account and hold at least one of the required
// scopes when any are given.
func (a *RouteAuthenticator) ProtectedRoute(requiredScopes ...string) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return jwtware.New(jwtware.Config{
			ErrorHandler:    a.authErrorHandler,
			TokenValidator:  jwtValidator{v: a.validator},
			RequiredScopes:  requiredScopes,
			ContextEnricher: ContextEnricherAdapter,
		})(hf)
	}
}

// XSRFGuard pairs the XSRF cookie with its header on state-mutating
// routes, skipping requests that authenticate with a bearer header
// carrying a personal access token.
func (a *RouteAuthenticator) XSRFGuard(skip func(router.Context) bool) router.MiddlewareFunc {
	return csrf.New(csrf.Config{
		CookieName: a.cfg.GetXSRFCookieName(),
		Secure:     !a.cfg.GetDev(),
		Skip:       skip,
		ErrorHandler: func(ctx router.Context, err error) error {
			return a.ErrorHandler(ctx, ErrXSRFMismatch)
		},
	})
}

// SetRefreshCookie stores the refresh token in an HTTP-only cookie.
func (a *RouteAuthenticator) SetRefreshCookie(c router.Context, token string, expires time.Time) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetRefreshCookieName(),
		Value:    token,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   !a.cfg.GetDev(),
		SameSite: "Lax",
	})
}

// RefreshCookie reads the refresh token cookie.
func (a *RouteAuthenticator) RefreshCookie(c router.Context) string {
	return c.Cookies(a.cfg.GetRefreshCookieName())
}

// ClearRefreshCookie expires the refresh cookie.
func (a *RouteAuthenticator) ClearRefreshCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetRefreshCookieName(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   !a.cfg.GetDev(),
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) authErrorHandler(c router.Context, err error) error {
	var richErr *errors.Error

	if IsTokenExpiredError(err) {
		richErr = ErrTokenExpired
	} else if IsMalformedError(err) {
		richErr = ErrTokenMalformed
	} else if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
			WithCode(errors.CodeUnauthorized)
	}

	return a.ErrorHandler(c, richErr)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	if a.cfg.GetDev() {
		a.Logger.Debug(
			"request error: %s category=%s details=%s",
			richErr.Message,
			richErr.Category,
			print.MaybePrettyJSON(richErr.Metadata),
		)
	}

	return c.JSON(HTTPStatus(richErr), map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
			"category":  richErr.Category,
		},
	})
}

// HasAccessTokenAuth reports whether the request authenticates with a
// personal access token; the XSRF pairing is skipped for those.
func HasAccessTokenAuth(ts TokenService) func(router.Context) bool {
	return func(c router.Context) bool {
		raw, err := jwtware.ExtractRawTokenFromContext(c, jwtware.GetExtractors("header:"+router.HeaderAuthorization))
		if err != nil || raw == "" {
			return false
		}
		_, err = ts.ValidateAccessToken(raw)
		return err == nil
	}
}
