package accounts

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried on rich errors; the HTTP boundary switches on these
// for statuses that have no first-class go-errors code constant.
const (
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeTokenMalformed    = "TOKEN_MALFORMED"
	TextCodeAccountInactive   = "ACCOUNT_INACTIVE"
	TextCodeTokenGone         = "TOKEN_GONE"
	TextCodeTwoFactorExpired  = "TWO_FACTOR_EXPIRED"
	TextCodeTwoFactorMismatch = "TWO_FACTOR_MISMATCH"
	TextCodeMailDelivery      = "MAIL_DELIVERY_FAILED"
	TextCodeBlacklisted       = "BLACKLISTED"
	TextCodeMissingScope      = "MISSING_SCOPE"
	TextCodeXSRFMismatch      = "XSRF_MISMATCH"
)

// ErrIdentityNotFound is returned for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryAuth).
	WithTextCode("IDENTITY_NOT_FOUND").
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is the credential failure error. It is shared
// between unknown identifiers and wrong passwords so the sign-in endpoint
// cannot be used to enumerate accounts.
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects empty required values
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is a recoverable verification failure: the token was
// well-formed and correctly signed but its expiration has passed.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed covers bad signatures and undecodable tokens. It is
// deliberately indistinguishable from a missing-permission failure.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeForbidden)

// ErrMissingScope is returned when a decoded token lacks every required scope
var ErrMissingScope = goerrors.New("missing required scope", goerrors.CategoryAuthz).
	WithTextCode(TextCodeMissingScope).
	WithCode(goerrors.CodeForbidden)

// ErrXSRFMismatch is returned when the XSRF cookie and header disagree
var ErrXSRFMismatch = goerrors.New("xsrf token mismatch", goerrors.CategoryAuthz).
	WithTextCode(TextCodeXSRFMismatch).
	WithCode(goerrors.CodeForbidden)

// ErrAccountInactive rejects tokens minted for accounts that are not ACTIVE
var ErrAccountInactive = goerrors.New("account is not active", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountInactive).
	WithCode(http.StatusNotAcceptable)

// ErrModificationGone is returned when a modification record expired before redemption
var ErrModificationGone = goerrors.New("modification has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenGone).
	WithCode(http.StatusGone)

// ErrTwoFactorExpired is returned when a 2FA code expired before redemption
var ErrTwoFactorExpired = goerrors.New("two factor code has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTwoFactorExpired).
	WithCode(http.StatusGone)

// ErrTwoFactorMismatch is a conflict, not an auth failure, so callers cannot
// conflate a wrong code with a credential failure.
var ErrTwoFactorMismatch = goerrors.New("two factor code does not match", goerrors.CategoryConflict).
	WithTextCode(TextCodeTwoFactorMismatch).
	WithCode(goerrors.CodeConflict)

// ErrEmailTaken is returned when a registration or email change collides
var ErrEmailTaken = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode("EMAIL_TAKEN").
	WithCode(goerrors.CodeConflict)

// ErrAdminProtected rejects blacklisting an email or IP that belongs to
// an admin account.
var ErrAdminProtected = goerrors.New("admin accounts cannot be blacklisted", goerrors.CategoryValidation).
	WithTextCode("ADMIN_PROTECTED").
	WithCode(goerrors.CodeBadRequest)

// ErrAdminSignInRestricted rejects interactive admin sign in while the
// restrict_admin_login setting is on.
var ErrAdminSignInRestricted = goerrors.New("admin sign in is restricted", goerrors.CategoryAuthz).
	WithTextCode("ADMIN_SIGNIN_RESTRICTED").
	WithCode(goerrors.CodeForbidden)

// ErrBlacklisted rejects sign-in and registration from blacklisted origins
var ErrBlacklisted = goerrors.New("request origin is blacklisted", goerrors.CategoryAuthz).
	WithTextCode(TextCodeBlacklisted).
	WithCode(goerrors.CodeForbidden)

// ErrMailDelivery is returned when the downstream mailer rejects a send
var ErrMailDelivery = goerrors.New("mail delivery failed", goerrors.CategoryExternal).
	WithTextCode(TextCodeMailDelivery).
	WithCode(http.StatusFailedDependency)

// ErrTooManyLoginAttempts enforces the login cool down window
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode("TOO_MANY_ATTEMPTS").
	WithCode(http.StatusTooManyRequests)

// HTTPStatus resolves the response status for any error produced by this
// package. Unclassified errors surface as 500 with the bare message.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code > 0 {
		return richErr.Code
	}

	return http.StatusInternalServerError
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
