package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch = errors.New("XSRF token mismatch")
	ErrTokenMissing  = errors.New("XSRF token missing")
)

// DefaultTokenLength is the default length for XSRF tokens
const DefaultTokenLength = 32

// DefaultCookieName is the cookie the client script reads the token from.
// It is deliberately not HTTP-only.
const DefaultCookieName = "XSRF-TOKEN"

// DefaultHeaderName is the header the client must echo the token in
const DefaultHeaderName = "X-XSRF-TOKEN"

// DefaultContextKey is the key for storing the token in context
const DefaultContextKey = "xsrf_token"

// Config defines the configuration for the double-submit XSRF middleware.
// The token lives in a readable cookie; state-changing requests must echo
// it in a header, which a cross-site form cannot do.
type Config struct {
	// Skip defines a function to skip middleware, used to exempt
	// requests authenticated with a personal access token
	Skip func(router.Context) bool

	// TokenLength defines the length of the generated token in bytes
	TokenLength int

	// CookieName defines the cookie carrying the token
	CookieName string

	// HeaderName defines the header that must match the cookie
	HeaderName string

	// ContextKey defines the key for storing the token in context
	ContextKey string

	// CookieExpiration defines the cookie lifetime
	CookieExpiration time.Duration

	// Secure marks the cookie Secure; disable only in dev
	Secure bool

	// SafeMethods defines HTTP methods that don't require validation
	SafeMethods []string

	// ErrorHandler defines the error handler
	ErrorHandler router.ErrorHandler

	// SuccessHandler defines the success handler
	SuccessHandler router.HandlerFunc
}

// New creates the XSRF middleware
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := configDefault(config...)

		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			token := ctx.Cookies(cfg.CookieName)
			if token == "" {
				var err error
				token, err = generateToken(cfg.TokenLength)
				if err != nil {
					return cfg.ErrorHandler(ctx, err)
				}

				ctx.Cookie(&router.Cookie{
					Name:     cfg.CookieName,
					Value:    token,
					Expires:  time.Now().Add(cfg.CookieExpiration),
					HTTPOnly: false,
					Secure:   cfg.Secure,
					SameSite: "Lax",
				})
			}

			ctx.Locals(cfg.ContextKey, token)

			// safe methods don't require validation
			method := strings.ToUpper(ctx.Method())
			if slices.Contains(cfg.SafeMethods, method) {
				return cfg.SuccessHandler(ctx)
			}

			received := ctx.GetString(cfg.HeaderName, "")
			if received == "" {
				return cfg.ErrorHandler(ctx, ErrTokenMissing)
			}

			if subtle.ConstantTimeCompare([]byte(received), []byte(token)) != 1 {
				return cfg.ErrorHandler(ctx, ErrTokenMismatch)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

// generateToken generates a cryptographically secure random token
func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// configDefault returns a default config
func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenLength == 0 {
		cfg.TokenLength = DefaultTokenLength
	}

	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.CookieExpiration == 0 {
		cfg.CookieExpiration = 24 * time.Hour
	}

	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler()
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	return cfg
}

func defaultErrorHandler() router.ErrorHandler {
	return func(ctx router.Context, err error) error {
		switch err {
		case ErrTokenMissing:
			return ctx.Status(router.StatusForbidden).SendString("XSRF token missing")
		case ErrTokenMismatch:
			return ctx.Status(router.StatusForbidden).SendString("XSRF token mismatch")
		default:
			return ctx.Status(router.StatusInternalServerError).SendString("XSRF validation error")
		}
	}
}
