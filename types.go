package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the process-level secrets and defaults. Mutable policy
// (token TTL minutes, toggles, hooks) lives in Settings.
type Config interface {
	GetAuthSigningKey() string
	GetRefreshSigningKey() string
	GetEncryptionKey() []byte
	GetEncryptionIV() []byte
	GetIssuer() string
	GetAudience() []string
	GetAuthTokenMinutes() int
	GetRefreshTokenMinutes() int
	GetRefreshCookieName() string
	GetXSRFCookieName() string
	GetDev() bool
}

// Identity holds the attributes of an authenticated principal
type Identity interface {
	ID() string
	Name() string
	Email() string
	Role() string
	Status() AccountStatus
}

// Session holds attributes decoded from an auth token
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetRole() string
	GetScopes() []string
	GetStatus() AccountStatus
	GetIssuedAt() *time.Time
}

// Mailer delivers outbound notifications. Implementations live in the
// host application; failures surface as FailedDependency errors.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// MailMessage is the payload handed to a Mailer.
type MailMessage struct {
	To      string
	Subject string
	Body    string
	Link    string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
