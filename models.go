package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle state of an account
type AccountStatus = string

const (
	// AccountStatusPending is a registered account awaiting email confirmation
	AccountStatusPending AccountStatus = "pending"
	// AccountStatusActive is a confirmed account
	AccountStatusActive AccountStatus = "active"
	// AccountStatusBlocked is an account denied by an admin or the blacklist
	AccountStatusBlocked AccountStatus = "blocked"
)

// PendingWindow is the registration confirmation window
const PendingWindow = 48 * time.Hour

// Account is the identity record. Credentials are held 1:1 in a separate
// record referenced by AccountID so the email field can be re-encrypted
// in bulk without touching accounts.
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acc"`
	ID             uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name           string        `bun:"name,notnull" json:"name,omitempty"`
	Role           string        `bun:"role,notnull" json:"role,omitempty"`
	Status         AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	PendingUntil   *time.Time    `bun:"pending_until,nullzero" json:"pending_until,omitempty"`
	LastLoginIP    string        `bun:"last_login_ip" json:"last_login_ip,omitempty"`
	LoggedInAt     *time.Time    `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	LoginAttempts  int           `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time    `bun:"login_attempt_at,nullzero" json:"login_attempt_at,omitempty"`
	CreatedAt      *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time    `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus normalizes the zero value to active
func (a *Account) EnsureStatus() {
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
}

// IsAdmin reports whether the account holds the system admin role
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// Credentials holds the account's email and hashed password. The email is
// stored plaintext or deterministically encrypted depending on the
// system-wide Settings.EncryptEmails toggle; either way it stays unique
// and equality-comparable.
type Credentials struct {
	bun.BaseModel `bun:"table:credentials,alias:crd"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,unique,type:uuid" json:"account_id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Role is a named permission bundle
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name,omitempty"`
	Description   string     `bun:"description" json:"description,omitempty"`
	Scopes        []string   `bun:"scopes" json:"scopes,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsSystem reports whether the role is one of the two seeded roles
func (r *Role) IsSystem() bool {
	return r != nil && (r.Name == RoleAdmin || r.Name == RoleUser)
}

// SettingsID keys the settings singleton
const SettingsID = "system"

// Hook kinds for the webhook URL map
const (
	HookAuthentication = "authentication"
	HookPasswordReset  = "password_reset"
	HookPasswordChange = "password_change"
	HookEmailChange    = "email_change"
)

// Settings is the global policy singleton, created lazily on first read.
type Settings struct {
	bun.BaseModel       `bun:"table:settings,alias:set"`
	ID                  string            `bun:"id,pk" json:"id,omitempty"`
	RestrictAdminLogin  bool              `bun:"restrict_admin_login" json:"restrict_admin_login"`
	RegistrationView    bool              `bun:"registration_view" json:"registration_view"`
	ShowPrivacyPolicy   bool              `bun:"show_privacy_policy" json:"show_privacy_policy"`
	PrivacyPolicyURL    string            `bun:"privacy_policy_url" json:"privacy_policy_url,omitempty"`
	DefaultRole         string            `bun:"default_role,notnull" json:"default_role,omitempty"`
	Hooks               map[string]string `bun:"hooks" json:"hooks,omitempty"`
	TwoFactorAdmins     bool              `bun:"two_factor_admins" json:"two_factor_admins"`
	TwoFactorClients    bool              `bun:"two_factor_clients" json:"two_factor_clients"`
	EncryptEmails       bool              `bun:"encrypt_emails" json:"encrypt_emails"`
	AuthTokenMinutes    int               `bun:"auth_token_minutes,notnull" json:"auth_token_minutes,omitempty"`
	RefreshTokenMinutes int               `bun:"refresh_token_minutes,notnull" json:"refresh_token_minutes,omitempty"`
	CreatedAt           *time.Time        `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time        `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Hook returns the webhook URL configured for the given kind
func (s *Settings) Hook(kind string) string {
	if s == nil || s.Hooks == nil {
		return ""
	}
	return s.Hooks[kind]
}

// ModificationKind is the target of a pending user modification
type ModificationKind = string

const (
	// ModificationEmail is a pending email change
	ModificationEmail ModificationKind = "email"
	// ModificationPassword is a pending authenticated password change
	ModificationPassword ModificationKind = "password"
	// ModificationPasswordReset is a pending forgotten-password reset
	ModificationPasswordReset ModificationKind = "password_reset"
)

// ModificationWindow is the default lifetime of a pending modification
const ModificationWindow = 5 * time.Minute

// UserModification is a time-boxed, single-purpose pending action. At most
// one exists per (account, kind); creating a newer one supersedes it.
type UserModification struct {
	bun.BaseModel `bun:"table:user_modifications,alias:mod"`
	ID            uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID        `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Kind          ModificationKind `bun:"kind,notnull" json:"kind,omitempty"`
	ExpiresAt     time.Time        `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	OriginEmail   string           `bun:"origin_email" json:"origin_email,omitempty"`
	NewEmail      string           `bun:"new_email" json:"new_email,omitempty"`
	PasswordHash  string           `bun:"password_hash" json:"-"`
	CreatedAt     *time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the modification window has passed
func (m *UserModification) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// TwoFactorWindow is the default lifetime of a 2FA challenge
const TwoFactorWindow = 5 * time.Minute

// TwoFactorCode is a pending sign-in challenge, at most one per account.
type TwoFactorCode struct {
	bun.BaseModel `bun:"table:two_factor_codes,alias:tfa"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,unique,type:uuid" json:"account_id,omitempty"`
	Code          string     `bun:"code,notnull" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the challenge window has passed
func (c *TwoFactorCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// InvitationWindow is the default lifetime of an invitation
const InvitationWindow = 10 * time.Minute

// UserInvitation is an admin-issued onboarding offer, one per email.
type UserInvitation struct {
	bun.BaseModel `bun:"table:user_invitations,alias:inv"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Role          string     `bun:"role,notnull" json:"role,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the invitation window has passed
func (i *UserInvitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// BlacklistEntry holds either an IP or an email, never both.
type BlacklistEntry struct {
	bun.BaseModel `bun:"table:blacklist,alias:blk"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	IP            string     `bun:"ip,nullzero,unique" json:"ip,omitempty"`
	Email         string     `bun:"email,nullzero,unique" json:"email,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// AccessToken is a named machine-to-machine credential carrying a snapshot
// of the owner's role and status at creation time plus an explicit scope list.
type AccessToken struct {
	bun.BaseModel `bun:"table:access_tokens,alias:atk"`
	ID            uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string        `bun:"name,notnull,unique" json:"name,omitempty"`
	AccountID     uuid.UUID     `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Role          string        `bun:"role,notnull" json:"role,omitempty"`
	Status        AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	Scopes        []string      `bun:"scopes" json:"scopes,omitempty"`
	ExpiresAt     time.Time     `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the access token record has lapsed
func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
