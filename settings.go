package accounts

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SettingsService fronts the settings singleton. Token TTLs are cached
// process-wide and refreshed by an explicit Reload from the update path;
// other fields are read through. Multiple server instances converge
// eventually since there is no invalidation broadcast.
type SettingsService struct {
	store  SettingsStore
	logger Logger

	mu      sync.RWMutex
	auth    time.Duration
	refresh time.Duration
	primed  bool
}

// NewSettingsService builds the service over the given store
func NewSettingsService(store SettingsStore) *SettingsService {
	return &SettingsService{
		store:  store,
		logger: defLogger{},
	}
}

func (s *SettingsService) WithLogger(logger Logger) *SettingsService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Current returns the persisted singleton, creating it lazily
func (s *SettingsService) Current(ctx context.Context) (*Settings, error) {
	return s.store.Get(ctx)
}

// TokenTTLs returns the cached auth and refresh token lifetimes,
// priming the cache from the store on first use.
func (s *SettingsService) TokenTTLs(ctx context.Context) (time.Duration, time.Duration, error) {
	s.mu.RLock()
	if s.primed {
		auth, refresh := s.auth, s.refresh
		s.mu.RUnlock()
		return auth, refresh, nil
	}
	s.mu.RUnlock()

	if err := s.Reload(ctx); err != nil {
		return 0, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth, s.refresh, nil
}

// Reload refreshes the cached TTLs from the persisted settings. The
// settings-update path calls this after every write.
func (s *SettingsService) Reload(ctx context.Context) error {
	settings, err := s.store.Get(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = time.Duration(settings.AuthTokenMinutes) * time.Minute
	s.refresh = time.Duration(settings.RefreshTokenMinutes) * time.Minute
	s.primed = true

	return nil
}

// Update validates and persists new settings, then reloads the TTL cache.
func (s *SettingsService) Update(ctx context.Context, next *Settings) (*Settings, error) {
	if next == nil {
		return nil, goerrors.New("settings payload is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	if next.AuthTokenMinutes <= 0 || next.RefreshTokenMinutes <= 0 {
		return nil, goerrors.New("token expiration minutes must be positive", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if next.DefaultRole == "" {
		next.DefaultRole = RoleUser
	}

	for kind := range next.Hooks {
		switch kind {
		case HookAuthentication, HookPasswordReset, HookPasswordChange, HookEmailChange:
		default:
			return nil, goerrors.New("unknown hook kind", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"kind": kind})
		}
	}

	// the encryption toggle has its own transactional path
	current, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	next.EncryptEmails = current.EncryptEmails

	saved, err := s.store.Save(ctx, next)
	if err != nil {
		return nil, err
	}

	if err := s.Reload(ctx); err != nil {
		s.logger.Warn("settings saved but TTL cache reload failed: %v", err)
	}

	return saved, nil
}

// TwoFactorEnabledFor reports whether sign-in must be challenged for the
// given account class. Admin and client toggles are independent.
func (s *SettingsService) TwoFactorEnabledFor(ctx context.Context, account *Account) (bool, error) {
	settings, err := s.store.Get(ctx)
	if err != nil {
		return false, err
	}

	if account.IsAdmin() {
		return settings.TwoFactorAdmins, nil
	}

	return settings.TwoFactorClients, nil
}

// SeedSystemRoles makes sure the two system roles exist, leaving custom
// roles untouched. Called once at startup.
func SeedSystemRoles(ctx context.Context, repo RepositoryManager) error {
	for _, role := range SystemRoles() {
		existing, err := repo.Roles().GetByName(ctx, role.Name)
		if err == nil {
			// keep ADMIN in sync with newly defined scope groups
			if role.Name == RoleAdmin {
				existing.Scopes = role.Scopes
				if _, err := repo.Roles().Update(ctx, existing); err != nil {
					return err
				}
			}
			continue
		}

		if !goerrors.IsNotFound(err) {
			return err
		}

		if _, err := repo.Roles().Create(ctx, role); err != nil {
			return err
		}
	}

	return nil
}
