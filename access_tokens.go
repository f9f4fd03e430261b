package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AccessTokenService manages personal access tokens: named machine
// credentials carrying a snapshot of the owner's role and status plus an
// explicit scope list. The JWT only carries the record id; every request
// resolves the live record.
type AccessTokenService struct {
	repo   RepositoryManager
	tokens TokenService
	logger Logger
}

// NewAccessTokenService builds the personal access token service
func NewAccessTokenService(repo RepositoryManager, tokens TokenService) *AccessTokenService {
	return &AccessTokenService{
		repo:   repo,
		tokens: tokens,
		logger: defLogger{},
	}
}

func (s *AccessTokenService) WithLogger(logger Logger) *AccessTokenService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Create mints a named token for the account. The name must be unique
// across all accounts; duration is a time.ParseDuration string.
func (s *AccessTokenService) Create(ctx context.Context, account *Account, name string, scopes []string, duration string) (string, *AccessToken, error) {
	if name == "" {
		return "", nil, ErrNoEmptyString
	}

	for _, scope := range scopes {
		if !IsValidScope(scope) {
			return "", nil, goerrors.New("unknown scope", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithMetadata(map[string]any{"scope": scope})
		}
	}

	if _, err := s.repo.AccessTokens().GetByName(ctx, name); err == nil {
		return "", nil, goerrors.New("access token name already in use", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithMetadata(map[string]any{"name": name})
	} else if !goerrors.IsNotFound(err) {
		return "", nil, err
	}

	record := &AccessToken{
		ID:        uuid.New(),
		Name:      name,
		AccountID: account.ID,
		Role:      account.Role,
		Status:    account.Status,
		Scopes:    scopes,
	}

	raw, expiresAt, err := s.tokens.CreateAccessToken(record.ID.String(), duration)
	if err != nil {
		return "", nil, err
	}
	record.ExpiresAt = expiresAt

	created, err := s.repo.AccessTokens().Create(ctx, record)
	if err != nil {
		return "", nil, err
	}

	return raw, created, nil
}

// List returns the account's tokens. The raw JWTs are not recoverable.
func (s *AccessTokenService) List(ctx context.Context, accountID uuid.UUID) ([]*AccessToken, error) {
	return s.repo.AccessTokens().ListByAccount(ctx, accountID)
}

// Revoke deletes a token owned by the given account.
func (s *AccessTokenService) Revoke(ctx context.Context, accountID, tokenID uuid.UUID) error {
	record, err := s.repo.AccessTokens().GetAccessToken(ctx, tokenID)
	if err != nil {
		return err
	}

	if record.AccountID != accountID {
		return ErrMissingScope
	}

	return s.repo.AccessTokens().DeleteByID(ctx, tokenID)
}
