package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the account repository plus the credential-aware lookups the
// services need. Credentials are owned 1:1 by id-reference, never embedded.
type Accounts interface {
	repository.Repository[*Account]

	GetWithCredentials(ctx context.Context, id uuid.UUID) (*Account, *Credentials, error)
	GetWithCredentialsTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, *Credentials, error)
	GetByEmail(ctx context.Context, sealedEmail string) (*Account, *Credentials, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, sealedEmail string) (*Account, *Credentials, error)
	GetByLastLoginIPTx(ctx context.Context, tx bun.IDB, ip string) (*Account, error)

	CreateWithCredentialsTx(ctx context.Context, tx bun.IDB, account *Account, creds *Credentials) (*Account, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Account, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus) (*Account, error)

	SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	SetEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, sealedEmail string) error

	ListAll(ctx context.Context) ([]*Account, error)
	ListCredentialsTx(ctx context.Context, tx bun.IDB) ([]*Credentials, error)

	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account, ip string) error

	DeleteCascadeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

// NewAccountsRepository builds the bun-backed account repository
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) GetWithCredentials(ctx context.Context, id uuid.UUID) (*Account, *Credentials, error) {
	return a.GetWithCredentialsTx(ctx, a.db, id)
}

func (a *accounts) GetWithCredentialsTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, *Credentials, error) {
	account := &Account{}
	err := tx.NewSelect().Model(account).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, nil, err
	}

	creds := &Credentials{}
	err = tx.NewSelect().Model(creds).
		Where("?TableAlias.account_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"account_id": id.String()})
		}
		return nil, nil, err
	}

	return account, creds, nil
}

func (a *accounts) GetByEmail(ctx context.Context, sealedEmail string) (*Account, *Credentials, error) {
	return a.GetByEmailTx(ctx, a.db, sealedEmail)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, sealedEmail string) (*Account, *Credentials, error) {
	creds := &Credentials{}
	err := tx.NewSelect().Model(creds).
		Where("?TableAlias.email = ?", sealedEmail).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"identifier": "email"})
		}
		return nil, nil, err
	}

	account := &Account{}
	err = tx.NewSelect().Model(account).
		Where("?TableAlias.id = ?", creds.AccountID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": creds.AccountID.String()})
		}
		return nil, nil, err
	}

	return account, creds, nil
}

func (a *accounts) GetByLastLoginIPTx(ctx context.Context, tx bun.IDB, ip string) (*Account, error) {
	account := &Account{}
	err := tx.NewSelect().Model(account).
		Where("?TableAlias.last_login_ip = ?", ip).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"identifier": "last_login_ip"})
		}
		return nil, err
	}

	return account, nil
}

func (a *accounts) CreateWithCredentialsTx(ctx context.Context, tx bun.IDB, account *Account, creds *Credentials) (*Account, error) {
	prepareAccountDefaults(account)

	created, err := a.Repository.CreateTx(ctx, tx, account)
	if err != nil {
		return nil, err
	}

	creds.AccountID = created.ID
	if creds.ID == uuid.Nil {
		creds.ID = uuid.New()
	}

	if _, err := tx.NewInsert().Model(creds).Exec(ctx); err != nil {
		return nil, err
	}

	return created, nil
}

func (a *accounts) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Account, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status)
}

func (a *accounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus) (*Account, error) {
	record := &Account{}
	now := time.Now()

	res, err := tx.NewUpdate().Model(record).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return record, nil
}

func (a *accounts) SetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := tx.NewUpdate().Model((*Credentials)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", time.Now()).
		Where("account_id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"account_id": id.String()})
	}

	return nil
}

func (a *accounts) SetEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, sealedEmail string) error {
	res, err := tx.NewUpdate().Model((*Credentials)(nil)).
		Set("email = ?", sealedEmail).
		Set("updated_at = ?", time.Now()).
		Where("account_id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"account_id": id.String()})
	}

	return nil
}

func (a *accounts) ListAll(ctx context.Context) ([]*Account, error) {
	var records []*Account
	err := a.db.NewSelect().Model(&records).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *accounts) ListCredentialsTx(ctx context.Context, tx bun.IDB) ([]*Credentials, error) {
	var records []*Credentials
	err := tx.NewSelect().Model(&records).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account, ip string) error {
	loggedInAt := time.Now()
	_, err := a.db.NewUpdate().Model((*Account)(nil)).
		Set("loggedin_at = ?", loggedInAt).
		Set("last_login_ip = ?", ip).
		Set("login_attempt_at = NULL").
		Set("login_attempts = 0").
		Where("id = ?", account.ID).
		Where("deleted_at IS NULL").
		Exec(ctx)

	return err
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(account.ID.String()),
	}

	record := &Account{}
	record.ID = account.ID
	record.LoginAttempts = account.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, a.db, record, criteria...)

	return err
}

// DeleteCascadeTx removes the account along with its credentials and any
// outstanding single-use records.
func (a *accounts) DeleteCascadeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().Model((*Credentials)(nil)).
		Where("account_id = ?", id).Exec(ctx); err != nil {
		return err
	}

	if _, err := tx.NewDelete().Model((*UserModification)(nil)).
		Where("account_id = ?", id).Exec(ctx); err != nil {
		return err
	}

	if _, err := tx.NewDelete().Model((*TwoFactorCode)(nil)).
		Where("account_id = ?", id).Exec(ctx); err != nil {
		return err
	}

	if _, err := tx.NewDelete().Model((*AccessToken)(nil)).
		Where("account_id = ?", id).Exec(ctx); err != nil {
		return err
	}

	_, err := tx.NewDelete().Model((*Account)(nil)).
		Where("id = ?", id).Exec(ctx)

	return err
}

func prepareAccountDefaults(account *Account) {
	if account == nil {
		return
	}

	account.EnsureStatus()

	if account.Role == "" {
		account.Role = RoleUser
	}

	if account.Status == AccountStatusPending && account.PendingUntil == nil {
		until := time.Now().Add(PendingWindow)
		account.PendingUntil = &until
	}
}
