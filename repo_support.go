package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Modifications stores pending user modifications. At most one record
// exists per (account, kind); CreateReplacingTx enforces that.
type Modifications interface {
	repository.Repository[*UserModification]

	CreateReplacingTx(ctx context.Context, tx bun.IDB, record *UserModification) (*UserModification, error)
	GetByAccountKind(ctx context.Context, accountID uuid.UUID, kind ModificationKind) (*UserModification, error)
	DeleteByAccountKindTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, kind ModificationKind) error
	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type modifications struct {
	repository.Repository[*UserModification]
	db *bun.DB
}

// NewModificationsRepository builds the pending-modification repository
func NewModificationsRepository(db *bun.DB) Modifications {
	repo := repository.NewRepository[*UserModification](db, repository.ModelHandlers[*UserModification]{
		NewRecord: func() *UserModification { return &UserModification{} },
		GetID: func(m *UserModification) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *UserModification, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
	})

	return &modifications{Repository: repo, db: db}
}

func (m *modifications) CreateReplacingTx(ctx context.Context, tx bun.IDB, record *UserModification) (*UserModification, error) {
	if err := m.DeleteByAccountKindTx(ctx, tx, record.AccountID, record.Kind); err != nil {
		return nil, err
	}

	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = time.Now().Add(ModificationWindow)
	}

	return m.Repository.CreateTx(ctx, tx, record)
}

func (m *modifications) GetByAccountKind(ctx context.Context, accountID uuid.UUID, kind ModificationKind) (*UserModification, error) {
	record := &UserModification{}
	err := m.db.NewSelect().Model(record).
		Where("?TableAlias.account_id = ?", accountID).
		Where("?TableAlias.kind = ?", kind).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"account_id": accountID.String(), "kind": kind})
		}
		return nil, err
	}

	return record, nil
}

func (m *modifications) DeleteByAccountKindTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, kind ModificationKind) error {
	_, err := tx.NewDelete().Model((*UserModification)(nil)).
		Where("account_id = ?", accountID).
		Where("kind = ?", kind).
		Exec(ctx)
	return err
}

func (m *modifications) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().Model((*UserModification)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	// second redemption of a raced token lands here
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

// TwoFactorCodes stores pending sign-in challenges, one per account.
type TwoFactorCodes interface {
	repository.Repository[*TwoFactorCode]

	CreateReplacingTx(ctx context.Context, tx bun.IDB, record *TwoFactorCode) (*TwoFactorCode, error)
	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type twoFactorCodes struct {
	repository.Repository[*TwoFactorCode]
	db *bun.DB
}

// NewTwoFactorCodesRepository builds the 2FA challenge repository
func NewTwoFactorCodesRepository(db *bun.DB) TwoFactorCodes {
	repo := repository.NewRepository[*TwoFactorCode](db, repository.ModelHandlers[*TwoFactorCode]{
		NewRecord: func() *TwoFactorCode { return &TwoFactorCode{} },
		GetID: func(c *TwoFactorCode) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *TwoFactorCode, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
	})

	return &twoFactorCodes{Repository: repo, db: db}
}

func (t *twoFactorCodes) CreateReplacingTx(ctx context.Context, tx bun.IDB, record *TwoFactorCode) (*TwoFactorCode, error) {
	if _, err := tx.NewDelete().Model((*TwoFactorCode)(nil)).
		Where("account_id = ?", record.AccountID).
		Exec(ctx); err != nil {
		return nil, err
	}

	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = time.Now().Add(TwoFactorWindow)
	}

	return t.Repository.CreateTx(ctx, tx, record)
}

func (t *twoFactorCodes) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().Model((*TwoFactorCode)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

// Invitations stores admin-issued onboarding offers, one per email.
type Invitations interface {
	repository.Repository[*UserInvitation]

	CreateReplacingTx(ctx context.Context, tx bun.IDB, record *UserInvitation) (*UserInvitation, error)
	GetByEmail(ctx context.Context, sealedEmail string) (*UserInvitation, error)
	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type invitations struct {
	repository.Repository[*UserInvitation]
	db *bun.DB
}

// NewInvitationsRepository builds the invitation repository
func NewInvitationsRepository(db *bun.DB) Invitations {
	repo := repository.NewRepository[*UserInvitation](db, repository.ModelHandlers[*UserInvitation]{
		NewRecord: func() *UserInvitation { return &UserInvitation{} },
		GetID: func(i *UserInvitation) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *UserInvitation, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &invitations{Repository: repo, db: db}
}

func (i *invitations) CreateReplacingTx(ctx context.Context, tx bun.IDB, record *UserInvitation) (*UserInvitation, error) {
	if _, err := tx.NewDelete().Model((*UserInvitation)(nil)).
		Where("email = ?", record.Email).
		Exec(ctx); err != nil {
		return nil, err
	}

	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = time.Now().Add(InvitationWindow)
	}

	return i.Repository.CreateTx(ctx, tx, record)
}

func (i *invitations) GetByEmail(ctx context.Context, sealedEmail string) (*UserInvitation, error) {
	record := &UserInvitation{}
	err := i.db.NewSelect().Model(record).
		Where("?TableAlias.email = ?", sealedEmail).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"identifier": "email"})
		}
		return nil, err
	}

	return record, nil
}

func (i *invitations) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().Model((*UserInvitation)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

// AccessTokens stores personal access token records.
type AccessTokens interface {
	repository.Repository[*AccessToken]
	AccessTokenReader

	GetByName(ctx context.Context, name string) (*AccessToken, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*AccessToken, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

type accessTokens struct {
	repository.Repository[*AccessToken]
	db *bun.DB
}

// NewAccessTokensRepository builds the personal access token repository
func NewAccessTokensRepository(db *bun.DB) AccessTokens {
	repo := repository.NewRepository[*AccessToken](db, repository.ModelHandlers[*AccessToken]{
		NewRecord: func() *AccessToken { return &AccessToken{} },
		GetID: func(t *AccessToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *AccessToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &accessTokens{Repository: repo, db: db}
}

func (t *accessTokens) GetAccessToken(ctx context.Context, id uuid.UUID) (*AccessToken, error) {
	record := &AccessToken{}
	err := t.db.NewSelect().Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (t *accessTokens) GetByName(ctx context.Context, name string) (*AccessToken, error) {
	record := &AccessToken{}
	err := t.db.NewSelect().Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"name": name})
		}
		return nil, err
	}

	return record, nil
}

func (t *accessTokens) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*AccessToken, error) {
	var records []*AccessToken
	err := t.db.NewSelect().Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (t *accessTokens) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := t.db.NewDelete().Model((*AccessToken)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}
