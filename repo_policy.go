package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles stores permission bundles.
type Roles interface {
	repository.Repository[*Role]

	GetByName(ctx context.Context, name string) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	// DeleteReassigningTx removes a role after moving every holder to the
	// fallback role, inside the caller's transaction.
	DeleteReassigningTx(ctx context.Context, tx bun.IDB, name, fallback string) error
}

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

// NewRolesRepository builds the role repository
func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &roles{Repository: repo, db: db}
}

func (r *roles) GetByName(ctx context.Context, name string) (*Role, error) {
	return r.GetByNameTx(ctx, r.db, name)
}

func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().Model(record).
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

func (r *roles) List(ctx context.Context) ([]*Role, error) {
	var records []*Role
	err := r.db.NewSelect().Model(&records).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *roles) DeleteReassigningTx(ctx context.Context, tx bun.IDB, name, fallback string) error {
	if _, err := tx.NewUpdate().Model((*Account)(nil)).
		Set("role = ?", fallback).
		Set("updated_at = ?", time.Now()).
		Where("role = ?", name).
		Where("deleted_at IS NULL").
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().Model((*Role)(nil)).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"name": name})
	}

	return nil
}

// Blacklist stores blocked IPs and emails, one value per entry.
type Blacklist interface {
	repository.Repository[*BlacklistEntry]

	GetByIP(ctx context.Context, ip string) (*BlacklistEntry, error)
	GetByEmail(ctx context.Context, sealedEmail string) (*BlacklistEntry, error)
	List(ctx context.Context) ([]*BlacklistEntry, error)
	ListTx(ctx context.Context, tx bun.IDB) ([]*BlacklistEntry, error)
	UpdateEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, sealedEmail string) error
	DeleteByIP(ctx context.Context, ip string) error
	DeleteByIPTx(ctx context.Context, tx bun.IDB, ip string) error
	DeleteByEmailTx(ctx context.Context, tx bun.IDB, sealedEmail string) error
}

type blacklist struct {
	repository.Repository[*BlacklistEntry]
	db *bun.DB
}

// NewBlacklistRepository builds the blacklist repository
func NewBlacklistRepository(db *bun.DB) Blacklist {
	repo := repository.NewRepository[*BlacklistEntry](db, repository.ModelHandlers[*BlacklistEntry]{
		NewRecord: func() *BlacklistEntry { return &BlacklistEntry{} },
		GetID: func(e *BlacklistEntry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *BlacklistEntry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
	})

	return &blacklist{Repository: repo, db: db}
}

func (b *blacklist) GetByIP(ctx context.Context, ip string) (*BlacklistEntry, error) {
	record := &BlacklistEntry{}
	err := b.db.NewSelect().Model(record).
		Where("?TableAlias.ip = ?", ip).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"ip": ip})
		}
		return nil, err
	}

	return record, nil
}

func (b *blacklist) GetByEmail(ctx context.Context, sealedEmail string) (*BlacklistEntry, error) {
	record := &BlacklistEntry{}
	err := b.db.NewSelect().Model(record).
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

func (b *blacklist) List(ctx context.Context) ([]*BlacklistEntry, error) {
	return b.ListTx(ctx, b.db)
}

func (b *blacklist) ListTx(ctx context.Context, tx bun.IDB) ([]*BlacklistEntry, error) {
	var records []*BlacklistEntry
	err := tx.NewSelect().Model(&records).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (b *blacklist) UpdateEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID, sealedEmail string) error {
	_, err := tx.NewUpdate().Model((*BlacklistEntry)(nil)).
		Set("email = ?", sealedEmail).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (b *blacklist) DeleteByIP(ctx context.Context, ip string) error {
	return b.DeleteByIPTx(ctx, b.db, ip)
}

func (b *blacklist) DeleteByIPTx(ctx context.Context, tx bun.IDB, ip string) error {
	res, err := tx.NewDelete().Model((*BlacklistEntry)(nil)).
		Where("ip = ?", ip).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"ip": ip})
	}

	return nil
}

func (b *blacklist) DeleteByEmailTx(ctx context.Context, tx bun.IDB, sealedEmail string) error {
	res, err := tx.NewDelete().Model((*BlacklistEntry)(nil)).
		Where("email = ?", sealedEmail).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"identifier": "email"})
	}

	return nil
}

// SettingsStore persists the settings singleton.
type SettingsStore interface {
	Get(ctx context.Context) (*Settings, error)
	GetTx(ctx context.Context, tx bun.IDB) (*Settings, error)
	Save(ctx context.Context, record *Settings) (*Settings, error)
	SaveTx(ctx context.Context, tx bun.IDB, record *Settings) (*Settings, error)
}

type settingsStore struct {
	db *bun.DB
}

// NewSettingsStore builds the settings singleton store
func NewSettingsStore(db *bun.DB) SettingsStore {
	return &settingsStore{db: db}
}

// Get returns the singleton, creating it with defaults on first read.
func (s *settingsStore) Get(ctx context.Context) (*Settings, error) {
	return s.GetTx(ctx, s.db)
}

func (s *settingsStore) GetTx(ctx context.Context, tx bun.IDB) (*Settings, error) {
	record := &Settings{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.id = ?", SettingsID).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return record, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	record = DefaultSettings()
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *settingsStore) Save(ctx context.Context, record *Settings) (*Settings, error) {
	return s.SaveTx(ctx, s.db, record)
}

func (s *settingsStore) SaveTx(ctx context.Context, tx bun.IDB, record *Settings) (*Settings, error) {
	record.ID = SettingsID
	now := time.Now()
	record.UpdatedAt = &now

	if _, err := tx.NewUpdate().Model(record).
		WherePK().
		Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

// DefaultSettings is the policy applied when the singleton is absent
func DefaultSettings() *Settings {
	return &Settings{
		ID:                  SettingsID,
		DefaultRole:         RoleUser,
		Hooks:               map[string]string{},
		AuthTokenMinutes:    30,
		RefreshTokenMinutes: 480,
	}
}
