package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	Roles() Roles
	Modifications() Modifications
	TwoFactorCodes() TwoFactorCodes
	Invitations() Invitations
	Blacklist() Blacklist
	AccessTokens() AccessTokens
	Settings() SettingsStore
}

type mngr struct {
	db             *bun.DB
	accounts       Accounts
	roles          Roles
	modifications  Modifications
	twoFactorCodes TwoFactorCodes
	invitations    Invitations
	blacklist      Blacklist
	accessTokens   AccessTokens
	settings       SettingsStore
}

// NewRepositoryManager wires every repository over the shared bun handle
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		accounts:       NewAccountsRepository(db),
		roles:          NewRolesRepository(db),
		modifications:  NewModificationsRepository(db),
		twoFactorCodes: NewTwoFactorCodesRepository(db),
		invitations:    NewInvitationsRepository(db),
		blacklist:      NewBlacklistRepository(db),
		accessTokens:   NewAccessTokensRepository(db),
		settings:       NewSettingsStore(db),
	}
}

func (m mngr) Validate() error {
	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.modifications == nil {
		return errors.New("repository modifications should be initialized")
	}

	if m.twoFactorCodes == nil {
		return errors.New("repository twoFactorCodes should be initialized")
	}

	if m.invitations == nil {
		return errors.New("repository invitations should be initialized")
	}

	if m.blacklist == nil {
		return errors.New("repository blacklist should be initialized")
	}

	if m.accessTokens == nil {
		return errors.New("repository accessTokens should be initialized")
	}

	if m.settings == nil {
		return errors.New("settings store should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) Roles() Roles {
	return m.roles
}

func (m mngr) Modifications() Modifications {
	return m.modifications
}

func (m mngr) TwoFactorCodes() TwoFactorCodes {
	return m.twoFactorCodes
}

func (m mngr) Invitations() Invitations {
	return m.invitations
}

func (m mngr) Blacklist() Blacklist {
	return m.blacklist
}

func (m mngr) AccessTokens() AccessTokens {
	return m.accessTokens
}

func (m mngr) Settings() SettingsStore {
	return m.settings
}
