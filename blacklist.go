package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BlacklistService manages blocked IPs and emails. Adding an entry also
// blocks the matching account; removing it restores the account to
// active. Requests that would blacklist an admin account are rejected.
type BlacklistService struct {
	repo         RepositoryManager
	codec        *EmailCodec
	machine      AccountStateMachine
	activitySink ActivitySink
	logger       Logger
}

// NewBlacklistService wires the blacklist over the repository manager
func NewBlacklistService(repo RepositoryManager, codec *EmailCodec, machine AccountStateMachine) *BlacklistService {
	return &BlacklistService{
		repo:         repo,
		codec:        codec,
		machine:      machine,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
}

func (s *BlacklistService) WithLogger(logger Logger) *BlacklistService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *BlacklistService) WithActivitySink(sink ActivitySink) *BlacklistService {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// IsBlocked reports whether the given IP or plaintext email is
// blacklisted. Either argument may be empty.
func (s *BlacklistService) IsBlocked(ctx context.Context, ip, email string) (bool, error) {
	if ip != "" {
		_, err := s.repo.Blacklist().GetByIP(ctx, ip)
		if err == nil {
			return true, nil
		}
		if !goerrors.IsNotFound(err) {
			return false, err
		}
	}

	if email != "" {
		sealed, err := s.codec.Seal(ctx, email)
		if err != nil {
			return false, err
		}

		_, err = s.repo.Blacklist().GetByEmail(ctx, sealed)
		if err == nil {
			return true, nil
		}
		if !goerrors.IsNotFound(err) {
			return false, err
		}
	}

	return false, nil
}

// Guard returns ErrBlacklisted when the IP or email is blocked. Used as
// the first gate on sign in and registration.
func (s *BlacklistService) Guard(ctx context.Context, ip, email string) error {
	blocked, err := s.IsBlocked(ctx, ip, email)
	if err != nil {
		return err
	}

	if blocked {
		return ErrBlacklisted
	}

	return nil
}

// AddIP blocks an IP address. The account that last signed in from the
// IP, if any, moves to blocked in the same transaction. Idempotent on
// duplicates; admin accounts cannot be blacklisted.
func (s *BlacklistService) AddIP(ctx context.Context, actor ActorRef, ip string) (*BlacklistEntry, error) {
	if ip == "" {
		return nil, ErrNoEmptyString
	}

	if existing, err := s.repo.Blacklist().GetByIP(ctx, ip); err == nil {
		return existing, nil
	} else if !goerrors.IsNotFound(err) {
		return nil, err
	}

	entry := &BlacklistEntry{ID: uuid.New(), IP: ip}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := s.repo.Accounts().GetByLastLoginIPTx(ctx, tx, ip)
		if err != nil && !goerrors.IsNotFound(err) {
			return err
		}

		if account != nil {
			if account.IsAdmin() {
				return ErrAdminProtected
			}

			if account.Status != AccountStatusBlocked {
				updater := txStatusUpdater{accounts: s.repo.Accounts(), tx: tx}
				if _, err := s.machine.TransitionTx(ctx, updater, actor, account, AccountStatusBlocked,
					WithTransitionReason("ip blacklisted")); err != nil {
					return err
				}
			}
		}

		created, err := s.repo.Blacklist().CreateTx(ctx, tx, entry)
		if err != nil {
			return err
		}
		entry = created

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, map[string]any{"op": "add", "kind": "ip"})

	return entry, nil
}

// AddEmail blocks an email address. If an account owns the address it
// moves to blocked in the same transaction; admin-owned addresses are
// rejected outright so an admin can never be locked out.
func (s *BlacklistService) AddEmail(ctx context.Context, actor ActorRef, email string) (*BlacklistEntry, error) {
	if email == "" {
		return nil, ErrNoEmptyString
	}

	sealed, err := s.codec.Seal(ctx, email)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.Blacklist().GetByEmail(ctx, sealed); err == nil {
		return existing, nil
	} else if !goerrors.IsNotFound(err) {
		return nil, err
	}

	entry := &BlacklistEntry{ID: uuid.New(), Email: sealed}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, _, err := s.repo.Accounts().GetByEmailTx(ctx, tx, sealed)
		if err != nil && !goerrors.IsNotFound(err) {
			return err
		}

		if account != nil {
			if account.IsAdmin() {
				return ErrAdminProtected
			}

			updater := txStatusUpdater{accounts: s.repo.Accounts(), tx: tx}
			if _, err := s.machine.TransitionTx(ctx, updater, actor, account, AccountStatusBlocked,
				WithTransitionReason("email blacklisted")); err != nil {
				return err
			}
		}

		created, err := s.repo.Blacklist().CreateTx(ctx, tx, entry)
		if err != nil {
			return err
		}
		entry = created

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, map[string]any{"op": "add", "kind": "email"})

	return entry, nil
}

// DeleteIP removes an IP block and restores the account that last
// signed in from the IP to active, mirroring DeleteEmail.
func (s *BlacklistService) DeleteIP(ctx context.Context, actor ActorRef, ip string) error {
	if ip == "" {
		return ErrNoEmptyString
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.Blacklist().DeleteByIPTx(ctx, tx, ip); err != nil {
			return err
		}

		account, err := s.repo.Accounts().GetByLastLoginIPTx(ctx, tx, ip)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return nil
			}
			return err
		}

		if account.Status == AccountStatusBlocked {
			updater := txStatusUpdater{accounts: s.repo.Accounts(), tx: tx}
			if _, err := s.machine.TransitionTx(ctx, updater, actor, account, AccountStatusActive,
				WithTransitionReason("ip removed from blacklist")); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, actor, map[string]any{"op": "delete", "kind": "ip"})

	return nil
}

// DeleteEmail removes an email block and restores the owning account to
// active, regardless of its status before the block.
func (s *BlacklistService) DeleteEmail(ctx context.Context, actor ActorRef, email string) error {
	if email == "" {
		return ErrNoEmptyString
	}

	sealed, err := s.codec.Seal(ctx, email)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.Blacklist().DeleteByEmailTx(ctx, tx, sealed); err != nil {
			return err
		}

		account, _, err := s.repo.Accounts().GetByEmailTx(ctx, tx, sealed)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return nil
			}
			return err
		}

		if account.Status == AccountStatusBlocked {
			updater := txStatusUpdater{accounts: s.repo.Accounts(), tx: tx}
			if _, err := s.machine.TransitionTx(ctx, updater, actor, account, AccountStatusActive,
				WithTransitionReason("email removed from blacklist")); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.record(ctx, actor, map[string]any{"op": "delete", "kind": "email"})

	return nil
}

// List returns every blacklist entry with emails opened for display.
func (s *BlacklistService) List(ctx context.Context) ([]*BlacklistEntry, error) {
	entries, err := s.repo.Blacklist().List(ctx)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.Email == "" {
			continue
		}
		plain, err := s.codec.Open(ctx, entry.Email)
		if err != nil {
			s.logger.Warn("blacklist entry %s email could not be opened: %v", entry.ID, err)
			continue
		}
		entry.Email = plain
	}

	return entries, nil
}

// txStatusUpdater scopes status updates to the enclosing transaction
type txStatusUpdater struct {
	accounts Accounts
	tx       bun.IDB
}

func (u txStatusUpdater) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus) (*Account, error) {
	return u.accounts.UpdateStatusTx(ctx, u.tx, id, status)
}

func (s *BlacklistService) record(ctx context.Context, actor ActorRef, meta map[string]any) {
	event := ActivityEvent{
		EventType:  ActivityEventBlacklistChanged,
		Actor:      actor,
		Metadata:   meta,
		OccurredAt: time.Now(),
	}

	if err := s.activitySink.Record(ctx, event); err != nil {
		s.logger.Warn("blacklist activity sink error: %v", err)
	}
}
