package accounts

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TwoFactorService issues and redeems sign-in challenges. A challenge is
// a short numeric code delivered out of band; at most one is pending per
// account and redemption is single use.
type TwoFactorService struct {
	repo   RepositoryManager
	mailer Mailer
	logger Logger
	now    func() time.Time
}

// NewTwoFactorService builds the challenge service
func NewTwoFactorService(repo RepositoryManager, mailer Mailer) *TwoFactorService {
	return &TwoFactorService{
		repo:   repo,
		mailer: mailer,
		logger: defLogger{},
		now:    time.Now,
	}
}

func (s *TwoFactorService) WithLogger(logger Logger) *TwoFactorService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *TwoFactorService) WithClock(clock func() time.Time) *TwoFactorService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Challenge creates a fresh code for the account, replacing any pending
// one, and mails it to the given address. Returns the challenge ID the
// client must echo back on redemption.
func (s *TwoFactorService) Challenge(ctx context.Context, account *Account, email string) (uuid.UUID, error) {
	code, err := GenerateNumericCode(6)
	if err != nil {
		return uuid.Nil, err
	}

	record := &TwoFactorCode{
		ID:        uuid.New(),
		AccountID: account.ID,
		Code:      code,
		ExpiresAt: s.now().Add(TwoFactorWindow),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := s.repo.TwoFactorCodes().CreateReplacingTx(ctx, tx, record)
		if err != nil {
			return err
		}
		record = created
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	msg := MailMessage{
		To:      email,
		Subject: "Your sign in code",
		Body:    fmt.Sprintf("Your verification code is %s. It expires in %s.", code, TwoFactorWindow),
	}

	if err := deliver(ctx, s.mailer, msg); err != nil {
		return uuid.Nil, err
	}

	return record.ID, nil
}

// Redeem validates a submitted code against the pending challenge and
// deletes it. Expired challenges are deleted and reported gone; a
// mismatched code leaves the challenge pending.
func (s *TwoFactorService) Redeem(ctx context.Context, challengeID uuid.UUID, code string) (*Account, error) {
	record, err := s.repo.TwoFactorCodes().GetByID(ctx, challengeID.String())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrTwoFactorExpired
		}
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if record.ExpiresAt.Before(s.now()) {
		derr := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return s.repo.TwoFactorCodes().DeleteByIDTx(ctx, tx, record.ID)
		})
		if derr != nil && !goerrors.IsNotFound(derr) {
			s.logger.Warn("expired two factor code cleanup failed: %v", derr)
		}
		return nil, ErrTwoFactorExpired
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		return nil, ErrTwoFactorMismatch
	}

	var account *Account
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repo.TwoFactorCodes().DeleteByIDTx(ctx, tx, record.ID); err != nil {
			return err
		}

		found, _, err := s.repo.Accounts().GetWithCredentialsTx(ctx, tx, record.AccountID)
		if err != nil {
			return err
		}
		account = found

		return nil
	})
	if err != nil {
		if goerrors.IsNotFound(err) {
			// a concurrent redemption won the race
			return nil, ErrTwoFactorExpired
		}
		return nil, err
	}

	return account, nil
}

// GenerateNumericCode returns a cryptographically random code of the
// given number of decimal digits, zero padded.
func GenerateNumericCode(digits int) (string, error) {
	if digits <= 0 {
		digits = 6
	}

	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}

	return fmt.Sprintf("%0*d", digits, n), nil
}
