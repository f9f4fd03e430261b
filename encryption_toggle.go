package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// encryptionToggleTimeout bounds the bulk rewrite; the whole migration
// runs inside one transaction so a slow table never leaves mixed state.
const encryptionToggleTimeout = 5 * time.Minute

// ToggleEmailEncryptionMessage flips the at-rest email encryption
// setting, rewriting every stored email in the same transaction.
type ToggleEmailEncryptionMessage struct {
	Encrypt bool     `json:"encrypt"`
	Actor   ActorRef `json:"-"`

	OnResponse func(resp *ToggleEmailEncryptionResponse)
}

func (m ToggleEmailEncryptionMessage) Type() string { return "system.email_encryption" }

// ToggleEmailEncryptionResponse reports the migration outcome.
type ToggleEmailEncryptionResponse struct {
	Enabled   bool
	Rewritten int
	Skipped   int
}

type ToggleEmailEncryptionHandler struct {
	repo   RepositoryManager
	cipher *EmailCipher
	logger Logger
}

// NewToggleEmailEncryptionHandler wires the migration command
func NewToggleEmailEncryptionHandler(repo RepositoryManager, cipher *EmailCipher) *ToggleEmailEncryptionHandler {
	return &ToggleEmailEncryptionHandler{
		repo:   repo,
		cipher: cipher,
		logger: defLogger{},
	}
}

func (h *ToggleEmailEncryptionHandler) WithLogger(logger Logger) *ToggleEmailEncryptionHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ToggleEmailEncryptionHandler) Execute(ctx context.Context, event ToggleEmailEncryptionMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email encryption toggle",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ToggleEmailEncryptionHandler) execute(ctx context.Context, event ToggleEmailEncryptionMessage) error {
	ctx, cancel := context.WithTimeout(ctx, encryptionToggleTimeout)
	defer cancel()

	resp := &ToggleEmailEncryptionResponse{Enabled: event.Encrypt}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		settings, err := h.repo.Settings().GetTx(ctx, tx)
		if err != nil {
			return err
		}

		if settings.EncryptEmails == event.Encrypt {
			// nothing to migrate
			return nil
		}

		creds, err := h.repo.Accounts().ListCredentialsTx(ctx, tx)
		if err != nil {
			return err
		}

		for _, c := range creds {
			next, changed, err := h.rewrite(c.Email, event.Encrypt)
			if err != nil {
				return err
			}

			if !changed {
				resp.Skipped++
				continue
			}

			if err := h.repo.Accounts().SetEmailTx(ctx, tx, c.AccountID, next); err != nil {
				return err
			}
			resp.Rewritten++
		}

		entries, err := h.repo.Blacklist().ListTx(ctx, tx)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			if entry.Email == "" {
				continue
			}

			next, changed, err := h.rewrite(entry.Email, event.Encrypt)
			if err != nil {
				return err
			}

			if !changed {
				resp.Skipped++
				continue
			}

			if err := h.repo.Blacklist().UpdateEmailTx(ctx, tx, entry.ID, next); err != nil {
				return err
			}
			resp.Rewritten++
		}

		settings.EncryptEmails = event.Encrypt
		if _, err := h.repo.Settings().SaveTx(ctx, tx, settings); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email encryption migration failed")
	}

	h.logger.Info("email encryption set to %v, rewrote %d values, skipped %d", event.Encrypt, resp.Rewritten, resp.Skipped)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// rewrite converts a single stored value in the requested direction,
// skipping values already in the target representation.
func (h *ToggleEmailEncryptionHandler) rewrite(value string, encrypt bool) (string, bool, error) {
	if encrypt {
		if LooksEncrypted(value) {
			return value, false, nil
		}
		next, err := h.cipher.Encrypt(NormalizeEmail(value))
		if err != nil {
			return "", false, err
		}
		return next, true, nil
	}

	if !LooksEncrypted(value) {
		return value, false, nil
	}

	next, err := h.cipher.Decrypt(value)
	if err != nil {
		return "", false, err
	}

	return next, true, nil
}
