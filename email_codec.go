package accounts

import (
	"context"
)

// SettingsReader is the narrow view of the settings service the codec needs
type SettingsReader interface {
	Current(ctx context.Context) (*Settings, error)
}

// EmailCodec applies the system-wide encryption policy to email values
// before they are stored or compared.
type EmailCodec struct {
	cipher   *EmailCipher
	settings SettingsReader
}

// NewEmailCodec builds a codec bound to the given cipher and settings view
func NewEmailCodec(cipher *EmailCipher, settings SettingsReader) *EmailCodec {
	return &EmailCodec{cipher: cipher, settings: settings}
}

// Seal normalizes an address and encrypts it when the system toggle is on.
// Values that already look encrypted pass through untouched.
func (c *EmailCodec) Seal(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", ErrNoEmptyString
	}

	if LooksEncrypted(email) {
		return email, nil
	}

	settings, err := c.settings.Current(ctx)
	if err != nil {
		return "", err
	}

	if !settings.EncryptEmails {
		return email, nil
	}

	return c.cipher.Encrypt(email)
}

// Open returns the plaintext address for a stored value. Plaintext values
// pass through so the codec stays correct while a bulk toggle is pending.
func (c *EmailCodec) Open(_ context.Context, value string) (string, error) {
	if value == "" {
		return "", ErrNoEmptyString
	}

	if !LooksEncrypted(value) {
		return value, nil
	}

	return c.cipher.Decrypt(value)
}
