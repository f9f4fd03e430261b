package accounts

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// EmailCipher encrypts and decrypts stored emails with AES-256-CBC using a
// fixed, externally supplied IV. The fixed IV makes the output deterministic
// so encrypted emails stay equality-comparable and the unique constraint on
// the credentials email column keeps holding. That trade-off is intentional;
// do not swap in a random IV.
type EmailCipher struct {
	key []byte
	iv  []byte
}

// NewEmailCipher validates the key material up front so a misconfigured
// deployment fails at startup, not on first use.
func NewEmailCipher(key, iv []byte) (*EmailCipher, error) {
	if len(key) != 32 {
		return nil, goerrors.New("encryption key must be 32 bytes", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"length": len(key)})
	}

	if len(iv) != aes.BlockSize {
		return nil, goerrors.New("encryption IV must be 16 bytes", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"length": len(iv)})
	}

	return &EmailCipher{key: key, iv: iv}, nil
}

// Encrypt returns the hex-encoded AES-CBC ciphertext of plaintext.
// Encrypting the same value twice yields the same output.
func (c *EmailCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrNoEmptyString
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize cipher")
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.iv).CryptBlocks(out, padded)

	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func (c *EmailCipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrNoEmptyString
	}

	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "ciphertext is not hex encoded")
	}

	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", goerrors.New("ciphertext is not block aligned", goerrors.CategoryBadInput)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize cipher")
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.iv).CryptBlocks(out, raw)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

// LooksEncrypted distinguishes stored ciphertext from plaintext emails.
// Email addresses always contain an @ and hex-encoded ciphertext never does;
// the bulk re-encryption pass depends on this to stay idempotent.
func LooksEncrypted(value string) bool {
	return !strings.Contains(value, "@")
}

// NormalizeEmail lowercases and trims an address before hashing, sealing,
// or equality lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, goerrors.New("invalid padded data length", goerrors.CategoryBadInput)
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, goerrors.New("invalid padding", goerrors.CategoryBadInput)
	}

	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, goerrors.New("invalid padding", goerrors.CategoryBadInput)
		}
	}

	return data[:len(data)-n], nil
}
