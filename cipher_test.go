package accounts_test

import (
	"strings"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmailCipher(t *testing.T) {
	t.Run("accepts 32 byte key and 16 byte IV", func(t *testing.T) {
		c, err := accounts.NewEmailCipher(testEncryptionKey, testEncryptionIV)
		require.NoError(t, err)
		assert.NotNil(t, c)
	})

	t.Run("rejects short key", func(t *testing.T) {
		_, err := accounts.NewEmailCipher([]byte("too-short"), testEncryptionIV)
		assert.Error(t, err)
	})

	t.Run("rejects wrong IV length", func(t *testing.T) {
		_, err := accounts.NewEmailCipher(testEncryptionKey, []byte("short-iv"))
		assert.Error(t, err)
	})
}

func TestEmailCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	t.Run("encrypt then decrypt recovers plaintext", func(t *testing.T) {
		encrypted, err := c.Encrypt("user@example.com")
		require.NoError(t, err)
		assert.NotEqual(t, "user@example.com", encrypted)

		plain, err := c.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, "user@example.com", plain)
	})

	t.Run("encryption is deterministic", func(t *testing.T) {
		first, err := c.Encrypt("user@example.com")
		require.NoError(t, err)

		second, err := c.Encrypt("user@example.com")
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("different inputs produce different ciphertexts", func(t *testing.T) {
		a, err := c.Encrypt("a@example.com")
		require.NoError(t, err)

		b, err := c.Encrypt("b@example.com")
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("ciphertext is lowercase hex without @", func(t *testing.T) {
		encrypted, err := c.Encrypt("user@example.com")
		require.NoError(t, err)

		assert.NotContains(t, encrypted, "@")
		assert.Equal(t, strings.ToLower(encrypted), encrypted)
	})

	t.Run("empty plaintext is rejected", func(t *testing.T) {
		_, err := c.Encrypt("")
		assert.ErrorIs(t, err, accounts.ErrNoEmptyString)
	})

	t.Run("empty ciphertext is rejected", func(t *testing.T) {
		_, err := c.Decrypt("")
		assert.ErrorIs(t, err, accounts.ErrNoEmptyString)
	})

	t.Run("non hex ciphertext is rejected", func(t *testing.T) {
		_, err := c.Decrypt("not-hex!")
		assert.Error(t, err)
	})

	t.Run("misaligned ciphertext is rejected", func(t *testing.T) {
		_, err := c.Decrypt("abcd")
		assert.Error(t, err)
	})
}

func TestLooksEncrypted(t *testing.T) {
	assert.False(t, accounts.LooksEncrypted("user@example.com"))
	assert.True(t, accounts.LooksEncrypted("74c19e8a6b"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", accounts.NormalizeEmail("  User@Example.COM "))
	assert.Equal(t, "", accounts.NormalizeEmail("   "))
}
