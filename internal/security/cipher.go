package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SecretPurpose selects which master key envelopes a tenant secret. Each
// purpose uses a distinct key so a leaked connection-string key cannot
// decrypt signing secrets.
type SecretPurpose string

const (
	PurposeConnection         SecretPurpose = "connection"
	PurposeAccessTokenSecret  SecretPurpose = "access_token_secret"
	PurposeRefreshTokenSecret SecretPurpose = "refresh_token_secret"
)

// cipherBlobVersion is prepended to every envelope and bound as AAD, so
// tampering with the version byte fails authentication.
const cipherBlobVersion byte = 0x01

const masterKeySize = chacha20poly1305.KeySize

var (
	// ErrMissingMasterKey means the process is misconfigured: the operator
	// must supply the key, the request cannot proceed.
	ErrMissingMasterKey = errors.New("master key missing or malformed")
	// ErrDecryptFailed means key mismatch or corrupted ciphertext. There is
	// no plaintext fallback.
	ErrDecryptFailed = errors.New("secret decryption failed")
)

// SecretCipher envelope-encrypts tenant secrets with purpose-scoped
// XChaCha20-Poly1305 master keys sourced from process configuration.
// Stateless; safe for concurrent use.
type SecretCipher struct {
	keys map[SecretPurpose]string
}

func NewSecretCipher(connectionKey, accessTokenKey, refreshTokenKey string) *SecretCipher {
	return &SecretCipher{keys: map[SecretPurpose]string{
		PurposeConnection:         connectionKey,
		PurposeAccessTokenSecret:  accessTokenKey,
		PurposeRefreshTokenSecret: refreshTokenKey,
	}}
}

func (c *SecretCipher) masterKey(purpose SecretPurpose) ([]byte, error) {
	encoded, ok := c.keys[purpose]
	if !ok || encoded == "" {
		return nil, fmt.Errorf("%w: purpose %s", ErrMissingMasterKey, purpose)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) != masterKeySize {
		return nil, fmt.Errorf("%w: purpose %s", ErrMissingMasterKey, purpose)
	}
	return key, nil
}

// Encrypt seals plaintext under the purpose's master key. The envelope is
// base64(version || nonce || ciphertext).
func (c *SecretCipher) Encrypt(plaintext []byte, purpose SecretPurpose) (string, error) {
	key, err := c.masterKey(purpose)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}
	blob := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	blob[0] = cipherBlobVersion
	if _, err := rand.Read(blob[1 : 1+aead.NonceSize()]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	blob = aead.Seal(blob, blob[1:1+aead.NonceSize()], plaintext, blob[:1])
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens an envelope produced by Encrypt. Any structural or
// authentication failure yields ErrDecryptFailed.
func (c *SecretCipher) Decrypt(cipherText string, purpose SecretPurpose) ([]byte, error) {
	key, err := c.masterKey(purpose)
	if err != nil {
		return nil, err
	}
	blob, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	if len(blob) < 1+aead.NonceSize()+aead.Overhead() || blob[0] != cipherBlobVersion {
		return nil, ErrDecryptFailed
	}
	plaintext, err := aead.Open(nil, blob[1:1+aead.NonceSize()], blob[1+aead.NonceSize():], blob[:1])
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
