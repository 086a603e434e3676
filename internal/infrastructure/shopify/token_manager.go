package shopify

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"free-shipping-bar/internal/ports"

	"github.com/rs/zerolog"
)

// encryptedPrefix marks tokens written by an encrypting TokenManager, so
// plaintext rows stored before a key was configured still read back.
const encryptedPrefix = "enc:v1:"

var _ ports.TokenCipher = (*TokenManager)(nil)

// TokenManager encrypts Shopify access tokens before storage and decrypts them
// after retrieval. Without a key it stores tokens as-is.
type TokenManager struct {
	aead   cipher.AEAD
	logger zerolog.Logger
}

// NewTokenManager creates a new token manager. keyB64 is a base64 encoded
// 32 byte AES key; an empty value disables encryption.
func NewTokenManager(keyB64 string, logger zerolog.Logger) (*TokenManager, error) {
	tm := &TokenManager{logger: logger}
	if strings.TrimSpace(keyB64) == "" {
		logger.Warn().Msg("TOKEN_ENCRYPTION_KEY not set, access tokens are stored in plaintext")
		return tm, nil
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(keyB64))
	if err != nil {
		return nil, fmt.Errorf("decode token encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("TOKEN_ENCRYPTION_KEY must decode to 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	tm.aead, err = cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return tm, nil
}

// Encrypting reports whether tokens are encrypted at rest.
func (tm *TokenManager) Encrypting() bool {
	return tm.aead != nil
}

// EncryptToken encrypts an access token before storage
func (tm *TokenManager) EncryptToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token cannot be empty")
	}
	if tm.aead == nil {
		return token, nil
	}

	nonce := make([]byte, tm.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := tm.aead.Seal(nonce, nonce, []byte(token), nil)
	return encryptedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptToken decrypts an access token after retrieval
func (tm *TokenManager) DecryptToken(stored string) (string, error) {
	if stored == "" {
		return "", fmt.Errorf("encrypted token cannot be empty")
	}
	encoded, ok := strings.CutPrefix(stored, encryptedPrefix)
	if !ok {
		return stored, nil
	}
	if tm.aead == nil {
		return "", errors.New("token is encrypted but no TOKEN_ENCRYPTION_KEY is configured")
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	ns := tm.aead.NonceSize()
	if len(raw) < ns {
		return "", errors.New("ciphertext too short")
	}
	plain, err := tm.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plain), nil
}
