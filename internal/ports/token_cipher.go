package ports

// TokenCipher protects access tokens at rest.
type TokenCipher interface {
	EncryptToken(token string) (string, error)
	DecryptToken(stored string) (string, error)
}
