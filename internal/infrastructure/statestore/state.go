// Package statestore keeps OAuth state nonces between /install and /callback.
package statestore

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"
)

// DefaultTTL bounds how long a merchant may sit on the consent screen.
const DefaultTTL = 10 * time.Minute

// NewState returns 32 random bytes encoded as unpadded base64url.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func statesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
