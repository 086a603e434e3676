package domain

import "time"

// OAuthState is a one-time nonce issued at the start of an install and consumed by the callback.
type OAuthState struct {
	Shop      string    `json:"shop"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the state is no longer acceptable at now.
func (s *OAuthState) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
