package models

import "time"

type TokenStatus string

const (
	TokenValid        TokenStatus = "valid"
	TokenExpiringSoon TokenStatus = "expiring_soon"
	TokenExpired      TokenStatus = "expired"
	TokenRefreshing   TokenStatus = "refreshing"
)

// TokenState holds the device credential. Created on login, mutated only
// by the token manager under its lock, destroyed on logout.
type TokenState struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Status      TokenStatus `json:"status"`
}

// ExpiresWithin reports whether the token expires inside the threshold.
func (t TokenState) ExpiresWithin(threshold time.Duration) bool {
	return !time.Now().Before(t.ExpiresAt.Add(-threshold))
}
