package models

import "time"

// RefreshToken is one row per issued refresh token. TokenHash is the hex
// SHA-256 of the raw token; the raw value is never stored.
//
// Revoked only ever goes from false to true.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Expired reports whether the record is expired at now, allowing leeway of
// clock skew past ExpiresAt.
func (t *RefreshToken) Expired(now time.Time, leeway time.Duration) bool {
	return !now.Before(t.ExpiresAt.Add(leeway))
}
