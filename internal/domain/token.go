package domain

import "time"

// RefreshToken is the persisted record of an issued refresh token. The token
// string itself is never stored; TokenHash holds a one-way argon2id digest.
// Records are revoked in place and never deleted.
type RefreshToken struct {
	ID        string
	UserID    int64
	OrgID     int64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Live reports whether the record can still be redeemed at the given instant.
func (t RefreshToken) Live(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// TokenPair carries a freshly issued access/refresh token pair. It is
// transient: only the refresh token's hashed record survives it.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_token_expires_at"`
	ExpiresIn        int       `json:"expires_in"`
}
