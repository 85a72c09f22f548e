package token

import "time"

// RefreshToken is the persisted server-side record backing a refresh JWT.
// A token is usable only while IsValid is true and ExpiresAt is in the
// future; once invalidated it cannot be reactivated.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	IsValid   bool
	CreatedAt time.Time
}

// TokenPair is the result of a successful login or issuance.
type TokenPair struct {
	AccessToken      string    `json:"token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
