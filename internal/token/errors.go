package token

import "errors"

var (
	// ErrInvalidToken covers malformed tokens and signature failures.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrTokenExpired is an expired signature, distinguished from
	// ErrInvalidToken so callers can report it separately.
	ErrTokenExpired = errors.New("token: token expired")

	// Persisted-record failures during rotation.
	ErrRefreshNotFound = errors.New("token: refresh token not found")
	ErrRefreshRevoked  = errors.New("token: refresh token revoked")
	ErrRefreshExpired  = errors.New("token: refresh token expired")
)
