package token

import "context"

// RefreshTokenStore manages the refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	// FindByToken looks up a record by the raw token value.
	FindByToken(ctx context.Context, raw string) (*RefreshToken, error)
	// Invalidate flips is_valid to false with an update-if-still-valid guard
	// and reports whether this call performed the flip. The guard keeps two
	// concurrent rotations from both observing a valid record.
	Invalidate(ctx context.Context, id string) (bool, error)
	// InvalidateByToken is the idempotent revoke used by logout: it succeeds
	// even when the token was never persisted, to avoid leaking existence.
	InvalidateByToken(ctx context.Context, raw string) error
}
