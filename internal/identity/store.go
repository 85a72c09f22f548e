package identity

import "context"

// UserStore manages persisted user accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindManyByID resolves a batch of ids in one round trip. Ids that do not
	// resolve are simply absent from the result; callers diff against their
	// input to report exactly which ids were missing.
	FindManyByID(ctx context.Context, ids []string) ([]*User, error)
	UpdateProfile(ctx context.Context, id, firstName, lastName string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	AddPushToken(ctx context.Context, id, token string) error
	// Delete removes the user together with their memberships and
	// back-references in a single transaction (orphan-and-reject policy: the
	// businesses and sites themselves are untouched).
	Delete(ctx context.Context, id string) error
}

// OTPStore manages single-use verification codes.
type OTPStore interface {
	Create(ctx context.Context, otp *OTP) error
	Find(ctx context.Context, userID, code, otpType string) (*OTP, error)
	Delete(ctx context.Context, userID, code string) error
}
