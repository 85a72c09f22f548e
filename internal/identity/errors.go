package identity

import "errors"

var (
	ErrNotFound           = errors.New("identity: not found")
	ErrEmailTaken         = errors.New("identity: email already registered")
	ErrInvalidInput       = errors.New("identity: invalid input")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrOTPNotFound        = errors.New("identity: otp not found")
	ErrOTPExpired         = errors.New("identity: otp expired")
)
