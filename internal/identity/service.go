package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"utilitygrid.org/internal/ids"
	"utilitygrid.org/internal/notify"
	"utilitygrid.org/internal/obs"
)

const otpTTL = 15 * time.Minute

// Service owns the credential store: account registration, guest
// provisioning, the OTP forgot-password flow and profile mutations.
type Service struct {
	users  UserStore
	otps   OTPStore
	mailer notify.Mailer
	now    func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithMailer overrides the outbound mailer.
func WithMailer(m notify.Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the identity service.
func NewService(users UserStore, otps OTPStore, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if otps == nil {
		return nil, errors.New("otp store is required")
	}
	s := &Service{
		users:  users,
		otps:   otps,
		mailer: notify.LogSender{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterInput is the validated registration payload.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      GlobalRole
}

// Register creates a new active account. Fails with ErrEmailTaken when the
// email is already registered (case-insensitive).
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = normalizeEmail(in.Email)
	if in.FirstName == "" || in.LastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if in.Role == "" {
		in.Role = RoleUser
	}
	if !ValidGlobalRole(in.Role) {
		return nil, fmt.Errorf("%w: unsupported role %s", ErrInvalidInput, in.Role)
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           ids.New(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         in.Role,
		Status:       StatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// CheckEmail reports whether an email is still available for registration.
func (s *Service) CheckEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return ErrEmailTaken
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// CreateGuest provisions a throwaway guest account with a generated email and
// a random secret nobody holds; guest sessions live and die with their tokens.
// Guests keep their data only if they later upgrade to a full account.
func (s *Service) CreateGuest(ctx context.Context) (*User, error) {
	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate guest secret: %w", err)
	}
	hash, err := HashPassword(hex.EncodeToString(secret))
	if err != nil {
		return nil, err
	}
	suffix := strings.Split(uuid.NewString(), "-")[0]
	user := &User{
		ID:           ids.New(),
		Email:        fmt.Sprintf("guest_%s@guest.utilitygrid.org", suffix),
		PasswordHash: hash,
		FirstName:    "Guest",
		LastName:     suffix,
		Role:         RoleGuest,
		Status:       StatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyCredentials authenticates email+password and returns the account.
// Lookup misses and bad passwords collapse into ErrInvalidCredentials so the
// caller cannot probe which emails exist.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Status != StatusActive {
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ForgotPassword issues a six-digit OTP and emails it to the account holder.
// OTP delivery is a primary effect: a send failure propagates to the caller,
// unlike the best-effort membership notifications.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := generateOTPCode()
	if err != nil {
		return err
	}
	otp := &OTP{
		Code:      code,
		UserID:    user.ID,
		ExpiresAt: s.now().Add(otpTTL),
		Medium:    OTPMediumEmail,
		Type:      OTPTypeForgotPassword,
	}
	if err := s.otps.Create(ctx, otp); err != nil {
		return err
	}
	return s.mailer.SendEmail(ctx, notify.Email{
		To:      user.Email,
		Subject: "Password Reset OTP",
		Body:    fmt.Sprintf("Your password reset code is %s. It is valid for 15 minutes.", code),
	})
}

// VerifyOTP consumes a forgot-password code. Expired codes are deleted on
// detection and reported as ErrOTPExpired.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return fmt.Errorf("%w: email and otp are required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	otp, err := s.otps.Find(ctx, user.ID, code, OTPTypeForgotPassword)
	if err != nil {
		return err
	}
	if s.now().After(otp.ExpiresAt) {
		_ = s.otps.Delete(ctx, user.ID, code)
		return ErrOTPExpired
	}
	return s.otps.Delete(ctx, user.ID, code)
}

// ResetPassword replaces the stored hash for the account.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = normalizeEmail(email)
	if email == "" || newPassword == "" {
		return fmt.Errorf("%w: email and new password are required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, hash)
}

// Find loads a user by id.
func (s *Service) Find(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.users.Find(ctx, id)
}

// UpdateProfile changes the display name.
func (s *Service) UpdateProfile(ctx context.Context, id, firstName, lastName string) error {
	id = strings.TrimSpace(id)
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	if id == "" || firstName == "" || lastName == "" {
		return fmt.Errorf("%w: user id, first and last name are required", ErrInvalidInput)
	}
	return s.users.UpdateProfile(ctx, id, firstName, lastName)
}

// ChangePassword replaces the password for the given user id.
func (s *Service) ChangePassword(ctx context.Context, id, newPassword string) error {
	id = strings.TrimSpace(id)
	if id == "" || newPassword == "" {
		return fmt.Errorf("%w: user id and new password are required", ErrInvalidInput)
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, id, hash)
}

// RegisterPushToken attaches a device push token to the account (set
// semantics, duplicates ignored).
func (s *Service) RegisterPushToken(ctx context.Context, id, token string) error {
	id = strings.TrimSpace(id)
	token = strings.TrimSpace(token)
	if id == "" || token == "" {
		return fmt.Errorf("%w: user id and push token are required", ErrInvalidInput)
	}
	return s.users.AddPushToken(ctx, id, token)
}

// Delete removes the account and its memberships.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	obs.LogRequest(map[string]any{"type": "identity", "event": "user.deleted", "user_id": id})
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
