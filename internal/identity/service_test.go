package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"utilitygrid.org/internal/notify"
)

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*User)}
}

func (m *memUserStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	clone := *u
	m.users[u.ID] = &clone
	return nil
}

func (m *memUserStore) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUserStore) FindManyByID(_ context.Context, ids []string) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			clone := *u
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memUserStore) UpdateProfile(_ context.Context, id, first, last string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.FirstName, u.LastName = first, last
	return nil
}

func (m *memUserStore) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUserStore) AddPushToken(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	for _, t := range u.PushTokens {
		if t == token {
			return nil
		}
	}
	u.PushTokens = append(u.PushTokens, token)
	return nil
}

func (m *memUserStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type otpKey struct{ userID, code string }

type memOTPStore struct {
	mu   sync.Mutex
	otps map[otpKey]*OTP
}

func newMemOTPStore() *memOTPStore {
	return &memOTPStore{otps: make(map[otpKey]*OTP)}
}

func (m *memOTPStore) Create(_ context.Context, otp *OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *otp
	m.otps[otpKey{otp.UserID, otp.Code}] = &clone
	return nil
}

func (m *memOTPStore) Find(_ context.Context, userID, code, otpType string) (*OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	otp, ok := m.otps[otpKey{userID, code}]
	if !ok || otp.Type != otpType || otp.Used {
		return nil, ErrOTPNotFound
	}
	clone := *otp
	return &clone, nil
}

func (m *memOTPStore) Delete(_ context.Context, userID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.otps, otpKey{userID, code})
	return nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
	fail error
}

func (m *recordingMailer) SendEmail(_ context.Context, msg notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memUserStore, *memOTPStore) {
	t.Helper()
	users := newMemUserStore()
	otps := newMemOTPStore()
	svc, err := NewService(users, otps, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, users, otps
}

func TestRegisterNormalizesEmailAndRejectsDuplicates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{
		FirstName: "Ada", LastName: "Lovelace",
		Email: "  Ada@X.com ", Password: "pw1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "ada@x.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if user.Role != RoleUser || user.Status != StatusActive {
		t.Fatalf("unexpected defaults: role=%s status=%s", user.Role, user.Status)
	}

	_, err = svc.Register(ctx, RegisterInput{
		FirstName: "Ada", LastName: "Byron",
		Email: "ADA@x.com", Password: "pw2",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestVerifyCredentials(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{
		FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := svc.VerifyCredentials(ctx, "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("unexpected user: %s", got.ID)
	}

	if _, err := svc.VerifyCredentials(ctx, "a@x.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.VerifyCredentials(ctx, "missing@x.com", "pw1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("lookup miss must collapse into ErrInvalidCredentials, got %v", err)
	}
}

func TestCreateGuest(t *testing.T) {
	svc, _, _ := newTestService(t)

	guest, err := svc.CreateGuest(context.Background())
	if err != nil {
		t.Fatalf("CreateGuest: %v", err)
	}
	if guest.Role != RoleGuest {
		t.Fatalf("unexpected role: %s", guest.Role)
	}
	if guest.Email == "" {
		t.Fatal("guest email must be generated")
	}

	second, err := svc.CreateGuest(context.Background())
	if err != nil {
		t.Fatalf("CreateGuest: %v", err)
	}
	if second.Email == guest.Email {
		t.Fatalf("guest emails must be unique, got %s twice", guest.Email)
	}
}

func TestCreateGuestHasNoWellKnownPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	guest, err := svc.CreateGuest(ctx)
	if err != nil {
		t.Fatalf("CreateGuest: %v", err)
	}
	for _, pw := range []string{"guest_password", "guest", guest.ID} {
		if _, err := svc.VerifyCredentials(ctx, guest.Email, pw); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("guest loginable with %q: %v", pw, err)
		}
	}
}

func TestForgotPasswordFlow(t *testing.T) {
	mailer := &recordingMailer{}
	svc, _, _ := newTestService(t, WithMailer(mailer))
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{
		FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw1",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one OTP email, got %d", len(mailer.sent))
	}

	// Extract the code from the stored OTP rather than parsing the mail body.
	var code string
	for key := range svcOTPs(t, svc) {
		code = key.code
	}
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	if err := svc.VerifyOTP(ctx, "a@x.com", code); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	// Single use: the code is consumed.
	if err := svc.VerifyOTP(ctx, "a@x.com", code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound on reuse, got %v", err)
	}

	if err := svc.ResetPassword(ctx, "a@x.com", "pw2"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := svc.VerifyCredentials(ctx, "a@x.com", "pw2"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if _, err := svc.VerifyCredentials(ctx, "a@x.com", "pw1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted")
	}
}

func TestVerifyOTPExpiredIsConsumed(t *testing.T) {
	now := time.Now()
	svc, _, otps := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{
		FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.ForgotPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	now = now.Add(16 * time.Minute)

	var code string
	for key := range otps.otps {
		code = key.code
	}
	if err := svc.VerifyOTP(ctx, "a@x.com", code); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
	// Expired codes are deleted on detection.
	if _, err := otps.Find(ctx, user.ID, code, OTPTypeForgotPassword); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expired otp should be gone, got %v", err)
	}
}

func TestForgotPasswordDeliveryFailurePropagates(t *testing.T) {
	mailer := &recordingMailer{fail: errors.New("smtp down")}
	svc, _, _ := newTestService(t, WithMailer(mailer))
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{
		FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw1",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.ForgotPassword(ctx, "a@x.com"); err == nil {
		t.Fatal("OTP delivery failure must propagate")
	}
}

func TestRegisterPushTokenIsIdempotent(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{
		FirstName: "A", LastName: "B", Email: "a@x.com", Password: "pw1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.RegisterPushToken(ctx, user.ID, "expo[abc]"); err != nil {
		t.Fatalf("RegisterPushToken: %v", err)
	}
	if err := svc.RegisterPushToken(ctx, user.ID, "expo[abc]"); err != nil {
		t.Fatalf("RegisterPushToken repeat: %v", err)
	}
	stored, _ := users.Find(ctx, user.ID)
	if len(stored.PushTokens) != 1 {
		t.Fatalf("expected one push token, got %v", stored.PushTokens)
	}
}

// svcOTPs exposes the fake OTP store contents for code extraction.
func svcOTPs(t *testing.T, svc *Service) map[otpKey]*OTP {
	t.Helper()
	store, ok := svc.otps.(*memOTPStore)
	if !ok {
		t.Fatal("test service must use memOTPStore")
	}
	return store.otps
}
