package identity

import (
	"strings"
	"time"
)

// GlobalRole governs platform-wide capabilities, orthogonal to the
// owner/manager/viewer membership roles attached to businesses and sites.
type GlobalRole string

const (
	RoleUser  GlobalRole = "user"
	RoleAdmin GlobalRole = "admin"
	RoleGuest GlobalRole = "guest"
	RoleHost  GlobalRole = "host"
)

// ValidGlobalRole reports whether role is one of the known global roles.
func ValidGlobalRole(role GlobalRole) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleGuest, RoleHost:
		return true
	}
	return false
}

// Status is the account lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// User is a platform account. Email is unique case-insensitively; the store
// persists it lowercased.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         GlobalRole
	Status       Status
	PushTokens   []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins first and last name for display.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Public strips credentials for responses.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  u.FullName(),
		Role:      u.Role,
		Status:    u.Status,
	}
}

// PublicProfile is the caller-visible projection of a User.
type PublicProfile struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	FullName  string     `json:"full_name"`
	Role      GlobalRole `json:"role"`
	Status    Status     `json:"status"`
}

// OTP kinds and delivery mediums.
const (
	OTPMediumEmail = "email"

	OTPTypeForgotPassword    = "forgot-password"
	OTPTypeEmailVerification = "email-verification"
)

// OTP is a single-use six-digit code. Consumed on successful verification or
// on expiry detection.
type OTP struct {
	Code      string
	UserID    string
	ExpiresAt time.Time
	Medium    string
	Type      string
	Used      bool
	CreatedAt time.Time
}
