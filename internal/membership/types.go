// Package membership maintains the Business/Site/User relationship graph.
// Every mutation of the denormalized back-references (user_businesses,
// user_sites) goes through this package so both sides of a relationship are
// written in the same transaction or not at all.
package membership

import "time"

// Role is the membership-scoped role, ordered by decreasing mutation
// privilege. It is orthogonal to the global account role.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
)

// ValidRole reports whether role is one of the known membership roles.
func ValidRole(role Role) bool {
	switch role {
	case RoleOwner, RoleManager, RoleViewer:
		return true
	}
	return false
}

// Member is a (user, role) pair attached to a business or site.
type Member struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Business is a tenant. Members is the authoritative, ordered role list;
// User-side references are derived and kept in sync transactionally.
type Business struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Site belongs to exactly one business and carries its own member list.
type Site struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Members    []Member  `json:"members"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Invitation is a pending site invite addressed to an email with no matching
// account yet. Redeemed once by token after the invitee registers.
type Invitation struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	InvitedBy string    `json:"invited_by"`
	Token     string    `json:"-"`
	Accepted  bool      `json:"accepted"`
	CreatedAt time.Time `json:"created_at"`
}

// InviteStatus is the business invite lifecycle. Pending is the only
// non-terminal state.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRevoked  InviteStatus = "revoked"
	InviteExpired  InviteStatus = "expired"
)

// Invite is a business invite addressed to an existing account.
type Invite struct {
	ID            string       `json:"id"`
	BusinessID    string       `json:"business_id"`
	InvitedUserID string       `json:"invited_user_id"`
	InviterID     string       `json:"inviter_id"`
	Role          Role         `json:"role"`
	Token         string       `json:"-"`
	Status        InviteStatus `json:"status"`
	ExpiresAt     time.Time    `json:"expires_at"`
	AcceptedAt    *time.Time   `json:"accepted_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
