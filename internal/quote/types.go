// Package quote runs the quote workflow: pending quotes are sent to a
// recipient group, then accepted, rejected or expired. The recipient list
// only ever grows; repeated sends union in new recipients.
package quote

import "time"

// Type distinguishes fresh supply quotes from contract renewals.
type Type string

const (
	TypeNew     Type = "new"
	TypeRenewal Type = "renewal"
)

// ValidType reports whether t is a known quote type.
func ValidType(t Type) bool {
	return t == TypeNew || t == TypeRenewal
}

// Status is the workflow state. Pending and sent are the only states with
// outgoing transitions.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusSent, StatusAccepted, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Quote is a supply quote scoped to a business, optionally narrowed to a
// site. Recipients are user ids and grow monotonically.
type Quote struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	SiteID     string    `json:"site_id,omitempty"`
	Type       Type      `json:"type"`
	Status     Status    `json:"status"`
	Details    string    `json:"details,omitempty"`
	Recipients []string  `json:"recipients"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
