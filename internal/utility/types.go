// Package utility manages utility contracts attached to businesses and sites.
package utility

import "time"

// Type is the utility kind.
type Type string

const (
	TypeElectricity Type = "electricity"
	TypeGas         Type = "gas"
	TypeWater       Type = "water"
	TypeTelecoms    Type = "telecoms"
)

// ValidType reports whether t is a known utility type.
func ValidType(t Type) bool {
	switch t {
	case TypeElectricity, TypeGas, TypeWater, TypeTelecoms:
		return true
	}
	return false
}

// Status is the contract lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusPending Status = "pending"
)

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusExpired, StatusPending:
		return true
	}
	return false
}

// Utility is a supply contract. At least one of SiteID/BusinessID is set;
// both may be. The owning scope's back-reference is written in the same
// transaction as the utility row.
type Utility struct {
	ID            string     `json:"id"`
	SiteID        string     `json:"site_id,omitempty"`
	BusinessID    string     `json:"business_id,omitempty"`
	Type          Type       `json:"type"`
	Supplier      string     `json:"supplier"`
	Identifier    string     `json:"identifier"`
	ContractStart *time.Time `json:"contract_start,omitempty"`
	ContractEnd   *time.Time `json:"contract_end,omitempty"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
