package utility

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"utilitygrid.org/internal/ids"
	"utilitygrid.org/internal/membership"
)

// ScopeResolver checks that the owning business/site exists before a utility
// is attached to it. The membership service satisfies this.
type ScopeResolver interface {
	FindBusiness(ctx context.Context, id string) (*membership.Business, error)
	FindSite(ctx context.Context, id string) (*membership.Site, error)
}

// AttachInput describes a utility to attach. At least one of BusinessID and
// SiteID is required.
type AttachInput struct {
	BusinessID    string
	SiteID        string
	Type          Type
	Supplier      string
	Identifier    string
	ContractStart *time.Time
	ContractEnd   *time.Time
	Status        Status
}

// Service coordinates utility attachment.
type Service struct {
	store  Store
	scopes ScopeResolver
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store Store, scopes ScopeResolver, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("utility store is required")
	}
	if scopes == nil {
		return nil, errors.New("scope resolver is required")
	}
	s := &Service{store: store, scopes: scopes, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Attach validates the scope rule (site and/or business, both must exist)
// and persists the utility together with its owner back-references.
func (s *Service) Attach(ctx context.Context, in AttachInput) (*Utility, error) {
	in.BusinessID = strings.TrimSpace(in.BusinessID)
	in.SiteID = strings.TrimSpace(in.SiteID)
	if in.BusinessID == "" && in.SiteID == "" {
		return nil, fmt.Errorf("%w: a utility needs a site or a business", ErrInvalidInput)
	}
	if !ValidType(in.Type) {
		return nil, fmt.Errorf("%w: unknown utility type %q", ErrInvalidInput, in.Type)
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if !ValidStatus(in.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, in.Status)
	}
	if in.ContractStart != nil && in.ContractEnd != nil && in.ContractEnd.Before(*in.ContractStart) {
		return nil, fmt.Errorf("%w: contract ends before it starts", ErrInvalidInput)
	}
	if in.BusinessID != "" {
		if _, err := s.scopes.FindBusiness(ctx, in.BusinessID); err != nil {
			return nil, err
		}
	}
	if in.SiteID != "" {
		if _, err := s.scopes.FindSite(ctx, in.SiteID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	u := &Utility{
		ID:            ids.New(),
		SiteID:        in.SiteID,
		BusinessID:    in.BusinessID,
		Type:          in.Type,
		Supplier:      strings.TrimSpace(in.Supplier),
		Identifier:    strings.TrimSpace(in.Identifier),
		ContractStart: in.ContractStart,
		ContractEnd:   in.ContractEnd,
		Status:        in.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Find(ctx context.Context, id string) (*Utility, error) {
	return s.store.Find(ctx, id)
}

func (s *Service) ListForBusiness(ctx context.Context, businessID string) ([]*Utility, error) {
	return s.store.ListForBusiness(ctx, businessID)
}

func (s *Service) ListForSite(ctx context.Context, siteID string) ([]*Utility, error) {
	return s.store.ListForSite(ctx, siteID)
}

// UpdateStatus moves a utility between contract states.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !ValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.UpdateStatus(ctx, id, status)
}
