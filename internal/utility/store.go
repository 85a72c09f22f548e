package utility

import "context"

// Store persists utilities. Create writes the utility row and the owning
// business/site back-references in one transaction.
type Store interface {
	Create(ctx context.Context, u *Utility) error
	Find(ctx context.Context, id string) (*Utility, error)
	ListForBusiness(ctx context.Context, businessID string) ([]*Utility, error)
	ListForSite(ctx context.Context, siteID string) ([]*Utility, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}
