package membership

import "context"

// Store persists the membership graph. Multi-row mutations (aggregate plus
// back-references) are atomic: the implementation commits both sides or
// neither. Member additions use set semantics and are safe to retry.
type Store interface {
	// CreateBusiness writes the business, its member rows and each member's
	// user_businesses back-reference in one transaction.
	CreateBusiness(ctx context.Context, b *Business) error
	// CreateBusinessWithSite writes the business and its default first site,
	// member rows and back-references included, in one transaction. Either
	// both aggregates commit or neither does.
	CreateBusinessWithSite(ctx context.Context, b *Business, site *Site) error
	FindBusiness(ctx context.Context, id string) (*Business, error)
	BusinessesForUser(ctx context.Context, userID string) ([]*Business, error)
	// BusinessRole returns the member role, or ErrNotAMember.
	BusinessRole(ctx context.Context, businessID, userID string) (Role, error)
	UpdateMemberRole(ctx context.Context, businessID, userID string, role Role) error
	OwnerCount(ctx context.Context, businessID string) (int, error)
	// DeleteBusiness removes the business, its memberships and back-references.
	// Fails ErrHasDependents while sites or utilities still reference it.
	DeleteBusiness(ctx context.Context, id string) error

	CreateSite(ctx context.Context, s *Site) error
	FindSite(ctx context.Context, id string) (*Site, error)
	SitesForUser(ctx context.Context, userID string) ([]*Site, error)
	SiteRole(ctx context.Context, siteID, userID string) (Role, error)
	// AddSiteMember appends the member if absent and reports whether this
	// call added it. The user_sites back-reference is written either way.
	AddSiteMember(ctx context.Context, siteID, userID string, role Role) (bool, error)

	CreateInvitation(ctx context.Context, inv *Invitation) error
	FindInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	// AcceptInvitation marks the invitation consumed and adds the site
	// membership in one transaction. A second accept loses the conditional
	// update and fails ErrInviteUsed.
	AcceptInvitation(ctx context.Context, invitationID, siteID, userID string, role Role) error

	CreateInvite(ctx context.Context, inv *Invite) error
	FindInvite(ctx context.Context, id string) (*Invite, error)
	FindInviteByToken(ctx context.Context, token string) (*Invite, error)
	// TransitionInvite flips the invite from one status to another and
	// reports whether this call performed the flip.
	TransitionInvite(ctx context.Context, inviteID string, from, to InviteStatus) (bool, error)
	// AcceptInvite transitions pending to accepted and adds the business
	// membership plus back-reference in one transaction.
	AcceptInvite(ctx context.Context, inviteID, businessID, userID string, role Role) error
}
