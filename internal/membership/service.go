package membership

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"utilitygrid.org/internal/identity"
	"utilitygrid.org/internal/ids"
	"utilitygrid.org/internal/notify"
	"utilitygrid.org/internal/obs"
)

const inviteTTL = 7 * 24 * time.Hour

// Service orchestrates membership-graph mutations: member validation, atomic
// back-reference writes, invites and role changes. Authorization of the actor
// happens at the caller; this layer enforces data consistency only.
type Service struct {
	store  Store
	users  identity.UserStore
	mailer notify.Mailer
	now    func() time.Time

	autoFirstSite bool
}

// Option configures Service behavior.
type Option func(*Service)

// WithMailer overrides the invite mail sender.
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

// WithAutoCreateFirstSite makes business creation also write a default site
// carrying the same name, address and members, atomically with the business.
func WithAutoCreateFirstSite(enabled bool) Option {
	return func(s *Service) { s.autoFirstSite = enabled }
}

func NewService(store Store, users identity.UserStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("membership store is required")
	}
	if users == nil {
		return nil, errors.New("user store is required")
	}
	s := &Service{
		store:  store,
		users:  users,
		mailer: notify.LogSender{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateBusiness validates the member list, resolves every member id against
// the credential store in one batch, and persists the business together with
// all back-references atomically. When auto-first-site is enabled the default
// site is written in the same transaction as the business.
func (s *Service) CreateBusiness(ctx context.Context, name, address string, members []Member) (*Business, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: business name is required", ErrInvalidInput)
	}
	if err := s.validateMembers(ctx, members); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	b := &Business{
		ID:        ids.New(),
		Name:      name,
		Address:   strings.TrimSpace(address),
		Members:   normalizeMembers(members),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !s.autoFirstSite {
		if err := s.store.CreateBusiness(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	site := &Site{
		ID:         ids.New(),
		BusinessID: b.ID,
		Name:       b.Name,
		Address:    b.Address,
		Members:    normalizeMembers(members),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateBusinessWithSite(ctx, b, site); err != nil {
		return nil, err
	}
	return b, nil
}

// CreateSite creates a site scoped to an existing business, with the same
// member validation and back-reference discipline as business creation.
func (s *Service) CreateSite(ctx context.Context, businessID, name, address string, members []Member) (*Site, error) {
	if !ids.Valid(businessID) {
		return nil, fmt.Errorf("%w: malformed business id", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: site name is required", ErrInvalidInput)
	}
	if err := s.validateMembers(ctx, members); err != nil {
		return nil, err
	}
	if _, err := s.store.FindBusiness(ctx, businessID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	site := &Site{
		ID:         ids.New(),
		BusinessID: businessID,
		Name:       name,
		Address:    strings.TrimSpace(address),
		Members:    normalizeMembers(members),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateSite(ctx, site); err != nil {
		return nil, err
	}
	return site, nil
}

// InviteOutcome reports which branch InviteToSite took: an immediate
// membership for an existing account, or a pending token invitation.
type InviteOutcome struct {
	Member     *Member
	Invitation *Invitation
}

// InviteToSite adds an existing account to the site membership (idempotent,
// set semantics) or records a pending invitation for an unknown email. The
// notification email is best-effort on both branches.
func (s *Service) InviteToSite(ctx context.Context, siteID, email string, role Role, invitedBy string) (*InviteOutcome, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	site, err := s.store.FindSite(ctx, siteID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		added, err := s.store.AddSiteMember(ctx, site.ID, user.ID, role)
		if err != nil {
			return nil, err
		}
		if added {
			s.sendMail(ctx, notify.Email{
				To:      user.Email,
				Subject: "You have been added to " + site.Name,
				Body:    fmt.Sprintf("You now have %s access to site %s.", role, site.Name),
			})
		}
		return &InviteOutcome{Member: &Member{UserID: user.ID, Role: role}}, nil

	case errors.Is(err, identity.ErrNotFound):
		token, err := newInviteToken()
		if err != nil {
			return nil, err
		}
		inv := &Invitation{
			ID:        ids.New(),
			SiteID:    site.ID,
			Email:     email,
			Role:      role,
			InvitedBy: invitedBy,
			Token:     token,
			CreatedAt: s.now().UTC(),
		}
		if err := s.store.CreateInvitation(ctx, inv); err != nil {
			return nil, err
		}
		s.sendMail(ctx, notify.Email{
			To:      email,
			Subject: "You have been invited to " + site.Name,
			Body:    fmt.Sprintf("Use invite token %s to join site %s as %s.", token, site.Name, role),
		})
		return &InviteOutcome{Invitation: inv}, nil

	default:
		return nil, err
	}
}

// AcceptSiteInvite redeems a pending invitation token for the registered
// account whose email matches the invitation. Tokens are single-use and
// expire seven days after issue.
func (s *Service) AcceptSiteInvite(ctx context.Context, token, userID string) (*Site, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: invite token is required", ErrInvalidInput)
	}
	inv, err := s.store.FindInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Accepted {
		return nil, ErrInviteUsed
	}
	if s.now().After(inv.CreatedAt.Add(inviteTTL)) {
		return nil, ErrInviteExpired
	}
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(user.Email, inv.Email) {
		return nil, fmt.Errorf("%w: invitation was issued for a different email", ErrInvalidInput)
	}
	if err := s.store.AcceptInvitation(ctx, inv.ID, inv.SiteID, user.ID, inv.Role); err != nil {
		return nil, err
	}
	return s.store.FindSite(ctx, inv.SiteID)
}

// InviteToBusiness records a pending business invite for an existing account
// and emails the invite token. Expiry is enforced lazily at accept time.
func (s *Service) InviteToBusiness(ctx context.Context, businessID, invitedUserID, inviterID string, role Role) (*Invite, error) {
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	business, err := s.store.FindBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	invited, err := s.users.Find(ctx, invitedUserID)
	if err != nil {
		return nil, err
	}
	token, err := newInviteToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	inv := &Invite{
		ID:            ids.New(),
		BusinessID:    business.ID,
		InvitedUserID: invited.ID,
		InviterID:     inviterID,
		Role:          role,
		Token:         token,
		Status:        InvitePending,
		ExpiresAt:     now.Add(inviteTTL),
		CreatedAt:     now,
	}
	if err := s.store.CreateInvite(ctx, inv); err != nil {
		return nil, err
	}
	s.sendMail(ctx, notify.Email{
		To:      invited.Email,
		Subject: "You have been invited to " + business.Name,
		Body:    fmt.Sprintf("Use invite token %s to join %s as %s.", token, business.Name, role),
	})
	return inv, nil
}

// AcceptBusinessInvite redeems a business invite token. Expired pending
// invites are flipped to expired on detection, mirroring refresh-token
// lazy invalidation.
func (s *Service) AcceptBusinessInvite(ctx context.Context, token, userID string) (*Business, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: invite token is required", ErrInvalidInput)
	}
	inv, err := s.store.FindInviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case InvitePending:
	case InviteExpired:
		return nil, ErrInviteExpired
	default:
		return nil, ErrInviteUsed
	}
	if s.now().After(inv.ExpiresAt) {
		if _, err := s.store.TransitionInvite(ctx, inv.ID, InvitePending, InviteExpired); err != nil {
			return nil, err
		}
		return nil, ErrInviteExpired
	}
	if inv.InvitedUserID != userID {
		return nil, fmt.Errorf("%w: invite was issued to a different account", ErrInvalidInput)
	}
	if err := s.store.AcceptInvite(ctx, inv.ID, inv.BusinessID, userID, inv.Role); err != nil {
		return nil, err
	}
	return s.store.FindBusiness(ctx, inv.BusinessID)
}

func (s *Service) FindInvite(ctx context.Context, id string) (*Invite, error) {
	return s.store.FindInvite(ctx, id)
}

// RevokeBusinessInvite cancels a pending invite. Only pending invites can be
// revoked; anything else already reached a terminal state.
func (s *Service) RevokeBusinessInvite(ctx context.Context, inviteID string) error {
	flipped, err := s.store.TransitionInvite(ctx, inviteID, InvitePending, InviteRevoked)
	if err != nil {
		return err
	}
	if !flipped {
		return ErrInviteUsed
	}
	return nil
}

// UpdateMemberRole changes a business member's role. The last remaining
// owner can never be demoted.
func (s *Service) UpdateMemberRole(ctx context.Context, businessID, userID string, role Role) error {
	if !ValidRole(role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	current, err := s.store.BusinessRole(ctx, businessID, userID)
	if err != nil {
		return err
	}
	if current == role {
		return nil
	}
	if current == RoleOwner {
		owners, err := s.store.OwnerCount(ctx, businessID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}
	return s.store.UpdateMemberRole(ctx, businessID, userID, role)
}

// DeleteBusiness removes the business under the orphan-and-reject policy:
// dependent sites or utilities block deletion.
func (s *Service) DeleteBusiness(ctx context.Context, businessID string) error {
	return s.store.DeleteBusiness(ctx, businessID)
}

func (s *Service) FindBusiness(ctx context.Context, id string) (*Business, error) {
	return s.store.FindBusiness(ctx, id)
}

func (s *Service) FindSite(ctx context.Context, id string) (*Site, error) {
	return s.store.FindSite(ctx, id)
}

func (s *Service) BusinessesForUser(ctx context.Context, userID string) ([]*Business, error) {
	return s.store.BusinessesForUser(ctx, userID)
}

func (s *Service) SitesForUser(ctx context.Context, userID string) ([]*Site, error) {
	return s.store.SitesForUser(ctx, userID)
}

func (s *Service) BusinessRole(ctx context.Context, businessID, userID string) (Role, error) {
	return s.store.BusinessRole(ctx, businessID, userID)
}

func (s *Service) SiteRole(ctx context.Context, siteID, userID string) (Role, error) {
	return s.store.SiteRole(ctx, siteID, userID)
}

// validateMembers checks shape and syntax, then resolves every id against the
// credential store in one batch. Unresolved ids fail with the full list.
func (s *Service) validateMembers(ctx context.Context, members []Member) error {
	if len(members) == 0 {
		return fmt.Errorf("%w: at least one member is required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(members))
	idList := make([]string, 0, len(members))
	for _, m := range members {
		if !ValidRole(m.Role) {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, m.Role)
		}
		if !ids.Valid(m.UserID) {
			return fmt.Errorf("%w: malformed user id %q", ErrInvalidInput, m.UserID)
		}
		if _, dup := seen[m.UserID]; dup {
			return fmt.Errorf("%w: duplicate member %s", ErrInvalidInput, m.UserID)
		}
		seen[m.UserID] = struct{}{}
		idList = append(idList, m.UserID)
	}

	found, err := s.users.FindManyByID(ctx, idList)
	if err != nil {
		return err
	}
	resolved := make(map[string]struct{}, len(found))
	for _, u := range found {
		resolved[u.ID] = struct{}{}
	}
	var missing []string
	for _, id := range idList {
		if _, ok := resolved[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &MissingUsersError{IDs: missing}
	}
	return nil
}

func (s *Service) sendMail(ctx context.Context, msg notify.Email) {
	if err := s.mailer.SendEmail(ctx, msg); err != nil {
		obs.LogRequest(map[string]any{
			"type":  "notify_error",
			"to":    msg.To,
			"error": err.Error(),
		})
	}
}

func normalizeMembers(members []Member) []Member {
	out := make([]Member, len(members))
	for i, m := range members {
		out[i] = Member{UserID: strings.TrimSpace(m.UserID), Role: m.Role}
	}
	return out
}

func newInviteToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
