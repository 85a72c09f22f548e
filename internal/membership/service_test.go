package membership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"utilitygrid.org/internal/identity"
	"utilitygrid.org/internal/ids"
	"utilitygrid.org/internal/notify"
)

// memStore is an in-memory Store. Back-references are tracked explicitly so
// tests can assert the dual-write consistency the service promises.
type memStore struct {
	mu          sync.Mutex
	businesses  map[string]*Business
	sites       map[string]*Site
	invitations map[string]*Invitation
	invites     map[string]*Invite

	userBusinesses map[string]map[string]bool
	userSites      map[string]map[string]bool

	siteWriteErr error
}

func newMemStore() *memStore {
	return &memStore{
		businesses:     make(map[string]*Business),
		sites:          make(map[string]*Site),
		invitations:    make(map[string]*Invitation),
		invites:        make(map[string]*Invite),
		userBusinesses: make(map[string]map[string]bool),
		userSites:      make(map[string]map[string]bool),
	}
}

func (m *memStore) backref(refs map[string]map[string]bool, userID, id string) {
	if refs[userID] == nil {
		refs[userID] = make(map[string]bool)
	}
	refs[userID][id] = true
}

func (m *memStore) CreateBusiness(_ context.Context, b *Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putBusiness(b)
	return nil
}

// CreateBusinessWithSite mimics the store's all-or-nothing contract: a site
// write failure leaves no business behind.
func (m *memStore) CreateBusinessWithSite(_ context.Context, b *Business, site *Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.siteWriteErr != nil {
		return m.siteWriteErr
	}
	m.putBusiness(b)
	m.putSite(site)
	return nil
}

func (m *memStore) putBusiness(b *Business) {
	clone := *b
	clone.Members = append([]Member(nil), b.Members...)
	m.businesses[b.ID] = &clone
	for _, member := range b.Members {
		m.backref(m.userBusinesses, member.UserID, b.ID)
	}
}

func (m *memStore) FindBusiness(_ context.Context, id string) (*Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *b
	clone.Members = append([]Member(nil), b.Members...)
	return &clone, nil
}

func (m *memStore) BusinessesForUser(_ context.Context, userID string) ([]*Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Business
	for id := range m.userBusinesses[userID] {
		if b, ok := m.businesses[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) BusinessRole(_ context.Context, businessID, userID string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[businessID]
	if !ok {
		return "", ErrNotFound
	}
	for _, member := range b.Members {
		if member.UserID == userID {
			return member.Role, nil
		}
	}
	return "", ErrNotAMember
}

func (m *memStore) UpdateMemberRole(_ context.Context, businessID, userID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[businessID]
	if !ok {
		return ErrNotFound
	}
	for i, member := range b.Members {
		if member.UserID == userID {
			b.Members[i].Role = role
			return nil
		}
	}
	return ErrNotAMember
}

func (m *memStore) OwnerCount(_ context.Context, businessID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[businessID]
	if !ok {
		return 0, ErrNotFound
	}
	var n int
	for _, member := range b.Members {
		if member.Role == RoleOwner {
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteBusiness(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.businesses[id]; !ok {
		return ErrNotFound
	}
	for _, site := range m.sites {
		if site.BusinessID == id {
			return ErrHasDependents
		}
	}
	delete(m.businesses, id)
	for _, refs := range m.userBusinesses {
		delete(refs, id)
	}
	return nil
}

func (m *memStore) CreateSite(_ context.Context, s *Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.siteWriteErr != nil {
		return m.siteWriteErr
	}
	m.putSite(s)
	return nil
}

func (m *memStore) putSite(s *Site) {
	clone := *s
	clone.Members = append([]Member(nil), s.Members...)
	m.sites[s.ID] = &clone
	for _, member := range s.Members {
		m.backref(m.userSites, member.UserID, s.ID)
	}
}

func (m *memStore) FindSite(_ context.Context, id string) (*Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s
	clone.Members = append([]Member(nil), s.Members...)
	return &clone, nil
}

func (m *memStore) SitesForUser(_ context.Context, userID string) ([]*Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Site
	for id := range m.userSites[userID] {
		if s, ok := m.sites[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) SiteRole(_ context.Context, siteID, userID string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[siteID]
	if !ok {
		return "", ErrNotFound
	}
	for _, member := range s.Members {
		if member.UserID == userID {
			return member.Role, nil
		}
	}
	return "", ErrNotAMember
}

func (m *memStore) AddSiteMember(_ context.Context, siteID, userID string, role Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[siteID]
	if !ok {
		return false, ErrNotFound
	}
	for _, member := range s.Members {
		if member.UserID == userID {
			m.backref(m.userSites, userID, siteID)
			return false, nil
		}
	}
	s.Members = append(s.Members, Member{UserID: userID, Role: role})
	m.backref(m.userSites, userID, siteID)
	return true, nil
}

func (m *memStore) CreateInvitation(_ context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *inv
	m.invitations[inv.Token] = &clone
	return nil
}

func (m *memStore) FindInvitationByToken(_ context.Context, token string) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invitations[token]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *inv
	return &clone, nil
}

func (m *memStore) AcceptInvitation(_ context.Context, invitationID, siteID, userID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inv *Invitation
	for _, candidate := range m.invitations {
		if candidate.ID == invitationID {
			inv = candidate
			break
		}
	}
	if inv == nil {
		return ErrNotFound
	}
	if inv.Accepted {
		return ErrInviteUsed
	}
	inv.Accepted = true
	s, ok := m.sites[siteID]
	if !ok {
		return ErrNotFound
	}
	for _, member := range s.Members {
		if member.UserID == userID {
			return nil
		}
	}
	s.Members = append(s.Members, Member{UserID: userID, Role: role})
	m.backref(m.userSites, userID, siteID)
	return nil
}

func (m *memStore) CreateInvite(_ context.Context, inv *Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *inv
	m.invites[inv.Token] = &clone
	return nil
}

func (m *memStore) FindInvite(_ context.Context, id string) (*Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invites {
		if inv.ID == id {
			clone := *inv
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindInviteByToken(_ context.Context, token string) (*Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[token]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *inv
	return &clone, nil
}

func (m *memStore) TransitionInvite(_ context.Context, inviteID string, from, to InviteStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invites {
		if inv.ID == inviteID && inv.Status == from {
			inv.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) AcceptInvite(_ context.Context, inviteID, businessID, userID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invites {
		if inv.ID != inviteID {
			continue
		}
		if inv.Status != InvitePending {
			return ErrInviteUsed
		}
		inv.Status = InviteAccepted
		b, ok := m.businesses[businessID]
		if !ok {
			return ErrNotFound
		}
		for _, member := range b.Members {
			if member.UserID == userID {
				return nil
			}
		}
		b.Members = append(b.Members, Member{UserID: userID, Role: role})
		m.backref(m.userBusinesses, userID, businessID)
		return nil
	}
	return ErrNotFound
}

// memUserStore mirrors the identity store just enough for member resolution.
type memUserStore struct {
	byID map[string]*identity.User
}

func (m *memUserStore) Create(_ context.Context, u *identity.User) error {
	m.byID[u.ID] = u
	return nil
}

func (m *memUserStore) Find(_ context.Context, id string) (*identity.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return u, nil
}

func (m *memUserStore) FindByEmail(_ context.Context, email string) (*identity.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (m *memUserStore) FindManyByID(_ context.Context, userIDs []string) ([]*identity.User, error) {
	var out []*identity.User
	for _, id := range userIDs {
		if u, ok := m.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUserStore) UpdateProfile(_ context.Context, id, first, last string) error { return nil }
func (m *memUserStore) UpdatePassword(_ context.Context, id, hash string) error       { return nil }
func (m *memUserStore) AddPushToken(_ context.Context, id, token string) error        { return nil }
func (m *memUserStore) Delete(_ context.Context, id string) error                     { return nil }

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (r *recordingMailer) SendEmail(_ context.Context, msg notify.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingMailer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memStore, *memUserStore, *recordingMailer) {
	t.Helper()
	store := newMemStore()
	users := &memUserStore{byID: make(map[string]*identity.User)}
	mailer := &recordingMailer{}
	svc, err := NewService(store, users, append([]Option{WithMailer(mailer)}, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, users, mailer
}

func addUser(users *memUserStore, email string) *identity.User {
	u := &identity.User{
		ID:     ids.New(),
		Email:  email,
		Role:   identity.RoleUser,
		Status: identity.StatusActive,
	}
	users.byID[u.ID] = u
	return u
}

func TestCreateBusinessRoundTrip(t *testing.T) {
	svc, store, users, _ := newTestService(t)
	ctx := context.Background()

	a := addUser(users, "a@x.com")
	b := addUser(users, "b@x.com")
	members := []Member{
		{UserID: a.ID, Role: RoleOwner},
		{UserID: b.ID, Role: RoleViewer},
	}

	business, err := svc.CreateBusiness(ctx, "Acme", "1 Main St", members)
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	got, err := store.FindBusiness(ctx, business.ID)
	if err != nil {
		t.Fatalf("FindBusiness: %v", err)
	}
	if len(got.Members) != 2 || got.Members[0] != members[0] || got.Members[1] != members[1] {
		t.Fatalf("member list mismatch: %+v", got.Members)
	}
	for _, m := range members {
		if !store.userBusinesses[m.UserID][business.ID] {
			t.Fatalf("back-reference missing for %s", m.UserID)
		}
	}
}

func TestCreateBusinessMissingUsers(t *testing.T) {
	svc, store, users, _ := newTestService(t)
	ctx := context.Background()

	a := addUser(users, "a@x.com")
	ghost1, ghost2 := ids.New(), ids.New()
	_, err := svc.CreateBusiness(ctx, "Acme", "", []Member{
		{UserID: a.ID, Role: RoleOwner},
		{UserID: ghost1, Role: RoleViewer},
		{UserID: ghost2, Role: RoleViewer},
	})

	var missing *MissingUsersError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingUsersError, got %v", err)
	}
	if len(missing.IDs) != 2 || missing.IDs[0] != ghost1 || missing.IDs[1] != ghost2 {
		t.Fatalf("unexpected missing ids: %v", missing.IDs)
	}
	if len(store.businesses) != 0 {
		t.Fatal("no business may be persisted when resolution fails")
	}
}

func TestCreateBusinessValidation(t *testing.T) {
	svc, _, users, _ := newTestService(t)
	ctx := context.Background()
	a := addUser(users, "a@x.com")

	cases := []struct {
		name    string
		bizName string
		members []Member
	}{
		{"empty name", "", []Member{{UserID: a.ID, Role: RoleOwner}}},
		{"no members", "Acme", nil},
		{"bad role", "Acme", []Member{{UserID: a.ID, Role: "janitor"}}},
		{"malformed id", "Acme", []Member{{UserID: "not-an-id", Role: RoleOwner}}},
		{"duplicate member", "Acme", []Member{{UserID: a.ID, Role: RoleOwner}, {UserID: a.ID, Role: RoleViewer}}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateBusiness(ctx, tc.bizName, "", tc.members); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestCreateBusinessAutoFirstSite(t *testing.T) {
	svc, store, users, _ := newTestService(t, WithAutoCreateFirstSite(true))
	ctx := context.Background()

	a := addUser(users, "a@x.com")
	business, err := svc.CreateBusiness(ctx, "Acme", "1 Main St", []Member{{UserID: a.ID, Role: RoleOwner}})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}

	sites, err := store.SitesForUser(ctx, a.ID)
	if err != nil {
		t.Fatalf("SitesForUser: %v", err)
	}
	if len(sites) != 1 {
		t.Fatalf("expected one default site, got %d", len(sites))
	}
	if sites[0].BusinessID != business.ID || sites[0].Name != "Acme" {
		t.Fatalf("unexpected default site: %+v", sites[0])
	}
}

func TestCreateBusinessAutoFirstSiteFailureLeavesNoBusiness(t *testing.T) {
	svc, store, users, _ := newTestService(t, WithAutoCreateFirstSite(true))
	ctx := context.Background()

	a := addUser(users, "a@x.com")
	store.siteWriteErr = errors.New("site write failed")

	_, err := svc.CreateBusiness(ctx, "Acme", "1 Main St", []Member{{UserID: a.ID, Role: RoleOwner}})
	if err == nil {
		t.Fatal("expected CreateBusiness to fail")
	}
	if len(store.businesses) != 0 {
		t.Fatalf("business persisted despite failed site write: %d", len(store.businesses))
	}
	if len(store.userBusinesses[a.ID]) != 0 {
		t.Fatalf("back-reference persisted despite failed site write: %v", store.userBusinesses[a.ID])
	}
}

func TestCreateSiteRequiresExistingBusiness(t *testing.T) {
	svc, _, users, _ := newTestService(t)
	ctx := context.Background()
	a := addUser(users, "a@x.com")

	_, err := svc.CreateSite(ctx, ids.New(), "Depot", "", []Member{{UserID: a.ID, Role: RoleOwner}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.CreateSite(ctx, "nope", "Depot", "", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for malformed id, got %v", err)
	}
}

func TestInviteToSiteExistingUserIsIdempotent(t *testing.T) {
	svc, store, users, mailer := newTestService(t)
	ctx := context.Background()

	owner := addUser(users, "a@x.com")
	invitee := addUser(users, "b@x.com")
	business, err := svc.CreateBusiness(ctx, "Acme", "", []Member{{UserID: owner.ID, Role: RoleOwner}})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	site, err := svc.CreateSite(ctx, business.ID, "Depot", "", []Member{{UserID: owner.ID, Role: RoleOwner}})
	if err != nil {
		t.Fatalf("CreateSite: %v", err)
	}

	before := mailer.count()
	for i := 0; i < 2; i++ {
		outcome, err := svc.InviteToSite(ctx, site.ID, "B@x.com", RoleViewer, owner.ID)
		if err != nil {
			t.Fatalf("InviteToSite #%d: %v", i+1, err)
		}
		if outcome.Member == nil || outcome.Member.UserID != invitee.ID {
			t.Fatalf("expected membership outcome, got %+v", outcome)
		}
	}

	got, _ := store.FindSite(ctx, site.ID)
	var entries int
	for _, m := range got.Members {
		if m.UserID == invitee.ID {
			entries++
		}
	}
	if entries != 1 {
		t.Fatalf("expected exactly one membership entry, got %d", entries)
	}
	// Only the first call actually added the member, so only one mail.
	if mailer.count() != before+1 {
		t.Fatalf("expected one notification, got %d", mailer.count()-before)
	}
}

func TestInviteToSiteUnknownEmailCreatesPendingInvitation(t *testing.T) {
	svc, store, users, mailer := newTestService(t)
	ctx := context.Background()

	owner := addUser(users, "a@x.com")
	business, err := svc.CreateBusiness(ctx, "Acme", "", []Member{{UserID: owner.ID, Role: RoleOwner}})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	site, err := svc.CreateSite(ctx, business.ID, "Depot", "", []Member{{UserID: owner.ID, Role: RoleOwner}})
	if err != nil {
		t.Fatalf("CreateSite: %v", err)
	}

	outcome, err := svc.InviteToSite(ctx, site.ID, "b@x.com", RoleViewer, owner.ID)
	if err != nil {
		t.Fatalf("InviteToSite: %v", err)
	}
	if outcome.Invitation == nil || outcome.Invitation.Token == "" {
		t.Fatalf("expected pending invitation with token, got %+v", outcome)
	}
	got, _ := store.FindSite(ctx, site.ID)
	if len(got.Members) != 1 {
		t.Fatalf("site members must be unchanged, got %+v", got.Members)
	}
	if mailer.count() == 0 {
		t.Fatal("invite email must be sent")
	}

	// Registration followed by re-invite takes the membership branch.
	invitee := addUser(users, "b@x.com")
	outcome, err = svc.InviteToSite(ctx, site.ID, "b@x.com", RoleViewer, owner.ID)
	if err != nil {
		t.Fatalf("re-invite: %v", err)
	}
	if outcome.Member == nil || outcome.Member.UserID != invitee.ID {
		t.Fatalf("expected membership outcome after registration, got %+v", outcome)
	}
	got, _ = store.FindSite(ctx, site.ID)
	roleOf := map[string]Role{}
	for _, m := range got.Members {
		roleOf[m.UserID] = m.Role
	}
	if roleOf[invitee.ID] != RoleViewer {
		t.Fatalf("expected viewer membership, got %+v", got.Members)
	}
}

func TestAcceptSiteInvite(t *testing.T) {
	now := time.Now()
	svc, _, users, _ := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	owner := addUser(users, "a@x.com")
	business, _ := svc.CreateBusiness(ctx, "Acme", "", []Member{{UserID: owner.ID, Role: RoleOwner}})
	site, _ := svc.CreateSite(ctx, business.ID, "Depot", "", []Member{{UserID: owner.ID, Role: RoleOwner}})

	outcome, err := svc.InviteToSite(ctx, site.ID, "b@x.com", RoleViewer, owner.ID)
	if err != nil {
		t.Fatalf("InviteToSite: %v", err)
	}
	token := outcome.Invitation.Token

	// Wrong account: the invitee registered a different email.
	stranger := addUser(users, "c@x.com")
	if _, err := svc.AcceptSiteInvite(ctx, token, stranger.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected email mismatch to fail, got %v", err)
	}

	invitee := addUser(users, "b@x.com")
	got, err := svc.AcceptSiteInvite(ctx, token, invitee.ID)
	if err != nil {
		t.Fatalf("AcceptSiteInvite: %v", err)
	}
	var found bool
	for _, m := range got.Members {
		if m.UserID == invitee.ID && m.Role == RoleViewer {
			found = true
		}
	}
	if !found {
		t.Fatalf("membership not created: %+v", got.Members)
	}

	// Single use.
	if _, err := svc.AcceptSiteInvite(ctx, token, invitee.ID); !errors.Is(err, ErrInviteUsed) {
		t.Fatalf("expected ErrInviteUsed, got %v", err)
	}
}

func TestAcceptSiteInviteExpired(t *testing.T) {
	now := time.Now()
	svc, _, users, _ := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	owner := addUser(users, "a@x.com")
	business, _ := svc.CreateBusiness(ctx, "Acme", "", []Member{{UserID: owner.ID, Role: RoleOwner}})
	site, _ := svc.CreateSite(ctx, business.ID, "Depot", "", []Member{{UserID: owner.ID, Role: RoleOwner}})
	outcome, err := svc.InviteToSite(ctx, site.ID, "b@x.com", RoleViewer, owner.ID)
	if err != nil {
		t.Fatalf("InviteToSite: %v", err)
	}

	invitee := addUser(users, "b@x.com")
	now = now.Add(8 * 24 * time.Hour)
	if _, err := svc.AcceptSiteInvite(ctx, outcome.Invitation.Token, invitee.ID); !errors.Is(err, ErrInviteExpired) {
		t.Fatalf("expected ErrInviteExpired, got %v", err)
	}
}

func TestBusinessInviteLifecycle(t *testing.T) {
	now := time.Now()
	svc, store, users, _ := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	owner := addUser(users, "a@x.com")
	invitee := addUser(users, "b@x.com")
	business, _ := svc.CreateBusiness(ctx, "Acme", "", []Member{{UserID: owner.ID, Role: RoleOwner}})

	inv, err := svc.InviteToBusiness(ctx, business.ID, invitee.ID, owner.ID, RoleManager)
	if err != nil {
		t.Fatalf("InviteToBusiness: %v", err)
	}
	if inv.Status != InvitePending || inv.Token == "" {
		t.Fatalf("unexpected invite: %+v", inv)
	}

	// Wrong account cannot redeem.
	stranger := addUser(users, "c@x.com")
	if _, err := svc.AcceptBusinessInvite(ctx, inv.Token, stranger.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected account mismatch to fail, got %v", err)
	}

	got, err := svc.AcceptBusinessInvite(ctx, inv.Token, invitee.ID)
	if err != nil {
		t.Fatalf("AcceptBusinessInvite: %v", err)
	}
	role, err := store.BusinessRole(ctx, got.ID, invitee.ID)
	if err != nil || role != RoleManager {
		t.Fatalf("expected manager membership, got %v %v", role, err)
	}
	if !store.userBusinesses[invitee.ID][business.ID] {
		t.Fatal("back-reference missing after accept")
	}

	// Terminal: a consumed invite cannot be redeemed or revoked.
	if _, err := svc.AcceptBusinessInvite(ctx, inv.Token, invitee.ID); !errors.Is(err, ErrInviteUsed) {
		t.Fatalf("expected ErrInviteUsed, got %v", err)
	}
	if err := svc.RevokeBusinessInvite(ctx, inv.ID); !errors.Is(err, ErrInviteUsed) {
		t.Fatalf("expected revoke of accepted invite to fail, got %v", err)
	}
}

func TestAcceptBusinessInviteLazyExpiry(t *testing.T) {
	now := time.Now()
	svc, store, users, _ := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	owner := addUser(users, "a@x.com")
	invitee := addUser(users, "b@x.com")
	business, _ := svc.CreateBusiness(ctx, "Acme", "", []Member{{UserID: owner.ID, Role: RoleOwner}})
	inv, err := svc.InviteToBusiness(ctx, business.ID, invitee.ID, owner.ID, RoleViewer)
	if err != nil {
		t.Fatalf("InviteToBusiness: %v", err)
	}

	now = now.Add(8 * 24 * time.Hour)
	if _, err := svc.AcceptBusinessInvite(ctx, inv.Token, invitee.ID); !errors.Is(err, ErrInviteExpired) {
		t.Fatalf("expected ErrInviteExpired, got %v", err)
	}
	stored, _ := store.FindInviteByToken(ctx, inv.Token)
	if stored.Status != InviteExpired {
		t.Fatalf("expiry detection must flip status, got %s", stored.Status)
	}
}

func TestUpdateMemberRoleLastOwnerGuard(t *testing.T) {
	svc, store, users, _ := newTestService(t)
	ctx := context.Background()

	a := addUser(users, "a@x.com")
	b := addUser(users, "b@x.com")
	business, _ := svc.CreateBusiness(ctx, "Acme", "", []Member{
		{UserID: a.ID, Role: RoleOwner},
		{UserID: b.ID, Role: RoleManager},
	})

	if err := svc.UpdateMemberRole(ctx, business.ID, a.ID, RoleViewer); !errors.Is(err, ErrLastOwner) {
		t.Fatalf("expected ErrLastOwner, got %v", err)
	}

	// Promote a second owner first, then the demotion goes through.
	if err := svc.UpdateMemberRole(ctx, business.ID, b.ID, RoleOwner); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := svc.UpdateMemberRole(ctx, business.ID, a.ID, RoleViewer); err != nil {
		t.Fatalf("demote: %v", err)
	}
	role, _ := store.BusinessRole(ctx, business.ID, a.ID)
	if role != RoleViewer {
		t.Fatalf("role not persisted: %s", role)
	}

	if err := svc.UpdateMemberRole(ctx, business.ID, ids.New(), RoleViewer); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	if err := svc.UpdateMemberRole(ctx, business.ID, a.ID, "janitor"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteBusinessOrphanAndReject(t *testing.T) {
	svc, _, users, _ := newTestService(t)
	ctx := context.Background()

	a := addUser(users, "a@x.com")
	business, _ := svc.CreateBusiness(ctx, "Acme", "", []Member{{UserID: a.ID, Role: RoleOwner}})
	if _, err := svc.CreateSite(ctx, business.ID, "Depot", "", []Member{{UserID: a.ID, Role: RoleOwner}}); err != nil {
		t.Fatalf("CreateSite: %v", err)
	}

	if err := svc.DeleteBusiness(ctx, business.ID); !errors.Is(err, ErrHasDependents) {
		t.Fatalf("expected ErrHasDependents, got %v", err)
	}

	empty, _ := svc.CreateBusiness(ctx, "Empty Co", "", []Member{{UserID: a.ID, Role: RoleOwner}})
	if err := svc.DeleteBusiness(ctx, empty.ID); err != nil {
		t.Fatalf("DeleteBusiness: %v", err)
	}
	if _, err := svc.FindBusiness(ctx, empty.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("business should be gone, got %v", err)
	}
}
