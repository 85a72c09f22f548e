package membership

import (
	"context"
	"database/sql"
	"errors"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. The authoritative member lists live
// in business_members/site_members (ordered by position); user_businesses and
// user_sites are the denormalized back-references and are only ever written
// inside the same transaction as the authoritative row.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Businesses -----------------------------------------------------------------

func (s *PGStore) CreateBusiness(ctx context.Context, b *Business) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertBusiness(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) CreateBusinessWithSite(ctx context.Context, b *Business, site *Site) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertBusiness(ctx, tx, b); err != nil {
		return err
	}
	if err := insertSite(ctx, tx, site); err != nil {
		return err
	}
	return tx.Commit()
}

func insertBusiness(ctx context.Context, tx *sql.Tx, b *Business) error {
	if _, err := tx.ExecContext(ctx,
		`insert into businesses(id, name, address) values($1,$2,$3)`,
		b.ID, b.Name, b.Address); err != nil {
		return err
	}
	for i, m := range b.Members {
		if _, err := tx.ExecContext(ctx,
			`insert into business_members(business_id, user_id, role, position) values($1,$2,$3,$4)`,
			b.ID, m.UserID, m.Role, i); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`insert into user_businesses(user_id, business_id) values($1,$2)
			 on conflict do nothing`,
			m.UserID, b.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) FindBusiness(ctx context.Context, id string) (*Business, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, address, created_at, updated_at from businesses where id=$1`, id)
	var b Business
	if err := row.Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	members, err := s.members(ctx,
		`select user_id, role from business_members where business_id=$1 order by position`, b.ID)
	if err != nil {
		return nil, err
	}
	b.Members = members
	return &b, nil
}

func (s *PGStore) BusinessesForUser(ctx context.Context, userID string) ([]*Business, error) {
	rows, err := s.db.QueryContext(ctx,
		`select b.id, b.name, b.address, b.created_at, b.updated_at
		 from businesses b
		 join user_businesses ub on ub.business_id = b.id
		 where ub.user_id=$1
		 order by b.created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Business
	for rows.Next() {
		var b Business
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, b := range out {
		members, err := s.members(ctx,
			`select user_id, role from business_members where business_id=$1 order by position`, b.ID)
		if err != nil {
			return nil, err
		}
		b.Members = members
	}
	return out, nil
}

func (s *PGStore) BusinessRole(ctx context.Context, businessID, userID string) (Role, error) {
	return s.role(ctx,
		`select role from business_members where business_id=$1 and user_id=$2`,
		businessID, userID)
}

func (s *PGStore) UpdateMemberRole(ctx context.Context, businessID, userID string, role Role) error {
	res, err := s.db.ExecContext(ctx,
		`update business_members set role=$3 where business_id=$1 and user_id=$2`,
		businessID, userID, role)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotAMember
	}
	return nil
}

func (s *PGStore) OwnerCount(ctx context.Context, businessID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from business_members where business_id=$1 and role=$2`,
		businessID, RoleOwner).Scan(&n)
	return n, err
}

func (s *PGStore) DeleteBusiness(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var dependents int
	err = tx.QueryRowContext(ctx,
		`select (select count(*) from sites where business_id=$1)
		      + (select count(*) from utilities where business_id=$1)`, id).Scan(&dependents)
	if err != nil {
		return err
	}
	if dependents > 0 {
		return ErrHasDependents
	}

	for _, stmt := range []string{
		`delete from business_members where business_id=$1`,
		`delete from user_businesses where business_id=$1`,
		`delete from invites where business_id=$1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `delete from businesses where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Sites ----------------------------------------------------------------------

func (s *PGStore) CreateSite(ctx context.Context, site *Site) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertSite(ctx, tx, site); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSite(ctx context.Context, tx *sql.Tx, site *Site) error {
	if _, err := tx.ExecContext(ctx,
		`insert into sites(id, business_id, name, address) values($1,$2,$3,$4)`,
		site.ID, site.BusinessID, site.Name, site.Address); err != nil {
		return err
	}
	for i, m := range site.Members {
		if _, err := tx.ExecContext(ctx,
			`insert into site_members(site_id, user_id, role, position) values($1,$2,$3,$4)`,
			site.ID, m.UserID, m.Role, i); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`insert into user_sites(user_id, site_id) values($1,$2)
			 on conflict do nothing`,
			m.UserID, site.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PGStore) FindSite(ctx context.Context, id string) (*Site, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, business_id, name, address, created_at, updated_at from sites where id=$1`, id)
	var site Site
	if err := row.Scan(&site.ID, &site.BusinessID, &site.Name, &site.Address, &site.CreatedAt, &site.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	members, err := s.members(ctx,
		`select user_id, role from site_members where site_id=$1 order by position`, site.ID)
	if err != nil {
		return nil, err
	}
	site.Members = members
	return &site, nil
}

func (s *PGStore) SitesForUser(ctx context.Context, userID string) ([]*Site, error) {
	rows, err := s.db.QueryContext(ctx,
		`select s.id, s.business_id, s.name, s.address, s.created_at, s.updated_at
		 from sites s
		 join user_sites us on us.site_id = s.id
		 where us.user_id=$1
		 order by s.created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Site
	for rows.Next() {
		var site Site
		if err := rows.Scan(&site.ID, &site.BusinessID, &site.Name, &site.Address, &site.CreatedAt, &site.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &site)
	}
	return out, rows.Err()
}

func (s *PGStore) SiteRole(ctx context.Context, siteID, userID string) (Role, error) {
	return s.role(ctx,
		`select role from site_members where site_id=$1 and user_id=$2`,
		siteID, userID)
}

func (s *PGStore) AddSiteMember(ctx context.Context, siteID, userID string, role Role) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`insert into site_members(site_id, user_id, role, position)
		 values($1,$2,$3,(select coalesce(max(position)+1,0) from site_members where site_id=$1))
		 on conflict do nothing`,
		siteID, userID, role)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into user_sites(user_id, site_id) values($1,$2)
		 on conflict do nothing`,
		userID, siteID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Site invitations -----------------------------------------------------------

func (s *PGStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	_, err := s.db.ExecContext(ctx,
		`insert into site_invitations(id, site_id, email, role, invited_by, token, accepted)
		 values($1,$2,$3,$4,$5,$6,false)`,
		inv.ID, inv.SiteID, inv.Email, inv.Role, inv.InvitedBy, inv.Token)
	return err
}

func (s *PGStore) FindInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, site_id, email, role, invited_by, token, accepted, created_at
		 from site_invitations where token=$1`, token)
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.SiteID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.Token, &inv.Accepted, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *PGStore) AcceptInvitation(ctx context.Context, invitationID, siteID, userID string, role Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Conditional consume: a concurrent accept loses this update and fails.
	res, err := tx.ExecContext(ctx,
		`update site_invitations set accepted=true where id=$1 and accepted=false`, invitationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInviteUsed
	}
	if _, err := tx.ExecContext(ctx,
		`insert into site_members(site_id, user_id, role, position)
		 values($1,$2,$3,(select coalesce(max(position)+1,0) from site_members where site_id=$1))
		 on conflict do nothing`,
		siteID, userID, role); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into user_sites(user_id, site_id) values($1,$2)
		 on conflict do nothing`,
		userID, siteID); err != nil {
		return err
	}
	return tx.Commit()
}

// Business invites -----------------------------------------------------------

func (s *PGStore) CreateInvite(ctx context.Context, inv *Invite) error {
	_, err := s.db.ExecContext(ctx,
		`insert into invites(id, business_id, invited_user_id, inviter_id, role, token, status, expires_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		inv.ID, inv.BusinessID, inv.InvitedUserID, inv.InviterID, inv.Role, inv.Token, inv.Status, inv.ExpiresAt)
	return err
}

func (s *PGStore) FindInvite(ctx context.Context, id string) (*Invite, error) {
	return s.invite(ctx,
		`select id, business_id, invited_user_id, inviter_id, role, token, status, expires_at, accepted_at, created_at
		 from invites where id=$1`, id)
}

func (s *PGStore) FindInviteByToken(ctx context.Context, token string) (*Invite, error) {
	return s.invite(ctx,
		`select id, business_id, invited_user_id, inviter_id, role, token, status, expires_at, accepted_at, created_at
		 from invites where token=$1`, token)
}

func (s *PGStore) invite(ctx context.Context, query, arg string) (*Invite, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	var inv Invite
	err := row.Scan(&inv.ID, &inv.BusinessID, &inv.InvitedUserID, &inv.InviterID, &inv.Role, &inv.Token, &inv.Status, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *PGStore) TransitionInvite(ctx context.Context, inviteID string, from, to InviteStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update invites set status=$3 where id=$1 and status=$2`, inviteID, from, to)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGStore) AcceptInvite(ctx context.Context, inviteID, businessID, userID string, role Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`update invites set status=$2, accepted_at=now() where id=$1 and status=$3`,
		inviteID, InviteAccepted, InvitePending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInviteUsed
	}
	if _, err := tx.ExecContext(ctx,
		`insert into business_members(business_id, user_id, role, position)
		 values($1,$2,$3,(select coalesce(max(position)+1,0) from business_members where business_id=$1))
		 on conflict do nothing`,
		businessID, userID, role); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`insert into user_businesses(user_id, business_id) values($1,$2)
		 on conflict do nothing`,
		userID, businessID); err != nil {
		return err
	}
	return tx.Commit()
}

// Helpers --------------------------------------------------------------------

func (s *PGStore) members(ctx context.Context, query, id string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PGStore) role(ctx context.Context, query, scopeID, userID string) (Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx, query, scopeID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotAMember
		}
		return "", err
	}
	return role, nil
}
