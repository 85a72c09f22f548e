package utility

import (
	"context"
	"database/sql"
	"errors"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. The utilities table carries a CHECK
// that at least one of site_id/business_id is set; the owner back-reference
// rows are written in the same transaction as the insert.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const utilityColumns = `id, site_id, business_id, type, supplier, identifier, contract_start, contract_end, status, created_at, updated_at`

func scanUtility(row interface{ Scan(...any) error }) (*Utility, error) {
	var (
		u      Utility
		siteID sql.NullString
		bizID  sql.NullString
		start  sql.NullTime
		end    sql.NullTime
	)
	err := row.Scan(&u.ID, &siteID, &bizID, &u.Type, &u.Supplier, &u.Identifier, &start, &end, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.SiteID = siteID.String
	u.BusinessID = bizID.String
	if start.Valid {
		u.ContractStart = &start.Time
	}
	if end.Valid {
		u.ContractEnd = &end.Time
	}
	return &u, nil
}

func (s *PGStore) Create(ctx context.Context, u *Utility) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into utilities(id, site_id, business_id, type, supplier, identifier, contract_start, contract_end, status)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, nullable(u.SiteID), nullable(u.BusinessID), u.Type, u.Supplier, u.Identifier, u.ContractStart, u.ContractEnd, u.Status); err != nil {
		return err
	}
	if u.BusinessID != "" {
		if _, err := tx.ExecContext(ctx,
			`insert into business_utilities(business_id, utility_id) values($1,$2)
			 on conflict do nothing`,
			u.BusinessID, u.ID); err != nil {
			return err
		}
	}
	if u.SiteID != "" {
		if _, err := tx.ExecContext(ctx,
			`insert into site_utilities(site_id, utility_id) values($1,$2)
			 on conflict do nothing`,
			u.SiteID, u.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) Find(ctx context.Context, id string) (*Utility, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+utilityColumns+` from utilities where id=$1`, id)
	return scanUtility(row)
}

func (s *PGStore) ListForBusiness(ctx context.Context, businessID string) ([]*Utility, error) {
	return s.list(ctx,
		`select `+utilityColumns+` from utilities where business_id=$1 order by created_at`, businessID)
}

func (s *PGStore) ListForSite(ctx context.Context, siteID string) ([]*Utility, error) {
	return s.list(ctx,
		`select `+utilityColumns+` from utilities where site_id=$1 order by created_at`, siteID)
}

func (s *PGStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`update utilities set status=$2, updated_at=now() where id=$1`, id, status)
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
	return nil
}

func (s *PGStore) list(ctx context.Context, query, id string) ([]*Utility, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Utility
	for rows.Next() {
		u, err := scanUtility(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
