package quote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. Recipients live in quote_recipients
// with a composite primary key, so repeated unions are conflict-free no-ops.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, q *Quote) error {
	_, err := s.db.ExecContext(ctx,
		`insert into quotes(id, business_id, site_id, type, status, details, created_by)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		q.ID, q.BusinessID, nullable(q.SiteID), q.Type, q.Status, q.Details, q.CreatedBy)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Quote, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, business_id, site_id, type, status, details, created_by, created_at, updated_at
		 from quotes where id=$1`, id)
	q, err := scanQuote(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadRecipients(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *PGStore) List(ctx context.Context, businessID string, status Status) ([]*Quote, error) {
	query := `select id, business_id, site_id, type, status, details, created_by, created_at, updated_at
	          from quotes where business_id=$1`
	args := []any{businessID}
	if status != "" {
		query += ` and status=$2`
		args = append(args, status)
	}
	query += ` order by created_at desc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, q := range out {
		if err := s.loadRecipients(ctx, q); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PGStore) Transition(ctx context.Context, id string, to Status, from ...Status) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("quote: transition needs at least one source status")
	}
	placeholders := make([]string, len(from))
	args := []any{id, to}
	for i, st := range from {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, st)
	}
	res, err := s.db.ExecContext(ctx,
		`update quotes set status=$2, updated_at=now()
		 where id=$1 and status in (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGStore) AddRecipients(ctx context.Context, quoteID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into quote_recipients(quote_id, user_id) values($1,$2)
			 on conflict do nothing`,
			quoteID, userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) loadRecipients(ctx context.Context, q *Quote) error {
	rows, err := s.db.QueryContext(ctx,
		`select user_id from quote_recipients where quote_id=$1 order by user_id`, q.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return err
		}
		q.Recipients = append(q.Recipients, userID)
	}
	return rows.Err()
}

func scanQuote(row interface{ Scan(...any) error }) (*Quote, error) {
	var (
		q      Quote
		siteID sql.NullString
	)
	err := row.Scan(&q.ID, &q.BusinessID, &siteID, &q.Type, &q.Status, &q.Details, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	q.SiteID = siteID.String
	return &q, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
