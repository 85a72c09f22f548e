package token

import (
	"context"
	"database/sql"
	"errors"
)

var _ RefreshTokenStore = (*PGStore)(nil)

// PGStore implements RefreshTokenStore using PostgreSQL. Expired rows are
// additionally garbage-collected by a scheduled delete in the migration
// schema; the service-level lazy invalidation does not depend on it.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token, expires_at, is_valid)
		 values($1,$2,$3,$4,$5)`,
		tok.ID, tok.UserID, tok.Token, tok.ExpiresAt, tok.IsValid)
	return err
}

func (s *PGStore) FindByToken(ctx context.Context, raw string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token, expires_at, is_valid, created_at
		 from refresh_tokens where token=$1`, raw)
	var tok RefreshToken
	err := row.Scan(&tok.ID, &tok.UserID, &tok.Token, &tok.ExpiresAt, &tok.IsValid, &tok.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshNotFound
		}
		return nil, err
	}
	return &tok, nil
}

func (s *PGStore) Invalidate(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set is_valid=false where id=$1 and is_valid=true`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGStore) InvalidateByToken(ctx context.Context, raw string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set is_valid=false where token=$1`, raw)
	return err
}
