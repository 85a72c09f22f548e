package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// PGStore bundles the PostgreSQL-backed identity stores.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore { return &pgUserStore{db: s.db} }
func (s *PGStore) OTPs() OTPStore   { return &pgOTPStore{db: s.db} }

var (
	_ UserStore = (*pgUserStore)(nil)
	_ OTPStore  = (*pgOTPStore)(nil)
)

// User store ----------------------------------------------------------------

type pgUserStore struct{ db *sql.DB }

const userColumns = `id, email, password_hash, first_name, last_name, role, status, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, first_name, last_name, role, status)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.Status,
	)
	if err != nil && strings.Contains(err.Error(), "users_email_key") {
		return ErrEmailTaken
	}
	return err
}

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadPushTokens(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *pgUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadPushTokens(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *pgUserStore) FindManyByID(ctx context.Context, userIDs []string) ([]*User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(userIDs))
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where id in (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *pgUserStore) UpdateProfile(ctx context.Context, id, firstName, lastName string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set first_name=$2, last_name=$3, updated_at=now() where id=$1`,
		id, firstName, lastName)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *pgUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`,
		id, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *pgUserStore) AddPushToken(ctx context.Context, id, token string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into user_push_tokens(user_id, token) values($1,$2)
		 on conflict (user_id, token) do nothing`,
		id, token)
	return err
}

// Delete removes the user together with their memberships, back-references
// and refresh tokens in one transaction. Businesses and sites the user
// belonged to are left untouched.
func (s *pgUserStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`delete from business_members where user_id=$1`,
		`delete from site_members where user_id=$1`,
		`delete from user_businesses where user_id=$1`,
		`delete from user_sites where user_id=$1`,
		`delete from refresh_tokens where user_id=$1`,
		`delete from user_push_tokens where user_id=$1`,
		`delete from otps where user_id=$1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *pgUserStore) loadPushTokens(ctx context.Context, u *User) error {
	rows, err := s.db.QueryContext(ctx,
		`select token from user_push_tokens where user_id=$1 order by token`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return err
		}
		u.PushTokens = append(u.PushTokens, token)
	}
	return rows.Err()
}

// OTP store -----------------------------------------------------------------

type pgOTPStore struct{ db *sql.DB }

func (s *pgOTPStore) Create(ctx context.Context, otp *OTP) error {
	_, err := s.db.ExecContext(ctx,
		`insert into otps(code, user_id, expires_at, medium, type, used)
		 values($1,$2,$3,$4,$5,$6)`,
		otp.Code, otp.UserID, otp.ExpiresAt, otp.Medium, otp.Type, otp.Used)
	return err
}

func (s *pgOTPStore) Find(ctx context.Context, userID, code, otpType string) (*OTP, error) {
	row := s.db.QueryRowContext(ctx,
		`select code, user_id, expires_at, medium, type, used, created_at
		 from otps where user_id=$1 and code=$2 and type=$3 and used=false`,
		userID, code, otpType)
	var otp OTP
	err := row.Scan(&otp.Code, &otp.UserID, &otp.ExpiresAt, &otp.Medium, &otp.Type, &otp.Used, &otp.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, err
	}
	return &otp, nil
}

func (s *pgOTPStore) Delete(ctx context.Context, userID, code string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from otps where user_id=$1 and code=$2`, userID, code)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
