package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"utilitygrid.org/internal/identity"
	"utilitygrid.org/internal/ids"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims are the signed access/refresh token contents: the user identity and
// global role every authorization decision starts from.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues, validates and rotates token pairs. Access and refresh
// tokens are signed with two independent secrets injected at construction;
// refresh tokens are additionally persisted server-side so they can be
// revoked before their signature expires.
type Service struct {
	store RefreshTokenStore
	users identity.UserStore

	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
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

// NewService constructs the token service. Both signing secrets are required
// and must differ; missing secrets are a fatal configuration condition.
func NewService(store RefreshTokenStore, users identity.UserStore, accessSecret, refreshSecret string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("refresh token store is required")
	}
	if users == nil {
		return nil, errors.New("user store is required")
	}
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("both access and refresh signing secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	s := &Service{
		store:         store,
		users:         users,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        "utilitygrid",
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueTokenPair signs a fresh access/refresh pair for the user and persists
// the refresh record with is_valid=true.
func (s *Service) IssueTokenPair(ctx context.Context, userID, role string) (TokenPair, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return TokenPair{}, errors.New("userID is required")
	}
	now := s.now().UTC()

	accessExp := now.Add(s.accessTTL)
	access, err := s.sign(userID, role, now, accessExp, s.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshExp := now.Add(s.refreshTTL)
	refresh, err := s.sign(userID, role, now, refreshExp, s.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	rec := &RefreshToken{
		ID:        ids.New(),
		UserID:    userID,
		Token:     refresh,
		ExpiresAt: refreshExp,
		IsValid:   true,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccessToken verifies signature and expiry of an access token.
// Expired signatures surface as ErrTokenExpired, everything else as
// ErrInvalidToken.
func (s *Service) ValidateAccessToken(raw string) (Claims, error) {
	return s.parse(raw, s.accessSecret)
}

// RotateAccessToken exchanges a still-valid refresh token for a new access
// token. The persisted record is checked first: a missing record fails
// NotFound, a revoked one Revoked, and an expired one is flipped to
// is_valid=false before failing Expired (lazy cleanup on detection). Only
// then is the signature re-verified; both gates must pass. The refresh token
// itself is never rotated.
func (s *Service) RotateAccessToken(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidToken
	}

	rec, err := s.store.FindByToken(ctx, raw)
	if err != nil {
		return "", err
	}
	if !rec.IsValid {
		return "", ErrRefreshRevoked
	}
	if s.now().After(rec.ExpiresAt) {
		// Conditional flip: a concurrent rotation may already have done it.
		if _, err := s.store.Invalidate(ctx, rec.ID); err != nil {
			return "", err
		}
		return "", ErrRefreshExpired
	}

	claims, err := s.parse(raw, s.refreshSecret)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	access, err := s.sign(claims.UserID, claims.Role, now, now.Add(s.accessTTL), s.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return access, nil
}

// Revoke marks the refresh token invalid. Idempotent: revoking an unknown or
// already-revoked token succeeds, so logout never leaks token existence.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return s.store.InvalidateByToken(ctx, raw)
}

// Login authenticates credentials against the credential store and issues a
// token pair together with the account. Lookup misses and bad passwords
// collapse into identity.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *identity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, identity.ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return TokenPair{}, nil, identity.ErrInvalidCredentials
		}
		return TokenPair{}, nil, err
	}
	if user.Status != identity.StatusActive {
		return TokenPair{}, nil, identity.ErrInvalidCredentials
	}
	if err := identity.VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, identity.ErrInvalidCredentials
	}
	pair, err := s.IssueTokenPair(ctx, user.ID, string(user.Role))
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

func (s *Service) sign(userID, role string, now, exp time.Time, secret []byte) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (s *Service) parse(raw string, secret []byte) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Issuer != s.issuer || strings.TrimSpace(claims.UserID) == "" {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
