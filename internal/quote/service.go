package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"utilitygrid.org/internal/identity"
	"utilitygrid.org/internal/ids"
	"utilitygrid.org/internal/membership"
	"utilitygrid.org/internal/notify"
	"utilitygrid.org/internal/obs"
)

// BusinessResolver supplies the member list the role-derived recipient group
// is computed from. The membership service satisfies this.
type BusinessResolver interface {
	FindBusiness(ctx context.Context, id string) (*membership.Business, error)
}

// Service coordinates the quote workflow.
type Service struct {
	store  Store
	biz    BusinessResolver
	users  identity.UserStore
	mailer notify.Mailer
	pusher notify.Pusher
	now    func() time.Time
}

type Option func(*Service)

// WithMailer overrides the quote mail sender.
func WithMailer(m notify.Mailer) Option {
	return func(s *Service) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithPusher overrides the push sender.
func WithPusher(p notify.Pusher) Option {
	return func(s *Service) {
		if p != nil {
			s.pusher = p
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

func NewService(store Store, biz BusinessResolver, users identity.UserStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("quote store is required")
	}
	if biz == nil {
		return nil, errors.New("business resolver is required")
	}
	if users == nil {
		return nil, errors.New("user store is required")
	}
	s := &Service{
		store:  store,
		biz:    biz,
		users:  users,
		mailer: notify.LogSender{},
		pusher: notify.LogSender{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create registers a pending quote against an existing business.
func (s *Service) Create(ctx context.Context, businessID, siteID, createdBy, details string, qtype Type) (*Quote, error) {
	if !ValidType(qtype) {
		return nil, fmt.Errorf("%w: unknown quote type %q", ErrInvalidInput, qtype)
	}
	if _, err := s.biz.FindBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	q := &Quote{
		ID:         ids.New(),
		BusinessID: businessID,
		SiteID:     strings.TrimSpace(siteID),
		Type:       qtype,
		Status:     StatusPending,
		Details:    strings.TrimSpace(details),
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Send resolves the recipient group (explicit list unioned with the
// business's owners and managers), grows the persisted recipient set, moves
// the quote to sent and notifies every recipient best-effort. Repeated sends
// are allowed and only ever add recipients.
func (s *Service) Send(ctx context.Context, quoteID string, explicit []string) (*Quote, error) {
	q, err := s.store.Find(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if q.Status != StatusPending && q.Status != StatusSent {
		return nil, ErrInvalidTransition
	}

	business, err := s.biz.FindBusiness(ctx, q.BusinessID)
	if err != nil {
		return nil, err
	}
	recipients := make(map[string]struct{})
	for _, id := range explicit {
		if id = strings.TrimSpace(id); id != "" {
			recipients[id] = struct{}{}
		}
	}
	for _, m := range business.Members {
		if m.Role == membership.RoleOwner || m.Role == membership.RoleManager {
			recipients[m.UserID] = struct{}{}
		}
	}
	userIDs := make([]string, 0, len(recipients))
	for id := range recipients {
		userIDs = append(userIDs, id)
	}

	if err := s.store.AddRecipients(ctx, q.ID, userIDs); err != nil {
		return nil, err
	}
	if _, err := s.store.Transition(ctx, q.ID, StatusSent, StatusPending, StatusSent); err != nil {
		return nil, err
	}

	users, err := s.users.FindManyByID(ctx, userIDs)
	if err == nil {
		s.notifyRecipients(ctx, q, users)
	} else {
		obs.LogRequest(map[string]any{"type": "notify_error", "quote": q.ID, "error": err.Error()})
	}

	return s.store.Find(ctx, q.ID)
}

// Respond records the business's decision on a sent quote.
func (s *Service) Respond(ctx context.Context, quoteID string, accept bool) (*Quote, error) {
	to := StatusRejected
	if accept {
		to = StatusAccepted
	}
	return s.transition(ctx, quoteID, to)
}

// Expire marks a sent quote as lapsed.
func (s *Service) Expire(ctx context.Context, quoteID string) (*Quote, error) {
	return s.transition(ctx, quoteID, StatusExpired)
}

func (s *Service) transition(ctx context.Context, quoteID string, to Status) (*Quote, error) {
	moved, err := s.store.Transition(ctx, quoteID, to, StatusSent)
	if err != nil {
		return nil, err
	}
	if !moved {
		// Distinguish a missing quote from a quote in the wrong state.
		if _, err := s.store.Find(ctx, quoteID); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}
	return s.store.Find(ctx, quoteID)
}

func (s *Service) Find(ctx context.Context, id string) (*Quote, error) {
	return s.store.Find(ctx, id)
}

// List returns the business's quotes, optionally filtered by status.
func (s *Service) List(ctx context.Context, businessID string, status Status) ([]*Quote, error) {
	if status != "" && !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.List(ctx, businessID, status)
}

// notifyRecipients delivers best-effort email and push. Delivery failures are
// logged and never fail the send.
func (s *Service) notifyRecipients(ctx context.Context, q *Quote, users []*identity.User) {
	subject := fmt.Sprintf("Quote %s is ready for review", q.ID)
	for _, u := range users {
		if err := s.mailer.SendEmail(ctx, notify.Email{
			To:      u.Email,
			Subject: subject,
			Body:    "A " + string(q.Type) + " quote is awaiting your review.",
		}); err != nil {
			obs.LogRequest(map[string]any{"type": "notify_error", "quote": q.ID, "to": u.Email, "error": err.Error()})
		}
		if len(u.PushTokens) > 0 {
			if err := s.pusher.SendPush(ctx, u.PushTokens, "Quote ready", subject); err != nil {
				obs.LogRequest(map[string]any{"type": "notify_error", "quote": q.ID, "to": u.ID, "error": err.Error()})
			}
		}
	}
}
