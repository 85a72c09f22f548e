package quote

import "context"

// Store persists quotes and their recipient sets.
type Store interface {
	Create(ctx context.Context, q *Quote) error
	Find(ctx context.Context, id string) (*Quote, error)
	// List returns the business's quotes, optionally filtered by status
	// (empty status means all).
	List(ctx context.Context, businessID string, status Status) ([]*Quote, error)
	// Transition moves the quote to a new status iff its current status is
	// one of from, and reports whether this call performed the move.
	Transition(ctx context.Context, id string, to Status, from ...Status) (bool, error)
	// AddRecipients unions user ids into the recipient set. Set semantics:
	// re-adding an existing recipient is a no-op.
	AddRecipients(ctx context.Context, quoteID string, userIDs []string) error
}
