package membership

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("membership: not found")
	ErrNotAMember   = errors.New("membership: not a member")
	ErrInvalidInput = errors.New("membership: invalid input")

	// ErrLastOwner guards role updates: a business must keep at least one
	// owner at all times.
	ErrLastOwner = errors.New("membership: business must keep at least one owner")

	// ErrHasDependents is the orphan-and-reject deletion policy: a business
	// with sites or utilities cannot be deleted until they are removed.
	ErrHasDependents = errors.New("membership: business has dependent resources")

	ErrInviteExpired = errors.New("membership: invite expired")
	ErrInviteUsed    = errors.New("membership: invite already consumed")
)

// MissingUsersError reports exactly which member ids failed batch resolution
// against the credential store.
type MissingUsersError struct {
	IDs []string
}

func (e *MissingUsersError) Error() string {
	return fmt.Sprintf("membership: users not found: %s", strings.Join(e.IDs, ", "))
}
