package quote

import "errors"

var (
	ErrNotFound     = errors.New("quote: not found")
	ErrInvalidInput = errors.New("quote: invalid input")
	// ErrInvalidTransition is any move the workflow machine does not allow,
	// e.g. responding to a quote that was never sent.
	ErrInvalidTransition = errors.New("quote: invalid status transition")
)
