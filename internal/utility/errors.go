package utility

import "errors"

var (
	ErrNotFound     = errors.New("utility: not found")
	ErrInvalidInput = errors.New("utility: invalid input")
)
