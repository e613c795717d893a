package identity

import "errors"

var (
	ErrInvalidName = errors.New("identity name must be 1-200 characters")
)
