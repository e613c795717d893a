package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// without leaking validator internals to callers
var (
	ErrInvalidRegistration = errors.New("registration requires a non-empty id")
	ErrInvalidMessage      = errors.New("message requires sender, receiver and a body of at most 65536 characters")
	ErrInvalidUsername     = errors.New("username must be 1-200 characters")
)
