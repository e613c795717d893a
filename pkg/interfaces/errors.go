package interfaces

import "errors"

// Common store errors used across backends
var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrIdentityExists   = errors.New("identity already exists")
	ErrMessageNotFound  = errors.New("message not found")
	ErrStoreClosed      = errors.New("store is closed")
)
