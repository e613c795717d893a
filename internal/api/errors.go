package api

import "errors"

var (
	ErrUsernameRequired = errors.New("username is required")
	ErrInvalidJSON      = errors.New("invalid JSON body")
)
