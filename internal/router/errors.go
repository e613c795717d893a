package router

import "errors"

var (
	ErrInvalidPayload = errors.New("invalid message payload")
	ErrPersistFailed  = errors.New("failed to persist message")
)
