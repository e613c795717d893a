package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrBufferFull       = errors.New("write buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)
