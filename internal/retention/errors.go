package retention

import "errors"

var (
	ErrAlreadyRunning = errors.New("retention sweeper already running")
	ErrNotRunning     = errors.New("retention sweeper not running")
)
