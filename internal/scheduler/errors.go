package scheduler

import "errors"

var (
	// ErrConfigParse is a malformed HH:MM value. Stored values fall back to the
	// default; values submitted through Reschedule are rejected.
	ErrConfigParse = errors.New("invalid HH:MM time")

	// ErrStoreUnavailable means schedule configuration could not be read.
	ErrStoreUnavailable = errors.New("store unavailable")
)
