package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores,
// the progression engine and the API surfaces.
// -----------------------------------------------------------------------------

// Layout errors
var (
	ErrInvalidLayout     = errors.New("invalid level layout")
	ErrInvalidLevelGroup = errors.New("invalid level group")
)

// Store errors
var (
	ErrRemoteUnavailable = errors.New("remote progress store unavailable")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrCacheCorrupt      = errors.New("cached progress is malformed")
)

// General errors
var (
	ErrInvalidInput = errors.New("invalid input")
)
