package sip

import "errors"

var (
	ErrNotStarted     = errors.New("sip is not initialized")
	ErrAccountExists  = errors.New("account already exists")
	ErrInvalidAccount = errors.New("invalid account data")
	ErrAccountAdd     = errors.New("error adding account")
	ErrNoTransport    = errors.New("no transport available")
	ErrStunTooLong    = errors.New("stun server string too long")
	ErrInvalidCall    = errors.New("invalid call")
	ErrURITooLong     = errors.New("url too long")
)

// Registration sentinels returned next to the errors above.
const (
	RegNotStarted     = -1
	RegAccountExists  = -2
	RegInvalidAccount = -3
	RegAccountAdd     = -4
)

// Field limits of the engine account configuration buffers.
const (
	maxIDLen    = 149
	maxFieldLen = 99
	maxURILen   = 149
)
