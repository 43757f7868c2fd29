package domain

import "errors"

var (
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrInvalidSnapshot    = errors.New("invalid snapshot name")
	ErrMalformedAlert     = errors.New("malformed alert")
	ErrInvalidCIDR        = errors.New("invalid isolation range")
	ErrNoHoneypots        = errors.New("no honeypot names configured")
	ErrEmptySample        = errors.New("empty sample")
	ErrInvalidSignature   = errors.New("invalid offender signature")
	ErrProtectedPathUnset = errors.New("protected path not set")
)
