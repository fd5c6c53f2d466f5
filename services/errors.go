package services

import "errors"

var (
	ErrMalformedRecord    = errors.New("malformed quality record")
	ErrIncompleteRecord   = errors.New("incomplete quality record")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrPropertyMissing    = errors.New("desired property missing")
	ErrPreconditionFailed = errors.New("twin modified concurrently")
	ErrInvalidRate        = errors.New("invalid production rate")
)
