package models

import "errors"

var (
	ErrScorerUnavailable = errors.New("scorer unavailable")
	ErrInvalidStatus     = errors.New("invalid transaction status")
	ErrNegativeVolume    = errors.New("volume must not be negative")
	ErrInvalidAuthCode   = errors.New("auth code must be 2 characters")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidSeverity   = errors.New("invalid severity")
)
