package domain

import "errors"

var (
	ErrNotFound            = errors.New("payment not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrDuplicateBill       = errors.New("payment already registered for this QR")
	ErrProviderUnavailable = errors.New("settlement provider unavailable")
	ErrTerminalStatus      = errors.New("payment already in a terminal status")
)
