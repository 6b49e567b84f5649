package engine

import "errors"

var (
	ErrInsufficientPayment = errors.New("engine: payment below effective price")
	ErrInvalidIndex        = errors.New("engine: listing index out of range")
	ErrInactiveListing     = errors.New("engine: listing is inactive")
	ErrSelfEngagement      = errors.New("engine: creator cannot engage own listing")
	ErrTooSoon             = errors.New("engine: weekly interval has not elapsed")
	ErrUnauthorized        = errors.New("engine: actor is not authorized")
	ErrPaused              = errors.New("engine: engine is paused")
	ErrClaimThreshold      = errors.New("engine: balance or level below claim threshold")

	// ErrExternalTransferFailed wraps a ledger rejection; the enclosing
	// command rolls back in full.
	ErrExternalTransferFailed = errors.New("engine: value transfer failed")
)
