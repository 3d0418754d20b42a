package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrLockHeld            = errors.New("lock already held")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNoData              = errors.New("no data returned")
	ErrStaleSnapshot       = errors.New("market snapshot is stale")
	ErrStaleRate           = errors.New("subscription rate is stale")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCollateralExhausted = errors.New("all collateral candidates exhausted")
	ErrBelowMinQuantity    = errors.New("quantity below exchange minimum")
	ErrCapsReached         = errors.New("position caps reached")
)
