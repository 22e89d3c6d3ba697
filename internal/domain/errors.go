package domain

import "errors"

var (
	// ErrInsufficientFunds quote balance cannot cover amount × price
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientHoldings base balance is below the requested amount
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	// ErrDataUnavailable candle or price source could not serve the request
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInvalidOrder bad trigger price, amount, side or symbol
	ErrInvalidOrder = errors.New("invalid order")
	// ErrFeedDisconnected the price stream dropped; retried with backoff
	ErrFeedDisconnected = errors.New("feed disconnected")
	// ErrFeedUnavailable reconnect attempts exhausted, no further retries
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrPersistenceFailure snapshot could not be written or read
	ErrPersistenceFailure = errors.New("persistence failure")
)
