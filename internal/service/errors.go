package service

import "errors"

var (
	// ErrInvalidAmount is returned when an amount is missing, zero or negative.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnknownTransaction is returned when no intent exists for a transaction ID.
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrInvalidCallback is returned when a gateway callback is missing required fields.
	ErrInvalidCallback = errors.New("invalid callback")

	// ErrRaceCondition is returned when a transition keeps losing compare-and-swap races.
	ErrRaceCondition = errors.New("concurrent update, retry later")

	// ErrTransport is returned when the gateway could not be reached or answered with an error.
	ErrTransport = errors.New("gateway transport error")

	// ErrAmountMismatch is returned when the gateway amount differs from the stored amount.
	ErrAmountMismatch = errors.New("amount mismatch")

	// ErrCallbackPending is returned when verifying an intent that has not received a success callback.
	ErrCallbackPending = errors.New("payment callback not received yet")

	// ErrNotStale is returned when expiring an intent that is still within its timeout window.
	ErrNotStale = errors.New("payment intent has not timed out")

	// ErrInvalidCart is returned when a cart payload is malformed.
	ErrInvalidCart = errors.New("invalid cart data")
)
