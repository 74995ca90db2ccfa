// Package domain contains the pure core of the exchange bridge: the fee
// arithmetic, the machine-registry state machine, and the error taxonomy
// shared by every layer above it. Nothing in this package performs I/O.
package domain

import "errors"

// Error taxonomy. All of these abort the enclosing operation; callers
// classify with errors.Is. Adapters wrap them with context via fmt.Errorf
// and %w.
var (
	// ErrNotOwner is returned when a caller other than the current owner
	// attempts an administrative operation.
	ErrNotOwner = errors.New("caller is not the registry owner")

	// ErrUnauthorizedMachine is returned when an order is submitted by an
	// identity absent from the machine registry.
	ErrUnauthorizedMachine = errors.New("caller is not a registered machine")

	// ErrAlreadyRegistered is returned when adding a machine that is
	// already present in the registry.
	ErrAlreadyRegistered = errors.New("machine already registered")

	// ErrNotRegistered is returned when editing fees for a machine absent
	// from the registry.
	ErrNotRegistered = errors.New("machine not registered")

	// ErrFeeOutOfRange is returned when a fee or tolerance is not strictly
	// below FeeGranularity.
	ErrFeeOutOfRange = errors.New("fee out of range")

	// ErrArithmeticOverflow is returned when fee arithmetic would exceed
	// the 64-bit width instead of silently wrapping.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidOrder is returned when an order request fails validation
	// before any authorization or external interaction.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrRouterFailure wraps any failure reported by the external exchange
	// router. The underlying cause is propagated without interpretation.
	ErrRouterFailure = errors.New("exchange router failure")
)
