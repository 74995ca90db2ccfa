package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// OrderDirection identifies which way an exchange order converts.
type OrderDirection string

const (
	// BaseToTarget converts the base (fiat-pegged) token into the target
	// currency ("buy" from the end user's perspective).
	BaseToTarget OrderDirection = "base_to_target"

	// TargetToBase converts the target currency into the base token
	// ("sell" from the end user's perspective).
	TargetToBase OrderDirection = "target_to_base"
)

// OrderRequest is a transient value describing a single exchange order
// submitted by a registered machine on behalf of an end user. It is
// constructed per call and discarded after execution or failure.
type OrderRequest struct {
	Direction OrderDirection

	// Amount is the gross base-denominated amount, in the token's smallest
	// unit, before the machine fee is deducted.
	Amount uint64

	// Tolerance is the slippage bound in FeeGranularity units: the minimum
	// acceptable swap output is quote * (FeeGranularity - Tolerance) /
	// FeeGranularity.
	Tolerance uint64

	// User is the end user receiving the proceeds of the order.
	User common.Address
}

// NewOrderRequest creates an OrderRequest with validation.
func NewOrderRequest(direction OrderDirection, amount, tolerance uint64, user common.Address) (*OrderRequest, error) {
	o := &OrderRequest{
		Direction: direction,
		Amount:    amount,
		Tolerance: tolerance,
		User:      user,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks that all fields have valid values.
func (o *OrderRequest) Validate() error {
	switch o.Direction {
	case BaseToTarget, TargetToBase:
	default:
		return fmt.Errorf("unknown order direction: %q", o.Direction)
	}
	if o.Amount == 0 {
		return fmt.Errorf("order amount must be positive")
	}
	if o.Tolerance >= FeeGranularity {
		return fmt.Errorf("tolerance out of range: %d >= %d", o.Tolerance, FeeGranularity)
	}
	if o.User == (common.Address{}) {
		return fmt.Errorf("user must not be the zero address")
	}
	return nil
}
