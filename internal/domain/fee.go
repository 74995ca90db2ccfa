package domain

import (
	"math/bits"

	"github.com/bridgefi/mxbridge/internal/domain/entity"
)

// NetAmount returns amount - floor(amount * fee / FeeGranularity): the
// post-fee amount actually forwarded to the external exchange.
//
// The caller is responsible for fee < FeeGranularity; registry invariants
// guarantee it for stored machines. The product amount * fee is computed
// with a widening multiply, and any product exceeding 64 bits is rejected
// with ErrArithmeticOverflow rather than wrapped.
func NetAmount(amount, fee uint64) (uint64, error) {
	if fee == 0 {
		return amount, nil
	}
	hi, lo := bits.Mul64(amount, fee)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return amount - lo/entity.FeeGranularity, nil
}
