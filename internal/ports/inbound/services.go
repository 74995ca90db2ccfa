// Package inbound contains the primary/inbound ports: the service interfaces
// exposed to transport adapters.
package inbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bridgefi/mxbridge/internal/domain/entity"
)

// OrderReceipt reports the outcome of an executed order.
type OrderReceipt struct {
	// Direction is the order direction.
	Direction entity.OrderDirection

	// GrossAmount is the submitted base-denominated amount.
	GrossAmount uint64

	// NetAmount is the post-fee amount forwarded to the exchange router.
	NetAmount uint64

	// AmountOut is the swap output delivered (buy flow) or escrowed and
	// forwarded (sell flow).
	AmountOut *big.Int
}

// ExchangeService executes exchange orders on behalf of registered machines.
// Both operations resolve caller against the machine registry before any
// external interaction and fail with domain.ErrUnauthorizedMachine when the
// caller is not registered.
type ExchangeService interface {
	// OrderBaseToTarget executes a buy-direction order: amount base tokens,
	// minus caller's buy fee, swapped for the target currency and delivered
	// to user. tolerance bounds acceptable slippage in FeeGranularity units.
	OrderBaseToTarget(ctx context.Context, caller common.Address, amount, tolerance uint64, user common.Address) (*OrderReceipt, error)

	// OrderTargetToBase executes a sell-direction order: amount native
	// units, minus caller's sell fee, swapped for base tokens which are
	// escrowed and then forwarded to user.
	OrderTargetToBase(ctx context.Context, caller common.Address, amount uint64, user common.Address) (*OrderReceipt, error)
}

// RegistryAdminService manages the machine registry and fee policy. Every
// mutation is owner-gated and fails with domain.ErrNotOwner for any other
// caller, leaving the registry unchanged.
type RegistryAdminService interface {
	// AddMachine registers a machine with default fees.
	AddMachine(ctx context.Context, caller, machine common.Address) (*entity.Machine, error)

	// RemoveMachine deregisters a machine; absence is a no-op.
	RemoveMachine(ctx context.Context, caller, machine common.Address) error

	// EditMachineFees replaces both fees of a registered machine.
	EditMachineFees(ctx context.Context, caller, machine common.Address, buyFee, sellFee uint64) (*entity.Machine, error)

	// TransferOwnership hands the registry to newOwner, effective
	// immediately and without an acceptance handshake.
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error

	// GetMachine returns the registered machine, or nil when absent.
	GetMachine(ctx context.Context, machine common.Address) (*entity.Machine, error)
}

// HealthChecker reports whether the service's dependencies are reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
