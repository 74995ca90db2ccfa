package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/bridgefi/mxbridge/internal/domain/entity"
)

// RegistryRepository persists the registry aggregate: the single owner row
// and the machine table. Methods with a TX suffix participate in an external
// transaction so services can compose owner checks and mutations atomically.
//
// Absence is reported as (nil, nil), never as an error: the domain layer
// decides whether absence is a failure.
type RegistryRepository interface {
	// GetOwner returns the current owner address.
	GetOwner(ctx context.Context) (common.Address, error)

	// GetOwnerTX returns the current owner address within tx, locking the
	// owner row against concurrent administrative mutations.
	GetOwnerTX(ctx context.Context, tx pgx.Tx) (common.Address, error)

	// EnsureOwner installs owner as the registry owner only if no owner
	// exists yet (construction-time bootstrap). Idempotent.
	EnsureOwner(ctx context.Context, owner common.Address) error

	// SetOwnerTX replaces the owner atomically.
	SetOwnerTX(ctx context.Context, tx pgx.Tx, owner common.Address) error

	// GetMachine returns the machine registered under address, or nil when
	// absent.
	GetMachine(ctx context.Context, address common.Address) (*entity.Machine, error)

	// GetMachineTX is GetMachine within tx, locking the row for update.
	GetMachineTX(ctx context.Context, tx pgx.Tx, address common.Address) (*entity.Machine, error)

	// InsertMachineTX inserts a new machine. Returns
	// domain.ErrAlreadyRegistered if the identity is already present.
	InsertMachineTX(ctx context.Context, tx pgx.Tx, m entity.Machine) error

	// UpdateMachineFeesTX replaces both stored fees atomically. Returns
	// domain.ErrNotRegistered if the machine is absent.
	UpdateMachineFeesTX(ctx context.Context, tx pgx.Tx, m entity.Machine) error

	// DeleteMachineTX removes a machine if present. Absence is not an
	// error; the bool reports whether a row was removed.
	DeleteMachineTX(ctx context.Context, tx pgx.Tx, address common.Address) (bool, error)
}
