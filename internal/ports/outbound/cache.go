package outbound

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bridgefi/mxbridge/internal/domain/entity"
)

// MachineCache is a read-through cache in front of the machine registry,
// used on the order hot path. The repository remains the authorization
// source of truth: every registry mutation invalidates the touched entry
// synchronously, before the mutation is reported successful, so a removed
// machine can never authorize an order from stale cache state.
type MachineCache interface {
	// Get returns the cached machine and whether the key was present.
	// A cache miss is (zero, false, nil), not an error.
	Get(ctx context.Context, address common.Address) (entity.Machine, bool, error)

	// Set stores a machine entry.
	Set(ctx context.Context, m entity.Machine) error

	// Invalidate removes the entry for address. Removing an absent entry
	// is a no-op.
	Invalidate(ctx context.Context, address common.Address) error

	// Close releases the cache connection.
	Close() error
}
