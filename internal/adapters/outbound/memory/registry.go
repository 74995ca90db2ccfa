// Package memory provides in-memory implementations of the outbound ports
// for tests and local development. All adapters are thread-safe. For
// production, use the postgres, redis and sns adapters.
package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/bridgefi/mxbridge/internal/domain"
	"github.com/bridgefi/mxbridge/internal/domain/entity"
	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

// Compile-time check that RegistryRepository implements the port
var _ outbound.RegistryRepository = (*RegistryRepository)(nil)

// RegistryRepository is an in-memory registry store. The pgx.Tx parameters
// of the TX methods are ignored; atomicity is approximated with a single
// mutex, which is sufficient for tests.
type RegistryRepository struct {
	mu       sync.RWMutex
	owner    common.Address
	hasOwner bool
	machines map[common.Address]entity.Machine
}

// NewRegistryRepository creates an empty in-memory registry.
func NewRegistryRepository() *RegistryRepository {
	return &RegistryRepository{
		machines: make(map[common.Address]entity.Machine),
	}
}

// GetOwner returns the current owner address.
func (r *RegistryRepository) GetOwner(ctx context.Context) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner, nil
}

// GetOwnerTX returns the current owner address. The tx is ignored.
func (r *RegistryRepository) GetOwnerTX(ctx context.Context, _ pgx.Tx) (common.Address, error) {
	return r.GetOwner(ctx)
}

// EnsureOwner installs owner only if no owner exists yet.
func (r *RegistryRepository) EnsureOwner(ctx context.Context, owner common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasOwner {
		r.owner = owner
		r.hasOwner = true
	}
	return nil
}

// SetOwnerTX replaces the owner.
func (r *RegistryRepository) SetOwnerTX(ctx context.Context, _ pgx.Tx, owner common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner = owner
	r.hasOwner = true
	return nil
}

// GetMachine returns the machine registered under address, or nil.
func (r *RegistryRepository) GetMachine(ctx context.Context, address common.Address) (*entity.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.machines[address]; ok {
		copied := m
		return &copied, nil
	}
	return nil, nil
}

// GetMachineTX is GetMachine; the tx is ignored.
func (r *RegistryRepository) GetMachineTX(ctx context.Context, _ pgx.Tx, address common.Address) (*entity.Machine, error) {
	return r.GetMachine(ctx, address)
}

// InsertMachineTX inserts a new machine.
func (r *RegistryRepository) InsertMachineTX(ctx context.Context, _ pgx.Tx, m entity.Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.machines[m.Address]; ok {
		return domain.ErrAlreadyRegistered
	}
	r.machines[m.Address] = m
	return nil
}

// UpdateMachineFeesTX replaces both stored fees.
func (r *RegistryRepository) UpdateMachineFeesTX(ctx context.Context, _ pgx.Tx, m entity.Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.machines[m.Address]; !ok {
		return domain.ErrNotRegistered
	}
	r.machines[m.Address] = m
	return nil
}

// DeleteMachineTX removes a machine if present.
func (r *RegistryRepository) DeleteMachineTX(ctx context.Context, _ pgx.Tx, address common.Address) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.machines[address]; !ok {
		return false, nil
	}
	delete(r.machines, address)
	return true, nil
}

type registrySnapshot struct {
	owner    common.Address
	hasOwner bool
	machines map[common.Address]entity.Machine
}

func (r *RegistryRepository) snapshot() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := make(map[common.Address]entity.Machine, len(r.machines))
	for k, v := range r.machines {
		copied[k] = v
	}
	return registrySnapshot{owner: r.owner, hasOwner: r.hasOwner, machines: copied}
}

func (r *RegistryRepository) restore(snap any) {
	s := snap.(registrySnapshot)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner = s.owner
	r.hasOwner = s.hasOwner
	r.machines = s.machines
}

// MachineCount returns the number of registered machines (test helper).
func (r *RegistryRepository) MachineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}
