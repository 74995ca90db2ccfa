package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bridgefi/mxbridge/internal/domain/entity"
	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

// Compile-time check that MachineCache implements the port
var _ outbound.MachineCache = (*MachineCache)(nil)

// MachineCache is an in-memory machine lookup cache for tests.
type MachineCache struct {
	mu      sync.RWMutex
	entries map[common.Address]entity.Machine
}

// NewMachineCache creates an empty in-memory cache.
func NewMachineCache() *MachineCache {
	return &MachineCache{
		entries: make(map[common.Address]entity.Machine),
	}
}

// Get returns the cached machine and whether the key was present.
func (c *MachineCache) Get(ctx context.Context, address common.Address) (entity.Machine, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[address]
	return m, ok, nil
}

// Set stores a machine entry.
func (c *MachineCache) Set(ctx context.Context, m entity.Machine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[m.Address] = m
	return nil
}

// Invalidate removes the entry for address.
func (c *MachineCache) Invalidate(ctx context.Context, address common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, address)
	return nil
}

// Close is a no-op.
func (c *MachineCache) Close() error { return nil }

// Contains reports whether an entry exists (test helper).
func (c *MachineCache) Contains(address common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[address]
	return ok
}
