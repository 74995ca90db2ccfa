package memory

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

// Compile-time check that TxManager implements outbound.TxManager
var _ outbound.TxManager = (*TxManager)(nil)

// TxStore is a store whose state the TxManager can capture and roll back.
// The in-memory repositories in this package implement it.
type TxStore interface {
	snapshot() any
	restore(snap any)
}

// TxManager runs the callback with a nil pgx.Tx under a process-wide mutex.
// Before the callback it snapshots every enlisted store; a callback error or
// panic restores the snapshots, so effects applied by fn before a failure
// are rolled back the way a real transaction would roll them back.
type TxManager struct {
	mu     sync.Mutex
	stores []TxStore
}

// NewTxManager creates an in-memory transaction manager over the given
// stores. Stores left out of the list are not rolled back on failure.
func NewTxManager(stores ...TxStore) *TxManager {
	return &TxManager{stores: stores}
}

// WithTransaction executes fn serialized against other callers, restoring
// the enlisted stores when fn fails or panics.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := make([]any, len(m.stores))
	for i, s := range m.stores {
		snaps[i] = s.snapshot()
	}
	rollback := func() {
		for i := len(m.stores) - 1; i >= 0; i-- {
			m.stores[i].restore(snaps[i])
		}
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(nil); err != nil {
		rollback()
	}
	return err
}
