package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/bridgefi/mxbridge/internal/adapters/outbound/memory"
	"github.com/bridgefi/mxbridge/internal/domain"
	"github.com/bridgefi/mxbridge/internal/domain/entity"
	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

var (
	ownerAddr    = common.HexToAddress("0xaa00000000000000000000000000000000000001")
	newOwnerAddr = common.HexToAddress("0xaa00000000000000000000000000000000000002")
	machineAddr  = common.HexToAddress("0xbb00000000000000000000000000000000000001")
	strangerAddr = common.HexToAddress("0xcc00000000000000000000000000000000000001")
)

type fixture struct {
	svc    *Service
	repo   *memory.RegistryRepository
	cache  *memory.MachineCache
	events *memory.EventSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   memory.NewRegistryRepository(),
		cache:  memory.NewMachineCache(),
		events: memory.NewEventSink(),
	}
	if err := f.repo.EnsureOwner(context.Background(), ownerAddr); err != nil {
		t.Fatalf("EnsureOwner: %v", err)
	}
	svc, err := NewService(Config{}, f.repo, memory.NewTxManager(f.repo), f.cache, f.events, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(Config{}, nil, memory.NewTxManager(), nil, nil, nil); err == nil {
		t.Error("expected error for nil repository")
	}
	if _, err := NewService(Config{}, memory.NewRegistryRepository(), nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil transaction manager")
	}
}

func TestAddMachineOwnerOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddMachine(context.Background(), strangerAddr, machineAddr)
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	if n := f.repo.MachineCount(); n != 0 {
		t.Errorf("rejected add mutated the registry: %d machines", n)
	}

	added, err := f.svc.AddMachine(context.Background(), ownerAddr, machineAddr)
	if err != nil {
		t.Fatalf("owner add: %v", err)
	}
	if added.BuyFee != entity.FeeDefault || added.SellFee != entity.FeeDefault {
		t.Errorf("fees = %d/%d, want defaults", added.BuyFee, added.SellFee)
	}
}

func TestAddMachineDuplicate(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.AddMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err := f.svc.AddMachine(context.Background(), ownerAddr, machineAddr)
	if !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Fatalf("want ErrAlreadyRegistered, got %v", err)
	}

	// The original registration and its fees survive.
	m, err := f.svc.GetMachine(context.Background(), machineAddr)
	if err != nil || m == nil {
		t.Fatalf("GetMachine: m=%v err=%v", m, err)
	}
	if m.BuyFee != entity.FeeDefault {
		t.Errorf("buy fee = %d, want default", m.BuyFee)
	}
}

func TestRemoveMachineIdempotent(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.AddMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.svc.RemoveMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	// Removing an absent machine succeeds without error.
	if err := f.svc.RemoveMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if n := f.repo.MachineCount(); n != 0 {
		t.Errorf("machines remaining: %d", n)
	}

	// Only the first removal is worth announcing.
	if got := len(f.events.EventsByType(outbound.EventTypeMachineRemoved)); got != 1 {
		t.Errorf("removal events = %d, want 1", got)
	}
}

func TestRemoveMachineOwnerOnly(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.AddMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := f.svc.RemoveMachine(context.Background(), strangerAddr, machineAddr); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	if f.repo.MachineCount() != 1 {
		t.Error("rejected remove mutated the registry")
	}
}

func TestEditMachineFees(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.AddMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("add: %v", err)
	}

	tests := []struct {
		name              string
		caller            common.Address
		buyFee, sellFee   uint64
		wantErr           error
		wantBuy, wantSell uint64 // persisted fees after the call
	}{
		{"owner edits", ownerAddr, 250, 0, nil, 250, 0},
		{"non-owner rejected", strangerAddr, 1, 1, domain.ErrNotOwner, 250, 0},
		{"buy fee at granularity", ownerAddr, entity.FeeGranularity, 0, domain.ErrFeeOutOfRange, 250, 0},
		{"sell fee above granularity", ownerAddr, 0, entity.FeeGranularity + 1, domain.ErrFeeOutOfRange, 250, 0},
		{"boundary fees accepted", ownerAddr, entity.FeeGranularity - 1, entity.FeeGranularity - 1, nil, entity.FeeGranularity - 1, entity.FeeGranularity - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.EditMachineFees(context.Background(), tt.caller, machineAddr, tt.buyFee, tt.sellFee)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
			m, gerr := f.svc.GetMachine(context.Background(), machineAddr)
			if gerr != nil || m == nil {
				t.Fatalf("GetMachine: m=%v err=%v", m, gerr)
			}
			if m.BuyFee != tt.wantBuy || m.SellFee != tt.wantSell {
				t.Errorf("persisted fees = %d/%d, want %d/%d", m.BuyFee, m.SellFee, tt.wantBuy, tt.wantSell)
			}
		})
	}
}

func TestEditMachineFeesUnregistered(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.EditMachineFees(context.Background(), ownerAddr, machineAddr, 1, 1)
	if !errors.Is(err, domain.ErrNotRegistered) {
		t.Fatalf("want ErrNotRegistered, got %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.TransferOwnership(context.Background(), strangerAddr, newOwnerAddr); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	if err := f.svc.TransferOwnership(context.Background(), ownerAddr, common.Address{}); err == nil {
		t.Fatal("zero-address transfer accepted")
	}
	if err := f.svc.TransferOwnership(context.Background(), ownerAddr, newOwnerAddr); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// The previous owner is now an ordinary caller; the new owner holds the
	// full administrative surface.
	if _, err := f.svc.AddMachine(context.Background(), ownerAddr, machineAddr); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("old owner still accepted: %v", err)
	}
	if _, err := f.svc.AddMachine(context.Background(), newOwnerAddr, machineAddr); err != nil {
		t.Fatalf("new owner rejected: %v", err)
	}
}

func TestMutationsInvalidateCache(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.AddMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("add: %v", err)
	}
	m, _ := f.svc.GetMachine(context.Background(), machineAddr)
	if err := f.cache.Set(context.Background(), *m); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	if _, err := f.svc.EditMachineFees(context.Background(), ownerAddr, machineAddr, 50, 50); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if f.cache.Contains(machineAddr) {
		t.Error("fee edit left a stale cache entry")
	}

	if err := f.cache.Set(context.Background(), *m); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := f.svc.RemoveMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if f.cache.Contains(machineAddr) {
		t.Error("removal left a stale cache entry")
	}
}

// spyTxManager flags when the wrapped transaction callback is running so a
// cache stub can tell in-transaction invalidations from post-commit ones.
type spyTxManager struct {
	inner *memory.TxManager
	inTx  bool
}

func (s *spyTxManager) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.inTx = true
	defer func() { s.inTx = false }()
	return s.inner.WithTransaction(ctx, fn)
}

// racingCache simulates a concurrent authorization: every invalidation that
// happens while the mutation's transaction is still open is immediately
// followed by a re-population with the pre-mutation machine, the way a
// cache-missing reader re-populates from the not-yet-committed row.
type racingCache struct {
	*memory.MachineCache
	txm   *spyTxManager
	stale entity.Machine
}

func (c *racingCache) Invalidate(ctx context.Context, address common.Address) error {
	if err := c.MachineCache.Invalidate(ctx, address); err != nil {
		return err
	}
	if c.txm.inTx {
		return c.MachineCache.Set(ctx, c.stale)
	}
	return nil
}

// A reader that re-populates the cache between the in-transaction
// invalidation and the commit must not leave a deregistered machine
// authorized: mutations invalidate again once the transaction has committed.
func TestCacheInvalidatedAfterCommit(t *testing.T) {
	repo := memory.NewRegistryRepository()
	if err := repo.EnsureOwner(context.Background(), ownerAddr); err != nil {
		t.Fatalf("EnsureOwner: %v", err)
	}
	stale, err := entity.NewMachine(machineAddr, entity.FeeDefault, entity.FeeDefault)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	txm := &spyTxManager{inner: memory.NewTxManager(repo)}
	cache := &racingCache{MachineCache: memory.NewMachineCache(), txm: txm, stale: *stale}
	svc, err := NewService(Config{}, repo, txm, cache, nil, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.AddMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.RemoveMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if cache.Contains(machineAddr) {
		t.Error("deregistered machine survived in the cache past the commit")
	}

	if _, err := svc.AddMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if _, err := svc.EditMachineFees(context.Background(), ownerAddr, machineAddr, 50, 50); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if cache.Contains(machineAddr) {
		t.Error("fee edit left the pre-edit machine in the cache past the commit")
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.AddMachine(context.Background(), ownerAddr, machineAddr); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := f.svc.EditMachineFees(context.Background(), ownerAddr, machineAddr, 10, 20); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := f.svc.TransferOwnership(context.Background(), ownerAddr, newOwnerAddr); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	for _, et := range []outbound.EventType{
		outbound.EventTypeMachineAdded,
		outbound.EventTypeMachineFeesUpdated,
		outbound.EventTypeOwnershipTransferred,
	} {
		if got := len(f.events.EventsByType(et)); got != 1 {
			t.Errorf("%s events = %d, want 1", et, got)
		}
	}

	// Rejected mutations publish nothing.
	before := len(f.events.Events())
	if _, err := f.svc.AddMachine(context.Background(), strangerAddr, machineAddr); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	if got := len(f.events.Events()); got != before {
		t.Errorf("rejected mutation published %d events", got-before)
	}
}
