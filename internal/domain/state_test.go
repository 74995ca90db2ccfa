package domain

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bridgefi/mxbridge/internal/domain/entity"
)

var (
	owner    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	machineA = common.HexToAddress("0x2222222222222222222222222222222222222222")
	machineB = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestRequireOwner(t *testing.T) {
	s := NewState(owner)

	if err := s.RequireOwner(owner); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	if err := s.RequireOwner(machineA); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
}

func TestAddMachine(t *testing.T) {
	s := NewState(owner)

	m, err := s.AddMachine(machineA)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if m.BuyFee != entity.FeeDefault || m.SellFee != entity.FeeDefault {
		t.Errorf("new machine fees = %d/%d, want defaults", m.BuyFee, m.SellFee)
	}

	// Duplicate registration must fail and leave the entry untouched.
	if _, err := s.AddMachine(machineA); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("want ErrAlreadyRegistered, got %v", err)
	}
	if got, ok := s.Lookup(machineA); !ok || got.BuyFee != entity.FeeDefault {
		t.Errorf("registry entry changed by failed add: %+v ok=%v", got, ok)
	}
}

func TestRemoveMachineIdempotent(t *testing.T) {
	s := NewState(owner)
	if _, err := s.AddMachine(machineA); err != nil {
		t.Fatalf("add: %v", err)
	}

	if removed := s.RemoveMachine(machineA); !removed {
		t.Error("first removal reported no-op")
	}
	if _, ok := s.Lookup(machineA); ok {
		t.Error("machine still present after removal")
	}
	// Second removal is a no-op, not an error.
	if removed := s.RemoveMachine(machineA); removed {
		t.Error("second removal reported a removed entry")
	}
}

func TestEditMachineFees(t *testing.T) {
	tests := []struct {
		name    string
		buyFee  uint64
		sellFee uint64
		wantErr error
	}{
		{name: "zero fees", buyFee: 0, sellFee: 0},
		{name: "just below granularity", buyFee: entity.FeeGranularity - 1, sellFee: entity.FeeGranularity - 1},
		{name: "buy fee at granularity", buyFee: entity.FeeGranularity, sellFee: 0, wantErr: ErrFeeOutOfRange},
		{name: "buy fee above granularity", buyFee: entity.FeeGranularity + 1, sellFee: 0, wantErr: ErrFeeOutOfRange},
		{name: "sell fee at granularity", buyFee: 0, sellFee: entity.FeeGranularity, wantErr: ErrFeeOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState(owner)
			if _, err := s.AddMachine(machineA); err != nil {
				t.Fatalf("add: %v", err)
			}

			_, err := s.EditMachineFees(machineA, tt.buyFee, tt.sellFee)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
				// Both-or-neither: a rejected edit leaves the stored fees.
				m, _ := s.Lookup(machineA)
				if m.BuyFee != entity.FeeDefault || m.SellFee != entity.FeeDefault {
					t.Errorf("fees mutated by failed edit: %d/%d", m.BuyFee, m.SellFee)
				}
				return
			}
			if err != nil {
				t.Fatalf("edit: %v", err)
			}
			m, _ := s.Lookup(machineA)
			if m.BuyFee != tt.buyFee || m.SellFee != tt.sellFee {
				t.Errorf("fees = %d/%d, want %d/%d", m.BuyFee, m.SellFee, tt.buyFee, tt.sellFee)
			}
		})
	}
}

func TestEditMachineFeesUnregistered(t *testing.T) {
	s := NewState(owner)
	if _, err := s.EditMachineFees(machineA, 0, 0); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("want ErrNotRegistered, got %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	s := NewState(owner)
	s.TransferOwnership(machineB)

	if err := s.RequireOwner(owner); !errors.Is(err, ErrNotOwner) {
		t.Errorf("previous owner still authorized: %v", err)
	}
	if err := s.RequireOwner(machineB); err != nil {
		t.Errorf("new owner rejected: %v", err)
	}
}

// Every mutation path preserves the invariant that stored fees are strictly
// below the granularity.
func TestFeeInvariantHeld(t *testing.T) {
	s := NewState(owner)
	if _, err := s.AddMachine(machineA); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.EditMachineFees(machineA, 42, 7); err != nil {
		t.Fatalf("edit: %v", err)
	}
	_, _ = s.EditMachineFees(machineA, entity.FeeGranularity, entity.FeeGranularity)

	for addr, m := range s.Machines {
		if m.BuyFee >= entity.FeeGranularity || m.SellFee >= entity.FeeGranularity {
			t.Errorf("machine %s violates fee invariant: %d/%d", addr.Hex(), m.BuyFee, m.SellFee)
		}
	}
}
