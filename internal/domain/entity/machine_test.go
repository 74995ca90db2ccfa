package entity

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewMachine(t *testing.T) {
	addr := common.HexToAddress("0x0102030405060708090a0b0c0d0e0f1011121314")

	tests := []struct {
		name        string
		address     common.Address
		buyFee      uint64
		sellFee     uint64
		wantErr     bool
		errContains string
	}{
		{
			name:    "valid machine with default fees",
			address: addr,
			buyFee:  FeeDefault,
			sellFee: FeeDefault,
			wantErr: false,
		},
		{
			name:    "zero fees are valid",
			address: addr,
			buyFee:  0,
			sellFee: 0,
			wantErr: false,
		},
		{
			name:    "fee just below granularity",
			address: addr,
			buyFee:  FeeGranularity - 1,
			sellFee: FeeGranularity - 1,
			wantErr: false,
		},
		{
			name:        "zero address",
			address:     common.Address{},
			buyFee:      FeeDefault,
			sellFee:     FeeDefault,
			wantErr:     true,
			errContains: "zero address",
		},
		{
			name:        "buy fee equal to granularity",
			address:     addr,
			buyFee:      FeeGranularity,
			sellFee:     FeeDefault,
			wantErr:     true,
			errContains: "buy fee out of range",
		},
		{
			name:        "sell fee above granularity",
			address:     addr,
			buyFee:      FeeDefault,
			sellFee:     FeeGranularity + 1,
			wantErr:     true,
			errContains: "sell fee out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMachine(tt.address, tt.buyFee, tt.sellFee)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got machine %+v", m)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if m.Address != tt.address || m.BuyFee != tt.buyFee || m.SellFee != tt.sellFee {
				t.Errorf("machine fields mismatch: %+v", m)
			}
		})
	}
}

func TestMachineAddressHex(t *testing.T) {
	addr := common.HexToAddress("0x0102030405060708090a0b0c0d0e0f1011121314")
	m, err := NewMachine(addr, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.AddressHex(); !strings.HasPrefix(got, "0x") || len(got) != 42 {
		t.Errorf("unexpected hex form: %q", got)
	}
}
