package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Fee configuration constants. A fee value f is interpreted as the fraction
// f / FeeGranularity, so FeeGranularity = 10000 gives 0.01% resolution.
const (
	// FeeGranularity is the denominator defining fee precision.
	FeeGranularity uint64 = 10000

	// FeeDefault is the fee assigned to newly registered machines (10%).
	FeeDefault uint64 = 1000
)

// Machine represents a trusted agent authorized to submit exchange orders
// on behalf of end users. A machine exists in the registry only while
// authorized; removal is immediate and total.
type Machine struct {
	Address common.Address
	BuyFee  uint64
	SellFee uint64
}

// NewMachine creates a new Machine entity with validation.
func NewMachine(address common.Address, buyFee, sellFee uint64) (*Machine, error) {
	m := &Machine{
		Address: address,
		BuyFee:  buyFee,
		SellFee: sellFee,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that all fields have valid values. Every machine stored in
// the registry must satisfy this: both fees strictly below FeeGranularity.
func (m *Machine) Validate() error {
	if m.Address == (common.Address{}) {
		return fmt.Errorf("machine address must not be the zero address")
	}
	if m.BuyFee >= FeeGranularity {
		return fmt.Errorf("buy fee out of range: %d >= %d", m.BuyFee, FeeGranularity)
	}
	if m.SellFee >= FeeGranularity {
		return fmt.Errorf("sell fee out of range: %d >= %d", m.SellFee, FeeGranularity)
	}
	return nil
}

// AddressHex returns the machine address as a 0x-prefixed hex string.
func (m *Machine) AddressHex() string {
	return m.Address.Hex()
}
