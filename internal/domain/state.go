package domain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/bridgefi/mxbridge/internal/domain/entity"
)

// State is the registry aggregate root: the single owner and the machines it
// has authorized. It is an explicit value passed by pointer to every
// operation; there is no ambient global state. Persistence layers load a
// State (or the slice of it relevant to one call), run the pure operation,
// and write back the result inside one atomic transaction.
//
// Invariant: every machine held in Machines has both fees strictly below
// entity.FeeGranularity. Validation happens before insert/replace and is
// never invalidated retroactively.
type State struct {
	Owner    common.Address
	Machines map[common.Address]entity.Machine
}

// NewState creates a registry state with the given owner and no machines.
func NewState(owner common.Address) *State {
	return &State{
		Owner:    owner,
		Machines: make(map[common.Address]entity.Machine),
	}
}

// RequireOwner fails with ErrNotOwner unless caller is the current owner.
// It is the precondition gate for every administrative operation and has no
// side effects.
func (s *State) RequireOwner(caller common.Address) error {
	if caller != s.Owner {
		return ErrNotOwner
	}
	return nil
}

// AddMachine registers a new machine with default fees. Fails with
// ErrAlreadyRegistered if the identity is already present.
func (s *State) AddMachine(address common.Address) (*entity.Machine, error) {
	if _, ok := s.Machines[address]; ok {
		return nil, ErrAlreadyRegistered
	}
	m, err := entity.NewMachine(address, entity.FeeDefault, entity.FeeDefault)
	if err != nil {
		return nil, err
	}
	s.Machines[address] = *m
	return m, nil
}

// RemoveMachine deregisters a machine. Removal is immediate and total;
// absence is a no-op, not an error. Returns whether an entry was removed.
func (s *State) RemoveMachine(address common.Address) bool {
	if _, ok := s.Machines[address]; !ok {
		return false
	}
	delete(s.Machines, address)
	return true
}

// EditMachineFees replaces both fees of a registered machine atomically.
// Fails with ErrNotRegistered if the machine is absent and ErrFeeOutOfRange
// if either fee is not strictly below FeeGranularity; on failure the stored
// fees are untouched (both-or-neither).
func (s *State) EditMachineFees(address common.Address, buyFee, sellFee uint64) (*entity.Machine, error) {
	m, ok := s.Machines[address]
	if !ok {
		return nil, ErrNotRegistered
	}
	if buyFee >= entity.FeeGranularity || sellFee >= entity.FeeGranularity {
		return nil, ErrFeeOutOfRange
	}
	m.BuyFee = buyFee
	m.SellFee = sellFee
	s.Machines[address] = m
	return &m, nil
}

// Lookup returns the machine registered under address, if any. Pure read.
func (s *State) Lookup(address common.Address) (entity.Machine, bool) {
	m, ok := s.Machines[address]
	return m, ok
}

// TransferOwnership replaces the owner. The transfer takes effect
// immediately and does not require the new owner to accept, so a misdirected
// transfer is irreversible except by the new owner transferring back. That
// is a deliberate tradeoff inherited from the original design, not a defect.
// Authorization of the current owner is the caller's responsibility
// (RequireOwner before invoking).
func (s *State) TransferOwnership(newOwner common.Address) {
	s.Owner = newOwner
}
