package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

// Compile-time check that LedgerRepository implements the port
var _ outbound.LedgerRepository = (*LedgerRepository)(nil)

type ledgerKey struct {
	user  common.Address
	token common.Address
}

// LedgerRepository is an in-memory escrow ledger. The pgx.Tx parameters are
// ignored; enlist the repository with a TxManager to get rollback on a
// failed transaction callback.
type LedgerRepository struct {
	mu       sync.RWMutex
	balances map[ledgerKey]*big.Int
}

// NewLedgerRepository creates an empty in-memory ledger.
func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		balances: make(map[ledgerKey]*big.Int),
	}
}

// Balance returns the escrowed balance, zero when no entry exists.
func (l *LedgerRepository) Balance(ctx context.Context, user, token common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[ledgerKey{user, token}]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// BalanceTX is Balance; the tx is ignored.
func (l *LedgerRepository) BalanceTX(ctx context.Context, _ pgx.Tx, user, token common.Address) (*big.Int, error) {
	return l.Balance(ctx, user, token)
}

// CreditTX adds amount to the user's balance.
func (l *LedgerRepository) CreditTX(ctx context.Context, _ pgx.Tx, user, token common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("credit amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{user, token}
	b, ok := l.balances[key]
	if !ok {
		b = new(big.Int)
		l.balances[key] = b
	}
	b.Add(b, amount)
	return nil
}

func (l *LedgerRepository) snapshot() any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	copied := make(map[ledgerKey]*big.Int, len(l.balances))
	for k, v := range l.balances {
		copied[k] = new(big.Int).Set(v)
	}
	return copied
}

func (l *LedgerRepository) restore(snap any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = snap.(map[ledgerKey]*big.Int)
}

// DebitTX subtracts amount from the user's balance. Fails on insufficiency.
func (l *LedgerRepository) DebitTX(ctx context.Context, _ pgx.Tx, user, token common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("debit amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{user, token}
	b, ok := l.balances[key]
	if !ok || b.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient escrow balance for %s", user.Hex())
	}
	b.Sub(b, amount)
	return nil
}
