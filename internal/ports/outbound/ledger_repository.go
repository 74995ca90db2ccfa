package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
)

// LedgerRepository persists user-scoped escrow balances: sell-flow swap
// proceeds received by the treasury and attributable to an end user, held
// until forwarded on-chain. Balances never go negative; a debit exceeding
// the stored balance is an error.
//
// Ordering discipline: services debit the ledger inside the same transaction
// that performs the outgoing transfer, and the debit comes first, so a
// failed transfer rolls the debit back and a crashed forward can never pay
// out twice.
type LedgerRepository interface {
	// Balance returns the escrowed balance of token attributable to user.
	// Zero (not an error) when no row exists.
	Balance(ctx context.Context, user, token common.Address) (*big.Int, error)

	// BalanceTX is Balance within tx, locking the row for update.
	BalanceTX(ctx context.Context, tx pgx.Tx, user, token common.Address) (*big.Int, error)

	// CreditTX adds amount to the user's escrowed balance, creating the row
	// if needed.
	CreditTX(ctx context.Context, tx pgx.Tx, user, token common.Address, amount *big.Int) error

	// DebitTX subtracts amount from the user's escrowed balance. Fails if
	// the stored balance is insufficient.
	DebitTX(ctx context.Context, tx pgx.Tx, user, token common.Address, amount *big.Int) error
}
