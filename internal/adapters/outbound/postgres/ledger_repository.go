package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

// Compile-time check that LedgerRepository implements outbound.LedgerRepository
var _ outbound.LedgerRepository = (*LedgerRepository)(nil)

// LedgerRepository is a PostgreSQL implementation of the
// outbound.LedgerRepository port. Balances are stored as NUMERIC(78,0),
// wide enough for any uint256 token amount, and exchanged with Go as
// decimal strings.
type LedgerRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL escrow ledger repository.
// Returns an error if the database pool is nil.
func NewLedgerRepository(pool *pgxpool.Pool, logger *slog.Logger) (*LedgerRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Balance returns the escrowed balance of token attributable to user,
// zero when no row exists.
func (l *LedgerRepository) Balance(ctx context.Context, user, token common.Address) (*big.Int, error) {
	return scanBalance(l.pool.QueryRow(ctx,
		`SELECT balance::text FROM escrow_balance
		 WHERE user_address = $1 AND token_address = $2`,
		user.Bytes(), token.Bytes()))
}

// BalanceTX is Balance within tx with the row locked for update, so a
// concurrent forward cannot read the same balance twice.
func (l *LedgerRepository) BalanceTX(ctx context.Context, tx pgx.Tx, user, token common.Address) (*big.Int, error) {
	return scanBalance(tx.QueryRow(ctx,
		`SELECT balance::text FROM escrow_balance
		 WHERE user_address = $1 AND token_address = $2
		 FOR UPDATE`,
		user.Bytes(), token.Bytes()))
}

func scanBalance(row pgx.Row) (*big.Int, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("failed to get escrow balance: %w", err)
	}
	balance, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric balance %q", raw)
	}
	return balance, nil
}

// CreditTX adds amount to the user's escrowed balance, creating the row if
// needed.
func (l *LedgerRepository) CreditTX(ctx context.Context, tx pgx.Tx, user, token common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO escrow_balance (user_address, token_address, balance)
		 VALUES ($1, $2, $3::numeric)
		 ON CONFLICT (user_address, token_address)
		 DO UPDATE SET balance = escrow_balance.balance + EXCLUDED.balance,
		               updated_at = NOW()`,
		user.Bytes(), token.Bytes(), amount.String())
	if err != nil {
		return fmt.Errorf("failed to credit escrow: %w", err)
	}
	return nil
}

// DebitTX subtracts amount from the user's escrowed balance. The balance CHECK
// constraint makes an overdraft fail the statement, which callers see as an
// error and which rolls the enclosing transaction back.
func (l *LedgerRepository) DebitTX(ctx context.Context, tx pgx.Tx, user, token common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE escrow_balance
		 SET balance = balance - $3::numeric, updated_at = NOW()
		 WHERE user_address = $1 AND token_address = $2`,
		user.Bytes(), token.Bytes(), amount.String())
	if err != nil {
		return fmt.Errorf("failed to debit escrow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no escrow balance for user %s", user.Hex())
	}
	return nil
}

func validAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("amount is nil")
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("amount is negative: %s", amount)
	}
	return nil
}
