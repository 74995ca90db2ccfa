package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgefi/mxbridge/internal/domain"
	"github.com/bridgefi/mxbridge/internal/domain/entity"
	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Compile-time check that RegistryRepository implements outbound.RegistryRepository
var _ outbound.RegistryRepository = (*RegistryRepository)(nil)

// RegistryRepository is a PostgreSQL implementation of the
// outbound.RegistryRepository port. The owner lives in a singleton row of
// registry_owner; machines are keyed by their 20-byte address.
type RegistryRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRegistryRepository creates a new PostgreSQL registry repository.
// Returns an error if the database pool is nil.
func NewRegistryRepository(pool *pgxpool.Pool, logger *slog.Logger) (*RegistryRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

// GetOwner returns the current owner address.
func (r *RegistryRepository) GetOwner(ctx context.Context) (common.Address, error) {
	return scanOwner(r.pool.QueryRow(ctx,
		`SELECT owner_address FROM registry_owner WHERE singleton`))
}

// GetOwnerTX returns the owner within tx, locking the singleton row so that
// concurrent administrative mutations serialize on it.
func (r *RegistryRepository) GetOwnerTX(ctx context.Context, tx pgx.Tx) (common.Address, error) {
	return scanOwner(tx.QueryRow(ctx,
		`SELECT owner_address FROM registry_owner WHERE singleton FOR UPDATE`))
}

func scanOwner(row pgx.Row) (common.Address, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Address{}, fmt.Errorf("registry owner is not bootstrapped")
		}
		return common.Address{}, fmt.Errorf("failed to get owner: %w", err)
	}
	return common.BytesToAddress(raw), nil
}

// EnsureOwner installs owner if, and only if, no owner row exists yet.
// Idempotent: a second call is a no-op regardless of the address passed.
func (r *RegistryRepository) EnsureOwner(ctx context.Context, owner common.Address) error {
	if owner == (common.Address{}) {
		return fmt.Errorf("owner must not be the zero address")
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO registry_owner (singleton, owner_address)
		 VALUES (TRUE, $1)
		 ON CONFLICT (singleton) DO NOTHING`,
		owner.Bytes())
	if err != nil {
		return fmt.Errorf("failed to bootstrap owner: %w", err)
	}
	return nil
}

// SetOwnerTX replaces the owner within tx.
func (r *RegistryRepository) SetOwnerTX(ctx context.Context, tx pgx.Tx, owner common.Address) error {
	tag, err := tx.Exec(ctx,
		`UPDATE registry_owner SET owner_address = $1, updated_at = NOW() WHERE singleton`,
		owner.Bytes())
	if err != nil {
		return fmt.Errorf("failed to set owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registry owner is not bootstrapped")
	}
	return nil
}

// GetMachine returns the machine registered under address, or nil when absent.
func (r *RegistryRepository) GetMachine(ctx context.Context, address common.Address) (*entity.Machine, error) {
	return scanMachine(r.pool.QueryRow(ctx,
		`SELECT address, buy_fee, sell_fee FROM machine WHERE address = $1`,
		address.Bytes()))
}

// GetMachineTX is GetMachine within tx with the row locked for update.
func (r *RegistryRepository) GetMachineTX(ctx context.Context, tx pgx.Tx, address common.Address) (*entity.Machine, error) {
	return scanMachine(tx.QueryRow(ctx,
		`SELECT address, buy_fee, sell_fee FROM machine WHERE address = $1 FOR UPDATE`,
		address.Bytes()))
}

func scanMachine(row pgx.Row) (*entity.Machine, error) {
	var (
		raw             []byte
		buyFee, sellFee int64
	)
	if err := row.Scan(&raw, &buyFee, &sellFee); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // machine not registered
		}
		return nil, fmt.Errorf("failed to get machine: %w", err)
	}
	return &entity.Machine{
		Address: common.BytesToAddress(raw),
		BuyFee:  uint64(buyFee),
		SellFee: uint64(sellFee),
	}, nil
}

// InsertMachineTX inserts a new machine within tx. A unique violation on the
// address maps to domain.ErrAlreadyRegistered.
func (r *RegistryRepository) InsertMachineTX(ctx context.Context, tx pgx.Tx, m entity.Machine) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO machine (address, buy_fee, sell_fee) VALUES ($1, $2, $3)`,
		m.Address.Bytes(), int64(m.BuyFee), int64(m.SellFee))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("machine %s: %w", m.AddressHex(), domain.ErrAlreadyRegistered)
		}
		return fmt.Errorf("failed to insert machine: %w", err)
	}
	return nil
}

// UpdateMachineFeesTX replaces both stored fees within tx.
func (r *RegistryRepository) UpdateMachineFeesTX(ctx context.Context, tx pgx.Tx, m entity.Machine) error {
	tag, err := tx.Exec(ctx,
		`UPDATE machine SET buy_fee = $2, sell_fee = $3, updated_at = NOW() WHERE address = $1`,
		m.Address.Bytes(), int64(m.BuyFee), int64(m.SellFee))
	if err != nil {
		return fmt.Errorf("failed to update machine fees: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("machine %s: %w", m.AddressHex(), domain.ErrNotRegistered)
	}
	return nil
}

// DeleteMachineTX removes a machine within tx. Absence is not an error.
func (r *RegistryRepository) DeleteMachineTX(ctx context.Context, tx pgx.Tx, address common.Address) (bool, error) {
	tag, err := tx.Exec(ctx,
		`DELETE FROM machine WHERE address = $1`,
		address.Bytes())
	if err != nil {
		return false, fmt.Errorf("failed to delete machine: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
