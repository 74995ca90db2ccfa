// Package registry implements the owner-gated administrative surface over
// the machine registry. Every mutation runs the pure domain state machine
// inside a single database transaction: the ownership check happens against
// the owner row locked for the duration of the call, and cache invalidation
// happens before the mutation is reported successful.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bridgefi/mxbridge/internal/domain"
	"github.com/bridgefi/mxbridge/internal/domain/entity"
	"github.com/bridgefi/mxbridge/internal/ports/inbound"
	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

const (
	// tracerName is the instrumentation name for this service.
	tracerName = "github.com/bridgefi/mxbridge/internal/services/registry"
)

// Config holds configuration for the admin Service.
type Config struct {
	// Logger is the structured logger.
	Logger *slog.Logger
}

// Compile-time check that Service implements inbound.RegistryAdminService
var _ inbound.RegistryAdminService = (*Service)(nil)

// Service is the owner-gated registry administration service.
type Service struct {
	repo    outbound.RegistryRepository
	txm     outbound.TxManager
	cache   outbound.MachineCache
	events  outbound.EventSink
	metrics outbound.MetricsRecorder
	logger  *slog.Logger
}

// NewService creates a new registry admin service. Repository and
// transaction manager are required; cache, event sink and metrics are
// optional.
func NewService(
	config Config,
	repo outbound.RegistryRepository,
	txm outbound.TxManager,
	cache outbound.MachineCache,
	events outbound.EventSink,
	metrics outbound.MetricsRecorder,
) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("registry repository is required")
	}
	if txm == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		txm:     txm,
		cache:   cache,
		events:  events,
		metrics: metrics,
		logger:  config.Logger.With("component", "registry-service"),
	}, nil
}

// AddMachine registers machine with default fees. Owner-gated.
func (s *Service) AddMachine(ctx context.Context, caller, machine common.Address) (added *entity.Machine, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "AddMachine")
	defer span.End()
	span.SetAttributes(attribute.String("machine", machine.Hex()))
	defer s.observe(ctx, "add_machine", &err)

	err = s.txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		state, err := s.loadState(ctx, tx, machine)
		if err != nil {
			return err
		}
		if err := state.RequireOwner(caller); err != nil {
			return err
		}
		m, err := state.AddMachine(machine)
		if err != nil {
			return err
		}
		if err := s.repo.InsertMachineTX(ctx, tx, *m); err != nil {
			return err
		}
		added = m
		return s.invalidate(ctx, machine)
	})
	if err != nil {
		return nil, err
	}
	if err := s.invalidate(ctx, machine); err != nil {
		return nil, err
	}

	s.logger.Info("machine added", "machine", machine.Hex(), "owner", caller.Hex())
	s.publish(ctx, outbound.RegistryEvent{
		Type:       outbound.EventTypeMachineAdded,
		Caller:     caller.Hex(),
		Machine:    machine.Hex(),
		BuyFee:     added.BuyFee,
		SellFee:    added.SellFee,
		OccurredAt: time.Now().UTC(),
	})
	return added, nil
}

// RemoveMachine deregisters machine. Owner-gated; absence is a no-op.
func (s *Service) RemoveMachine(ctx context.Context, caller, machine common.Address) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "RemoveMachine")
	defer span.End()
	span.SetAttributes(attribute.String("machine", machine.Hex()))
	defer s.observe(ctx, "remove_machine", &err)

	var removed bool
	err = s.txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		owner, err := s.repo.GetOwnerTX(ctx, tx)
		if err != nil {
			return fmt.Errorf("loading owner: %w", err)
		}
		if err := domain.NewState(owner).RequireOwner(caller); err != nil {
			return err
		}
		removed, err = s.repo.DeleteMachineTX(ctx, tx, machine)
		if err != nil {
			return err
		}
		// Invalidate unconditionally: a stale cache entry must not outlive
		// the registry row it mirrors.
		return s.invalidate(ctx, machine)
	})
	if err != nil {
		return err
	}
	if err := s.invalidate(ctx, machine); err != nil {
		return err
	}

	s.logger.Info("machine removed", "machine", machine.Hex(), "existed", removed)
	if removed {
		s.publish(ctx, outbound.RegistryEvent{
			Type:       outbound.EventTypeMachineRemoved,
			Caller:     caller.Hex(),
			Machine:    machine.Hex(),
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

// EditMachineFees replaces both fees of a registered machine. Owner-gated;
// both-or-neither.
func (s *Service) EditMachineFees(ctx context.Context, caller, machine common.Address, buyFee, sellFee uint64) (edited *entity.Machine, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "EditMachineFees")
	defer span.End()
	span.SetAttributes(attribute.String("machine", machine.Hex()))
	defer s.observe(ctx, "edit_machine_fees", &err)

	err = s.txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		state, err := s.loadState(ctx, tx, machine)
		if err != nil {
			return err
		}
		if err := state.RequireOwner(caller); err != nil {
			return err
		}
		m, err := state.EditMachineFees(machine, buyFee, sellFee)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateMachineFeesTX(ctx, tx, *m); err != nil {
			return err
		}
		edited = m
		return s.invalidate(ctx, machine)
	})
	if err != nil {
		return nil, err
	}
	if err := s.invalidate(ctx, machine); err != nil {
		return nil, err
	}

	s.logger.Info("machine fees updated",
		"machine", machine.Hex(),
		"buyFee", buyFee,
		"sellFee", sellFee,
	)
	s.publish(ctx, outbound.RegistryEvent{
		Type:       outbound.EventTypeMachineFeesUpdated,
		Caller:     caller.Hex(),
		Machine:    machine.Hex(),
		BuyFee:     buyFee,
		SellFee:    sellFee,
		OccurredAt: time.Now().UTC(),
	})
	return edited, nil
}

// TransferOwnership hands the registry to newOwner. Owner-gated. The
// transfer is immediate and unilateral: no acceptance from the new owner is
// required, so a misdirected transfer is recoverable only by the new owner
// transferring back.
func (s *Service) TransferOwnership(ctx context.Context, caller, newOwner common.Address) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "TransferOwnership")
	defer span.End()
	defer s.observe(ctx, "transfer_ownership", &err)

	if newOwner == (common.Address{}) {
		return fmt.Errorf("new owner must not be the zero address")
	}

	err = s.txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		owner, err := s.repo.GetOwnerTX(ctx, tx)
		if err != nil {
			return fmt.Errorf("loading owner: %w", err)
		}
		state := domain.NewState(owner)
		if err := state.RequireOwner(caller); err != nil {
			return err
		}
		state.TransferOwnership(newOwner)
		return s.repo.SetOwnerTX(ctx, tx, state.Owner)
	})
	if err != nil {
		return err
	}

	s.logger.Info("ownership transferred", "from", caller.Hex(), "to", newOwner.Hex())
	s.publish(ctx, outbound.RegistryEvent{
		Type:       outbound.EventTypeOwnershipTransferred,
		Caller:     caller.Hex(),
		NewOwner:   newOwner.Hex(),
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// GetMachine returns the registered machine, or nil when absent. Not gated:
// lookups are pure reads.
func (s *Service) GetMachine(ctx context.Context, machine common.Address) (*entity.Machine, error) {
	return s.repo.GetMachine(ctx, machine)
}

// loadState builds the slice of registry state one mutation touches: the
// owner row plus the single machine row, both locked within tx.
func (s *Service) loadState(ctx context.Context, tx pgx.Tx, machine common.Address) (*domain.State, error) {
	owner, err := s.repo.GetOwnerTX(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("loading owner: %w", err)
	}
	state := domain.NewState(owner)
	m, err := s.repo.GetMachineTX(ctx, tx, machine)
	if err != nil {
		return nil, fmt.Errorf("loading machine: %w", err)
	}
	if m != nil {
		state.Machines[machine] = *m
	}
	return state, nil
}

// invalidate drops the cache entry for address. Mutations call it twice:
// inside the transaction, and again after commit. The second pass matters
// because a concurrent authorization that misses the cache between the
// in-transaction invalidation and the commit reads the pre-commit row and
// re-populates the cache with state the commit is about to replace.
func (s *Service) invalidate(ctx context.Context, address common.Address) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, address); err != nil {
		return fmt.Errorf("invalidating machine cache: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event outbound.RegistryEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("registry event publish failed", "error", err)
	}
}

func (s *Service) observe(ctx context.Context, operation string, err *error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if *err != nil {
		switch {
		case errors.Is(*err, domain.ErrNotOwner):
			status = "not_owner"
		case errors.Is(*err, domain.ErrAlreadyRegistered):
			status = "already_registered"
		case errors.Is(*err, domain.ErrNotRegistered):
			status = "not_registered"
		case errors.Is(*err, domain.ErrFeeOutOfRange):
			status = "fee_out_of_range"
		default:
			status = "error"
		}
	}
	s.metrics.RecordRegistryMutation(ctx, operation, status)
}
