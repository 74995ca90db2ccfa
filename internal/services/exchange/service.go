// Package exchange implements the order executor: it authorizes the calling
// machine, computes the post-fee amount, and drives the external exchange
// router through a strict validate → mutate-local-state → call-external
// phase ordering. No local state is mutated after an external call within
// the same flow, so a reentrant or partially-failed router call can never
// observe bypassed authorization or half-applied balances.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bridgefi/mxbridge/internal/domain"
	"github.com/bridgefi/mxbridge/internal/domain/entity"
	"github.com/bridgefi/mxbridge/internal/ports/inbound"
	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

const (
	// tracerName is the instrumentation name for this service.
	tracerName = "github.com/bridgefi/mxbridge/internal/services/exchange"
)

// Config holds configuration for the exchange Service.
type Config struct {
	// BaseToken is the fiat-pegged token the bridge holds and denominates
	// fees against.
	BaseToken common.Address

	// SwapDeadline is how long a submitted swap stays valid on the router.
	// Default: 2 minutes.
	SwapDeadline time.Duration

	// SellTolerance bounds sell-flow slippage in FeeGranularity units.
	// The sell surface carries no per-order tolerance, so this configured
	// bound applies instead. Default: 100 (1%).
	SellTolerance uint64

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ConfigDefaults returns default configuration.
func ConfigDefaults() Config {
	return Config{
		SwapDeadline:  2 * time.Minute,
		SellTolerance: 100,
		Logger:        slog.Default(),
	}
}

// Compile-time check that Service implements inbound.ExchangeService
var _ inbound.ExchangeService = (*Service)(nil)

// Service executes exchange orders for registered machines.
type Service struct {
	config Config

	registry outbound.RegistryRepository
	cache    outbound.MachineCache
	router   outbound.ExchangeRouter
	ledger   outbound.LedgerRepository
	txm      outbound.TxManager
	treasury outbound.TokenTreasury
	events   outbound.EventSink
	metrics  outbound.MetricsRecorder

	logger *slog.Logger
}

// NewService creates a new exchange service. The registry repository, router,
// ledger, transaction manager and treasury are required; cache, event sink
// and metrics are optional.
func NewService(
	config Config,
	registry outbound.RegistryRepository,
	cache outbound.MachineCache,
	router outbound.ExchangeRouter,
	ledger outbound.LedgerRepository,
	txm outbound.TxManager,
	treasury outbound.TokenTreasury,
	events outbound.EventSink,
	metrics outbound.MetricsRecorder,
) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry repository is required")
	}
	if router == nil {
		return nil, fmt.Errorf("exchange router is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger repository is required")
	}
	if txm == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if treasury == nil {
		return nil, fmt.Errorf("token treasury is required")
	}
	if config.BaseToken == (common.Address{}) {
		return nil, fmt.Errorf("base token address is required")
	}

	defaults := ConfigDefaults()
	if config.SwapDeadline == 0 {
		config.SwapDeadline = defaults.SwapDeadline
	}
	if config.SellTolerance == 0 {
		config.SellTolerance = defaults.SellTolerance
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:   config,
		registry: registry,
		cache:    cache,
		router:   router,
		ledger:   ledger,
		txm:      txm,
		treasury: treasury,
		events:   events,
		metrics:  metrics,
		logger:   config.Logger.With("component", "exchange-service"),
	}, nil
}

// OrderBaseToTarget executes a buy-direction order on behalf of user.
//
// Phase ordering:
//  1. validate: order shape, machine authorization, fee arithmetic — all
//     before any router call;
//  2. no local mutation is needed for the buy flow;
//  3. interact: quote, single-use approval, swap with the tolerance-derived
//     minimum output and a bounded deadline.
func (s *Service) OrderBaseToTarget(ctx context.Context, caller common.Address, amount, tolerance uint64, user common.Address) (receipt *inbound.OrderReceipt, err error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "OrderBaseToTarget")
	defer span.End()
	span.SetAttributes(
		attribute.String("machine", caller.Hex()),
		attribute.Int64("amount", int64(amount)),
	)
	defer s.observe(ctx, entity.BaseToTarget, time.Now(), &err)

	order, err := entity.NewOrderRequest(entity.BaseToTarget, amount, tolerance, user)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidOrder, err)
	}

	machine, err := s.authorize(ctx, caller)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	net, err := domain.NetAmount(order.Amount, machine.BuyFee)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// All checks passed; everything below is external interaction.
	wrapped, err := s.router.WrappedNative(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving wrapped native: %w", domain.ErrRouterFailure, err)
	}
	path := []common.Address{s.config.BaseToken, wrapped}

	netBig := new(big.Int).SetUint64(net)
	minOut, err := s.minimumOutput(ctx, netBig, path, order.Tolerance)
	if err != nil {
		return nil, err
	}

	if err := s.router.Approve(ctx, s.config.BaseToken, s.router.RouterAddress(), netBig); err != nil {
		return nil, fmt.Errorf("%w: approving router: %w", domain.ErrRouterFailure, err)
	}

	out, err := s.router.SwapExactTokensForTokens(ctx, netBig, minOut, path, order.User, s.deadline())
	if err != nil {
		// The approval already happened; revoke it so a failed swap leaves
		// no standing allowance on the router.
		if revokeErr := s.router.Approve(ctx, s.config.BaseToken, s.router.RouterAddress(), big.NewInt(0)); revokeErr != nil {
			s.logger.Warn("revoking router allowance after failed swap",
				"machine", caller.Hex(),
				"error", revokeErr,
			)
		}
		return nil, fmt.Errorf("%w: swap: %w", domain.ErrRouterFailure, err)
	}

	s.logger.Info("buy order executed",
		"machine", caller.Hex(),
		"user", user.Hex(),
		"gross", amount,
		"net", net,
		"amountOut", out.String(),
	)
	s.publishOrder(ctx, caller, order, net, out)

	return &inbound.OrderReceipt{
		Direction:   entity.BaseToTarget,
		GrossAmount: amount,
		NetAmount:   net,
		AmountOut:   out,
	}, nil
}

// OrderTargetToBase executes a sell-direction order on behalf of user.
//
// The swap output is delivered to the treasury, credited to the user's
// escrow ledger row, and then forwarded on-chain. The forwarding transaction
// debits the ledger before transferring, so a failed transfer rolls the
// debit back and the escrowed balance survives for a later retry; the funds
// can never be forwarded twice.
func (s *Service) OrderTargetToBase(ctx context.Context, caller common.Address, amount uint64, user common.Address) (receipt *inbound.OrderReceipt, err error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "OrderTargetToBase")
	defer span.End()
	span.SetAttributes(
		attribute.String("machine", caller.Hex()),
		attribute.Int64("amount", int64(amount)),
	)
	defer s.observe(ctx, entity.TargetToBase, time.Now(), &err)

	order, err := entity.NewOrderRequest(entity.TargetToBase, amount, s.config.SellTolerance, user)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidOrder, err)
	}

	machine, err := s.authorize(ctx, caller)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	net, err := domain.NetAmount(order.Amount, machine.SellFee)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	wrapped, err := s.router.WrappedNative(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving wrapped native: %w", domain.ErrRouterFailure, err)
	}
	path := []common.Address{wrapped, s.config.BaseToken}

	netBig := new(big.Int).SetUint64(net)
	minOut, err := s.minimumOutput(ctx, netBig, path, order.Tolerance)
	if err != nil {
		return nil, err
	}

	out, err := s.router.SwapExactNativeForTokens(ctx, netBig, minOut, path, s.treasury.Address(), s.deadline())
	if err != nil {
		return nil, fmt.Errorf("%w: swap: %w", domain.ErrRouterFailure, err)
	}

	// The swap settled on-chain: record the proceeds as escrow attributable
	// to the user before attempting the forward.
	if err := s.txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		return s.ledger.CreditTX(ctx, tx, order.User, s.config.BaseToken, out)
	}); err != nil {
		return nil, fmt.Errorf("crediting escrow ledger: %w", err)
	}

	if err := s.forwardResidual(ctx, order.User); err != nil {
		// Escrow is intact; the order's proceeds remain attributable to
		// the user and the forward can be retried.
		s.logger.Error("residual forward failed, escrow retained",
			"user", user.Hex(),
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("sell order executed",
		"machine", caller.Hex(),
		"user", user.Hex(),
		"gross", amount,
		"net", net,
		"amountOut", out.String(),
	)
	s.publishOrder(ctx, caller, order, net, out)

	return &inbound.OrderReceipt{
		Direction:   entity.TargetToBase,
		GrossAmount: amount,
		NetAmount:   net,
		AmountOut:   out,
	}, nil
}

// ForwardResidual pushes any escrowed balance for user out to their address.
// Exposed so a failed sell-flow forward can be retried without a new order.
func (s *Service) ForwardResidual(ctx context.Context, user common.Address) error {
	return s.forwardResidual(ctx, user)
}

// forwardResidual transfers the full escrowed balance of the base token to
// user. The debit and the transfer share one transaction, debit first: a
// transfer failure rolls back the debit.
func (s *Service) forwardResidual(ctx context.Context, user common.Address) error {
	return s.txm.WithTransaction(ctx, func(tx pgx.Tx) error {
		balance, err := s.ledger.BalanceTX(ctx, tx, user, s.config.BaseToken)
		if err != nil {
			return fmt.Errorf("reading escrow balance: %w", err)
		}
		if balance.Sign() == 0 {
			return nil
		}
		if err := s.ledger.DebitTX(ctx, tx, user, s.config.BaseToken, balance); err != nil {
			return fmt.Errorf("debiting escrow: %w", err)
		}
		if err := s.treasury.Transfer(ctx, s.config.BaseToken, user, balance); err != nil {
			return fmt.Errorf("%w: forwarding residual: %w", domain.ErrRouterFailure, err)
		}
		return nil
	})
}

// authorize resolves caller against the machine registry, consulting the
// cache first. Fails with domain.ErrUnauthorizedMachine before any external
// call is made.
func (s *Service) authorize(ctx context.Context, caller common.Address) (*entity.Machine, error) {
	if s.cache != nil {
		if m, ok, err := s.cache.Get(ctx, caller); err == nil && ok {
			return &m, nil
		} else if err != nil {
			s.logger.Warn("machine cache read failed, falling back to repository", "error", err)
		}
	}

	m, err := s.registry.GetMachine(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("resolving machine: %w", err)
	}
	if m == nil {
		return nil, domain.ErrUnauthorizedMachine
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, *m); err != nil {
			s.logger.Warn("machine cache write failed", "error", err)
		}
	}
	return m, nil
}

// minimumOutput quotes the path and applies the slippage tolerance:
// quote * (FeeGranularity - tolerance) / FeeGranularity.
func (s *Service) minimumOutput(ctx context.Context, amountIn *big.Int, path []common.Address, tolerance uint64) (*big.Int, error) {
	amounts, err := s.router.GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("%w: quoting swap: %w", domain.ErrRouterFailure, err)
	}
	if len(amounts) == 0 {
		return nil, fmt.Errorf("%w: empty quote", domain.ErrRouterFailure)
	}
	quote := amounts[len(amounts)-1]

	granularity := new(big.Int).SetUint64(entity.FeeGranularity)
	keep := new(big.Int).SetUint64(entity.FeeGranularity - tolerance)
	minOut := new(big.Int).Mul(quote, keep)
	return minOut.Div(minOut, granularity), nil
}

func (s *Service) deadline() *big.Int {
	return big.NewInt(time.Now().Add(s.config.SwapDeadline).Unix())
}

func (s *Service) publishOrder(ctx context.Context, caller common.Address, order *entity.OrderRequest, net uint64, out *big.Int) {
	if s.events == nil {
		return
	}
	event := outbound.OrderEvent{
		Caller:      caller.Hex(),
		Direction:   string(order.Direction),
		User:        order.User.Hex(),
		GrossAmount: order.Amount,
		NetAmount:   net,
		AmountOut:   out.String(),
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("order event publish failed", "error", err)
	}
}

func (s *Service) observe(ctx context.Context, direction entity.OrderDirection, start time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if *err != nil {
		status = classify(*err)
	}
	s.metrics.RecordOrder(ctx, string(direction), status, time.Since(start))
}

func classify(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorizedMachine):
		return "unauthorized"
	case errors.Is(err, domain.ErrArithmeticOverflow):
		return "overflow"
	case errors.Is(err, domain.ErrRouterFailure):
		return "router_failure"
	default:
		return "error"
	}
}
