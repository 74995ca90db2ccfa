// Package uniswap adapts a UniswapV2-compatible router contract to the
// ExchangeRouter and TokenTreasury ports. All transactions are signed with
// the bridge's treasury key and confirmed with bind.WaitMined before the
// call returns; swap outputs are read back from the receipt's ERC-20
// Transfer logs rather than trusted from the quote.
package uniswap

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/bridgefi/mxbridge/internal/pkg/blockchain/abis"
	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

// Compile-time check that Router implements outbound.ExchangeRouter
var _ outbound.ExchangeRouter = (*Router)(nil)

// Config holds configuration for the router adapter.
type Config struct {
	// RouterAddress is the deployed UniswapV2-compatible router.
	RouterAddress common.Address

	// PrivateKeyHex is the hex-encoded secp256k1 key of the bridge's
	// treasury account; it signs every outgoing transaction.
	PrivateKeyHex string

	// GasLimit caps the gas of each transaction. Zero lets the node
	// estimate.
	GasLimit uint64

	// MineTimeout bounds how long a submitted transaction is awaited.
	// Default: 3 minutes.
	MineTimeout time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ConfigDefaults returns default configuration.
func ConfigDefaults() Config {
	return Config{
		MineTimeout: 3 * time.Minute,
		Logger:      slog.Default(),
	}
}

// Router drives a UniswapV2-compatible router contract.
type Router struct {
	client     *ethclient.Client
	contract   *bind.BoundContract
	routerABI  *abi.ABI
	erc20ABI   *abi.ABI
	routerAddr common.Address
	account    *account
	logger     *slog.Logger

	wrappedMu  sync.Mutex
	wrapped    common.Address
	hasWrapped bool

	// fetchWrapped resolves the wrapped-native token from the chain.
	fetchWrapped func(ctx context.Context) (common.Address, error)
}

// account bundles the signing key with the nonce-serialization lock shared
// by every transaction this process sends.
type account struct {
	key         *ecdsa.PrivateKey
	address     common.Address
	chainID     *big.Int
	gasLimit    uint64
	mineTimeout time.Duration

	// txMu serializes transactions so concurrent sends cannot race on the
	// pending nonce.
	txMu sync.Mutex
}

// NewRouter dials nothing itself; it wraps an already-connected ethclient.
func NewRouter(ctx context.Context, client *ethclient.Client, cfg Config) (*Router, error) {
	if client == nil {
		return nil, fmt.Errorf("eth client is required")
	}
	if cfg.RouterAddress == (common.Address{}) {
		return nil, fmt.Errorf("router address is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("signing key is required")
	}

	defaults := ConfigDefaults()
	if cfg.MineTimeout == 0 {
		cfg.MineTimeout = defaults.MineTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}

	key, err := crypto.HexToECDSA(cfg.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving chain id: %w", err)
	}

	routerABI, err := abis.GetUniswapV2RouterABI()
	if err != nil {
		return nil, fmt.Errorf("parsing router ABI: %w", err)
	}
	erc20ABI, err := abis.GetERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parsing ERC20 ABI: %w", err)
	}

	r := &Router{
		client:     client,
		contract:   bind.NewBoundContract(cfg.RouterAddress, *routerABI, client, client, client),
		routerABI:  routerABI,
		erc20ABI:   erc20ABI,
		routerAddr: cfg.RouterAddress,
		account: &account{
			key:         key,
			address:     crypto.PubkeyToAddress(key.PublicKey),
			chainID:     chainID,
			gasLimit:    cfg.GasLimit,
			mineTimeout: cfg.MineTimeout,
		},
		logger: cfg.Logger.With("component", "uniswap-router"),
	}
	r.fetchWrapped = r.callWrappedNative
	return r, nil
}

// RouterAddress returns the router contract address.
func (r *Router) RouterAddress() common.Address {
	return r.routerAddr
}

// WrappedNative resolves the router's wrapped-native token address. The
// value is immutable on-chain, so a successful fetch is cached for the
// process lifetime; a failed fetch is retried on the next call instead of
// poisoning the cache.
func (r *Router) WrappedNative(ctx context.Context) (common.Address, error) {
	r.wrappedMu.Lock()
	defer r.wrappedMu.Unlock()
	if r.hasWrapped {
		return r.wrapped, nil
	}
	wrapped, err := r.fetchWrapped(ctx)
	if err != nil {
		return common.Address{}, err
	}
	r.wrapped = wrapped
	r.hasWrapped = true
	return wrapped, nil
}

func (r *Router) callWrappedNative(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "WETH"); err != nil {
		return common.Address{}, fmt.Errorf("calling WETH: %w", err)
	}
	return out[0].(common.Address), nil
}

// GetAmountsOut quotes the output amounts along path for amountIn.
func (r *Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	var out []interface{}
	err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("calling getAmountsOut: %w", err)
	}
	return out[0].([]*big.Int), nil
}

// Approve grants spender an allowance of exactly amount on token.
func (r *Router) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	erc20 := bind.NewBoundContract(token, *r.erc20ABI, r.client, r.client, r.client)
	receipt, err := r.account.transact(ctx, r.client, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return erc20.Transact(opts, "approve", spender, amount)
	})
	if err != nil {
		return fmt.Errorf("approve %s on %s: %w", amount, token.Hex(), err)
	}
	r.logger.Debug("approval mined", "token", token.Hex(), "spender", spender.Hex(), "tx", receipt.TxHash.Hex())
	return nil
}

// SwapExactTokensForTokens swaps amountIn along path, delivering at least
// amountOutMin to recipient, and returns the amount actually received.
func (r *Router) SwapExactTokensForTokens(ctx context.Context, amountIn, amountOutMin *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) (*big.Int, error) {
	receipt, err := r.account.transact(ctx, r.client, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return r.contract.Transact(opts, "swapExactTokensForTokens", amountIn, amountOutMin, path, recipient, deadline)
	})
	if err != nil {
		return nil, fmt.Errorf("swapExactTokensForTokens: %w", err)
	}
	return r.receivedAmount(receipt, path[len(path)-1], recipient)
}

// SwapExactNativeForTokens swaps value of the native asset along path,
// delivering at least amountOutMin to recipient, and returns the amount
// actually received. path must start with the wrapped-native token.
func (r *Router) SwapExactNativeForTokens(ctx context.Context, value, amountOutMin *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) (*big.Int, error) {
	receipt, err := r.account.transact(ctx, r.client, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		opts.Value = value
		return r.contract.Transact(opts, "swapExactETHForTokens", amountOutMin, path, recipient, deadline)
	})
	if err != nil {
		return nil, fmt.Errorf("swapExactETHForTokens: %w", err)
	}
	return r.receivedAmount(receipt, path[len(path)-1], recipient)
}

// receivedAmount sums the Transfer logs of token addressed to recipient in
// receipt. Multi-hop routes emit one such log per pool touching the final
// token, so summing is required for correctness, not just robustness.
func (r *Router) receivedAmount(receipt *types.Receipt, token, recipient common.Address) (*big.Int, error) {
	transferID := r.erc20ABI.Events["Transfer"].ID
	total := new(big.Int)
	found := false

	for _, lg := range receipt.Logs {
		if lg.Address != token || len(lg.Topics) != 3 || lg.Topics[0] != transferID {
			continue
		}
		if common.BytesToAddress(lg.Topics[2].Bytes()) != recipient {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(lg.Data))
		found = true
	}

	if !found {
		return nil, fmt.Errorf("no transfer of %s to %s in tx %s", token.Hex(), recipient.Hex(), receipt.TxHash.Hex())
	}
	return total, nil
}

// transact signs, sends and awaits one transaction under the account lock.
// A mined-but-reverted transaction is an error.
func (a *account) transact(ctx context.Context, client *ethclient.Client, send func(*bind.TransactOpts) (*types.Transaction, error)) (*types.Receipt, error) {
	a.txMu.Lock()
	defer a.txMu.Unlock()

	opts, err := bind.NewKeyedTransactorWithChainID(a.key, a.chainID)
	if err != nil {
		return nil, fmt.Errorf("building transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = a.gasLimit

	tx, err := send(opts)
	if err != nil {
		return nil, fmt.Errorf("sending transaction: %w", err)
	}

	mineCtx, cancel := context.WithTimeout(ctx, a.mineTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(mineCtx, client, tx)
	if err != nil {
		return nil, fmt.Errorf("waiting for tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("tx %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}
