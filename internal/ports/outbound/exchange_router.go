// Package outbound contains the secondary/outbound ports.
// These interfaces are implemented by adapters in the infrastructure layer.
package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ExchangeRouter is the external exchange adapter (Uniswap-V2 style). Every
// method is a fallible remote call; a failure aborts the enclosing order.
// Implementations must not be trusted by callers: services perform all
// authorization and arithmetic checks strictly before invoking any method
// here, and never mutate local state afterwards within the same flow.
type ExchangeRouter interface {
	// RouterAddress returns the on-chain address of the router, used as the
	// spender for single-use allowances.
	RouterAddress() common.Address

	// WrappedNative returns the wrapped-native token address the router
	// uses as its intermediate hop (e.g. WETH).
	WrappedNative(ctx context.Context) (common.Address, error)

	// GetAmountsOut quotes the output amounts along path for amountIn.
	// The last element is the expected final output.
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)

	// Approve grants spender an allowance of exactly amount units of token
	// from the service treasury. Allowances are single-use: re-approval is
	// required per order to bound exposure from a compromised router.
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error

	// SwapExactTokensForTokens swaps amountIn of path[0] for at least
	// amountOutMin of the final path element, sending output to recipient.
	// Returns the output amount actually received.
	SwapExactTokensForTokens(ctx context.Context, amountIn, amountOutMin *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) (*big.Int, error)

	// SwapExactNativeForTokens swaps value units of native currency
	// (attached to the call) for at least amountOutMin of the final path
	// element, sending output to recipient. Returns the output amount.
	SwapExactNativeForTokens(ctx context.Context, value, amountOutMin *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) (*big.Int, error)
}

// TokenTreasury moves tokens held by the service treasury. Used by the sell
// flow to forward escrowed swap proceeds to the end user.
type TokenTreasury interface {
	// Address returns the treasury's on-chain address (the recipient of
	// sell-flow swap output before forwarding).
	Address() common.Address

	// Transfer sends amount units of token from the treasury to recipient.
	Transfer(ctx context.Context, token, recipient common.Address, amount *big.Int) error
}
