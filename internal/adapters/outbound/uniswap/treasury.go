package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

// Compile-time check that Treasury implements outbound.TokenTreasury
var _ outbound.TokenTreasury = (*Treasury)(nil)

// Treasury is the bridge's own token-holding account: the recipient of
// sell-flow swap proceeds and the sender of residual forwards. It shares
// the router's signing account, so its transfers serialize behind the
// router's swaps on the same nonce lock.
type Treasury struct {
	router *Router
}

// NewTreasury wraps the router's signing account as a TokenTreasury.
func NewTreasury(router *Router) (*Treasury, error) {
	if router == nil {
		return nil, fmt.Errorf("router is required")
	}
	return &Treasury{router: router}, nil
}

// Address returns the treasury account address.
func (t *Treasury) Address() common.Address {
	return t.router.account.address
}

// Transfer sends amount of token from the treasury account to recipient and
// waits for the transfer to mine.
func (t *Treasury) Transfer(ctx context.Context, token, recipient common.Address, amount *big.Int) error {
	erc20 := bind.NewBoundContract(token, *t.router.erc20ABI, t.router.client, t.router.client, t.router.client)
	receipt, err := t.router.account.transact(ctx, t.router.client, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return erc20.Transact(opts, "transfer", recipient, amount)
	})
	if err != nil {
		return fmt.Errorf("transfer %s of %s to %s: %w", amount, token.Hex(), recipient.Hex(), err)
	}
	t.router.logger.Info("treasury transfer mined",
		"token", token.Hex(),
		"recipient", recipient.Hex(),
		"amount", amount.String(),
		"tx", receipt.TxHash.Hex(),
	)
	return nil
}
