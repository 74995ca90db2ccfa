package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetUniswapV2RouterABI covers the router surface the bridge uses: the
// wrapped-native accessor, the quote call and the two swap variants.
func GetUniswapV2RouterABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [],
			"name": "WETH",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "path", "type": "address[]"}
			],
			"name": "getAmountsOut",
			"outputs": [{"name": "amounts", "type": "uint256[]"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "amountOutMin", "type": "uint256"},
				{"name": "path", "type": "address[]"},
				{"name": "to", "type": "address"},
				{"name": "deadline", "type": "uint256"}
			],
			"name": "swapExactTokensForTokens",
			"outputs": [{"name": "amounts", "type": "uint256[]"}],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "amountOutMin", "type": "uint256"},
				{"name": "path", "type": "address[]"},
				{"name": "to", "type": "address"},
				{"name": "deadline", "type": "uint256"}
			],
			"name": "swapExactETHForTokens",
			"outputs": [{"name": "amounts", "type": "uint256[]"}],
			"stateMutability": "payable",
			"type": "function"
		}
	]`)
}
