package ethereum

import (
	"io"
	"strings"
)

// Minimal ERC20 ABI, read-only methods only.
func mustERC20ABI() io.Reader {
	return strings.NewReader(`[
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "_owner", "type": "address"}],
			"outputs": [{"name": "balance", "type": "uint256"}]
		},
		{
			"name": "decimals",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint8"}]
		}
	]`)
}
