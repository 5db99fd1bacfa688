package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/shopspring/decimal"
)

// Token contracts on Ethereum mainnet the platform accepts on ERC20.
var erc20Tokens = map[models.Symbol]struct {
	Address  common.Address
	Decimals int32
}{
	models.USDT: {common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), 6},
}

// Client is a read-only view of Ethereum mainnet, used to show what has
// actually landed on the platform's ERC20 deposit addresses.
type Client struct {
	rpc      *ethclient.Client
	erc20ABI abi.ABI
}

func NewClient(rpcURL string) (*Client, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	eABI, err := parseERC20()
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("parse ERC20 ABI: %w", err)
	}
	return &Client{rpc: rpc, erc20ABI: eABI}, nil
}

func parseERC20() (abi.ABI, error) {
	return abi.JSON(mustERC20ABI())
}

func (c *Client) Close() { c.rpc.Close() }

// ETHBalance returns the native balance of addr in ETH.
func (c *Client) ETHBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	wei, err := c.rpc.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(wei, -18), nil
}

// TokenBalance returns owner's balance of an ERC20 token, scaled by the
// token's decimals.
func (c *Client) TokenBalance(ctx context.Context, token common.Address, decimals int32, owner common.Address) (decimal.Decimal, error) {
	data, err := c.erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := c.CallContract(ctx, token, data)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf call: %w", err)
	}
	res, err := c.erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(res) == 0 {
		return decimal.Zero, fmt.Errorf("unpack balanceOf: %v", err)
	}
	raw, ok := res[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf type %T", res[0])
	}
	return decimal.NewFromBigInt(raw, -decimals), nil
}

// CallContract performs a read-only eth_call and returns the raw result.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := map[string]interface{}{
		"to":   to.Hex(),
		"data": fmt.Sprintf("0x%x", data),
	}
	var result string
	err := c.rpc.Client().CallContext(ctx, &result, "eth_call", msg, "latest")
	if err != nil {
		return nil, err
	}
	return common.FromHex(result), nil
}

// OnChainBalance is the chain-side balance of one ERC20 deposit address.
type OnChainBalance struct {
	Coin    models.Symbol   `json:"coin"`
	Network models.Network  `json:"network"`
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
	Error   string          `json:"error,omitempty"`
}

// DepositBalances looks up every ERC20 deposit address it knows how to
// read. Per-address failures are reported inline.
func (c *Client) DepositBalances(ctx context.Context, addrs []models.WalletAddress) []OnChainBalance {
	var out []OnChainBalance
	for _, a := range addrs {
		if a.Network != models.ERC20 || !common.IsHexAddress(a.Address) {
			continue
		}
		owner := common.HexToAddress(a.Address)
		b := OnChainBalance{Coin: a.Coin, Network: a.Network, Address: owner.Hex()}

		var err error
		switch tok, isToken := erc20Tokens[a.Coin]; {
		case a.Coin == models.ETH:
			b.Balance, err = c.ETHBalance(ctx, owner)
		case isToken:
			b.Balance, err = c.TokenBalance(ctx, tok.Address, tok.Decimals, owner)
		default:
			continue
		}
		if err != nil {
			b.Error = err.Error()
		}
		out = append(out, b)
	}
	return out
}
