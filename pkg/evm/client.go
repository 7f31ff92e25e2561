// Package evm reads balances and allowances and submits transactions on EVM chains.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/types"
)

// Backend is the subset of ethclient.Client used here
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// ERC20 balanceOf, allowance and approve
const erc20ABIJSON = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
	}
	return parsed
}

// Client provides read access to one chain
type Client struct {
	chain   chains.Chain
	chainID *big.Int
	backend Backend
	close   func()
}

// Dial connects to the chain's RPC endpoint
func Dial(ctx context.Context, chain chains.Chain) (*Client, error) {
	if chain.RPCURL == "" {
		return nil, fmt.Errorf("%w: RPC URL not configured for %s", types.ErrConfiguration, chain.Name)
	}

	ec, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s RPC: %v", types.ErrNetwork, chain.Name, err)
	}

	c, err := NewClient(chain, ec)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.close = ec.Close
	return c, nil
}

// NewClient wraps an existing backend
func NewClient(chain chains.Chain, backend Backend) (*Client, error) {
	chainID, ok := new(big.Int).SetString(chain.ChainID, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid chain id %q for %s", types.ErrConfiguration, chain.ChainID, chain.Name)
	}
	return &Client{
		chain:   chain,
		chainID: chainID,
		backend: backend,
	}, nil
}

// Chain returns the chain descriptor
func (c *Client) Chain() chains.Chain {
	return c.chain
}

// NativeBalance returns the native coin balance in wei
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get %s balance: %v", types.ErrNetwork, c.chain.NativeSymbol, err)
	}
	return balance, nil
}

// GasPrice returns the node's suggested gas price
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get gas price: %v", types.ErrNetwork, err)
	}
	return price, nil
}

// TokenBalance returns the ERC20 balance of owner in base units
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, "balanceOf", owner)
}

// Allowance returns how much spender may transfer from owner
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, "allowance", owner, spender)
}

func (c *Client) callUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", method, err)
	}

	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call %s: %v", types.ErrNetwork, method, err)
	}

	out, err := erc20ABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s result: %v", types.ErrNetwork, method, err)
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %s result type %T", types.ErrNetwork, method, out[0])
	}
	return value, nil
}

// Close closes the RPC connection
func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}
