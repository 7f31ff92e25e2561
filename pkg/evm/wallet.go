package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"usdc-bridge/pkg/types"
)

// defaultApproveGas is used when gas estimation for approve fails
const defaultApproveGas = uint64(100000)

// Wallet signs and submits transactions for a single key
type Wallet struct {
	*Client
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewWallet parses the private key and checks it controls expectedAddress
func NewWallet(c *Client, privateKeyHex, expectedAddress string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %v", types.ErrConfiguration, err)
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	if expectedAddress != "" && !strings.EqualFold(address.Hex(), expectedAddress) {
		return nil, fmt.Errorf("%w: private key controls %s, not configured wallet %s",
			types.ErrConfiguration, address.Hex(), expectedAddress)
	}

	return &Wallet{Client: c, key: key, address: address}, nil
}

// Address returns the wallet address
func (w *Wallet) Address() common.Address {
	return w.address
}

// Approve submits an ERC20 approve(spender, amount) transaction
func (w *Wallet) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*ethtypes.Transaction, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve data: %w", err)
	}

	nonce, err := w.nonce(ctx)
	if err != nil {
		return nil, err
	}

	gasPrice, err := w.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit := defaultApproveGas
	estimated, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &token, Data: data})
	if err == nil {
		gasLimit = estimated * 120 / 100
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &token,
		Value:    big.NewInt(0),
		Data:     data,
	})
	return w.signAndSend(ctx, tx)
}

// Send signs the aggregator-built transaction and submits it. Payloads carrying a
// priority fee go out as EIP-1559 transactions with the payload gas price as fee cap.
func (w *Wallet) Send(ctx context.Context, p types.TxPayload) (*ethtypes.Transaction, error) {
	if !common.IsHexAddress(p.To) {
		return nil, fmt.Errorf("%w: invalid transaction target %q", types.ErrValidation, p.To)
	}
	to := common.HexToAddress(p.To)

	data, err := hexutil.Decode(p.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid transaction data: %v", types.ErrValidation, err)
	}

	value, err := parseBig(p.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid transaction value: %v", types.ErrValidation, err)
	}

	gasLimit, err := parseUint(p.GasLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid gas limit: %v", types.ErrValidation, err)
	}
	if gasLimit == 0 {
		estimated, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to, Value: value, Data: data})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to estimate gas: %v", types.ErrNetwork, err)
		}
		gasLimit = estimated * 120 / 100
	}

	gasPrice, err := parseBig(p.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid gas price: %v", types.ErrValidation, err)
	}
	if gasPrice.Sign() == 0 {
		if gasPrice, err = w.GasPrice(ctx); err != nil {
			return nil, err
		}
	}

	nonce, err := w.nonce(ctx)
	if err != nil {
		return nil, err
	}

	var tx *ethtypes.Transaction
	if p.IsDynamicFee() {
		tip, err := parseBig(p.MaxPriorityFeePerGas)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid priority fee: %v", types.ErrValidation, err)
		}
		feeCap := gasPrice
		if feeCap.Cmp(tip) < 0 {
			feeCap = tip
		}
		tx = ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   w.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        &to,
			Value:     value,
			Data:      data,
		})
	} else {
		tx = ethtypes.NewTx(&ethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     data,
		})
	}

	return w.signAndSend(ctx, tx)
}

// WaitMined blocks until tx has one confirmation and checks its receipt status
func (w *Wallet) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, w.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: no receipt for %s: %v", types.ErrTransactionFailed, tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: transaction %s reverted", types.ErrTransactionFailed, tx.Hash().Hex())
	}
	return receipt, nil
}

func (w *Wallet) nonce(ctx context.Context) (uint64, error) {
	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get nonce: %v", types.ErrNetwork, err)
	}
	return nonce, nil
}

func (w *Wallet) signAndSend(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: failed to send transaction: %v", types.ErrTransactionFailed, err)
	}
	return signed, nil
}

// parseBig accepts decimal or 0x-prefixed hex; empty is zero
func parseBig(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex number %q", s)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

func parseUint(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
