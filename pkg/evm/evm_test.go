package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/types"
)

const testUSDC = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

type fakeBackend struct {
	balance  *big.Int
	gasPrice *big.Int
	calls    map[string][]byte // method name -> packed output
	nonce    uint64
	sent     []*ethtypes.Transaction
	status   uint64
	noTx     bool
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	method, err := erc20ABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	return f.calls[method.Name], nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 50000, nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if f.noTx {
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{TxHash: txHash, Status: f.status, BlockNumber: big.NewInt(1)}, nil
}

func (f *fakeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func packUint(t *testing.T, method string, v int64) []byte {
	t.Helper()
	out, err := erc20ABI.Methods[method].Outputs.Pack(big.NewInt(v))
	require.NoError(t, err)
	return out
}

func baseChain(t *testing.T) chains.Chain {
	t.Helper()
	c, err := chains.Default().Chain(chains.Base)
	require.NoError(t, err)
	return c
}

func newTestWallet(t *testing.T, backend *fakeBackend) *Wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	c, err := NewClient(baseChain(t), backend)
	require.NoError(t, err)

	w, err := NewWallet(c, "0x"+common.Bytes2Hex(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey).Hex())
	require.NoError(t, err)
	return w
}

func TestNewWalletRejectsMismatchedAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c, err := NewClient(baseChain(t), &fakeBackend{})
	require.NoError(t, err)

	_, err = NewWallet(c, common.Bytes2Hex(crypto.FromECDSA(key)), "0x1111111111111111111111111111111111111111")
	assert.ErrorIs(t, err, types.ErrConfiguration)

	_, err = NewWallet(c, "not-a-key", "")
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestNewClientRejectsBadChainID(t *testing.T) {
	chain := baseChain(t)
	chain.ChainID = "base"
	_, err := NewClient(chain, &fakeBackend{})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestReads(t *testing.T) {
	backend := &fakeBackend{
		balance:  big.NewInt(1e15),
		gasPrice: big.NewInt(1e9),
		calls: map[string][]byte{
			"balanceOf": packUint(t, "balanceOf", 5_000_000),
			"allowance": packUint(t, "allowance", 42),
		},
	}
	c, err := NewClient(baseChain(t), backend)
	require.NoError(t, err)
	assert.Equal(t, "ETH", c.Chain().NativeSymbol)

	ctx := context.Background()
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress(testUSDC)

	native, err := c.NativeBalance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1e15), native.Int64())

	price, err := c.GasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1e9), price.Int64())

	bal, err := c.TokenBalance(ctx, token, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), bal.Int64())

	allowance, err := c.Allowance(ctx, token, owner, common.HexToAddress(chains.StargateRouter))
	require.NoError(t, err)
	assert.Equal(t, int64(42), allowance.Int64())
}

func TestApprove(t *testing.T) {
	backend := &fakeBackend{gasPrice: big.NewInt(2e9), nonce: 7, status: ethtypes.ReceiptStatusSuccessful}
	w := newTestWallet(t, backend)

	token := common.HexToAddress(testUSDC)
	spender := common.HexToAddress(chains.StargateRouter)
	tx, err := w.Approve(context.Background(), token, spender, big.NewInt(100_000_000))
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	assert.Equal(t, token, *tx.To())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(60000), tx.Gas())

	method, err := erc20ABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "approve", method.Name)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, spender, args[0])
	assert.Equal(t, big.NewInt(100_000_000), args[1])

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(8453)), tx)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), sender)
}

func TestSendDynamicFee(t *testing.T) {
	backend := &fakeBackend{gasPrice: big.NewInt(1)}
	w := newTestWallet(t, backend)

	tx, err := w.Send(context.Background(), types.TxPayload{
		To:                   chains.OKXApproveRouter,
		Data:                 "0xdeadbeef",
		Value:                "0",
		GasLimit:             "300000",
		GasPrice:             "2000000",
		MaxPriorityFeePerGas: "1000",
	})
	require.NoError(t, err)

	assert.Equal(t, uint8(ethtypes.DynamicFeeTxType), tx.Type())
	assert.Equal(t, big.NewInt(2000000), tx.GasFeeCap())
	assert.Equal(t, big.NewInt(1000), tx.GasTipCap())
	assert.Equal(t, uint64(300000), tx.Gas())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, tx.Data())
	assert.Equal(t, big.NewInt(8453), tx.ChainId())
}

func TestSendLegacy(t *testing.T) {
	backend := &fakeBackend{gasPrice: big.NewInt(5)}
	w := newTestWallet(t, backend)

	tx, err := w.Send(context.Background(), types.TxPayload{
		To:       chains.OKXApproveRouter,
		Data:     "0x01",
		Value:    "0x10",
		GasLimit: "21000",
		GasPrice: "3000000",
	})
	require.NoError(t, err)

	assert.Equal(t, uint8(ethtypes.LegacyTxType), tx.Type())
	assert.Equal(t, big.NewInt(3000000), tx.GasPrice())
	assert.Equal(t, big.NewInt(16), tx.Value())

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(8453)), tx)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), sender)
}

func TestSendRejectsMalformedPayload(t *testing.T) {
	w := newTestWallet(t, &fakeBackend{gasPrice: big.NewInt(1)})

	_, err := w.Send(context.Background(), types.TxPayload{To: "nope", Data: "0x"})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = w.Send(context.Background(), types.TxPayload{To: chains.OKXApproveRouter, Data: "zz"})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestWaitMined(t *testing.T) {
	backend := &fakeBackend{gasPrice: big.NewInt(1), status: ethtypes.ReceiptStatusSuccessful}
	w := newTestWallet(t, backend)
	tx, err := w.Send(context.Background(), types.TxPayload{To: chains.OKXApproveRouter, Data: "0x", GasLimit: "21000", GasPrice: "1"})
	require.NoError(t, err)

	receipt, err := w.WaitMined(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), receipt.TxHash)

	backend.status = ethtypes.ReceiptStatusFailed
	_, err = w.WaitMined(context.Background(), tx)
	assert.ErrorIs(t, err, types.ErrTransactionFailed)

	backend.noTx = true
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = w.WaitMined(ctx, tx)
	assert.ErrorIs(t, err, types.ErrTransactionFailed)
	assert.False(t, errors.Is(err, types.ErrNetwork))
}

func TestParseBig(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "123", want: 123},
		{in: "0x1f", want: 31},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := parseBig(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Int64())
		})
	}
}
