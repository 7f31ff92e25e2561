package bridge

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/client"
	"usdc-bridge/pkg/history"
	"usdc-bridge/pkg/types"
)

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	testRouter = "0x2222222222222222222222222222222222222222"
)

type fakeAggregator struct {
	buildResults []buildResult
	buildCalls   []types.QuoteRequest
	quotes       []types.RouteOption
	quoteCalls   []types.QuoteRequest
	statuses     []*types.StatusResponse
	statusCalls  int
}

type buildResult struct {
	options []types.BuildOption
	err     error
}

func (f *fakeAggregator) GetQuote(ctx context.Context, req types.QuoteRequest) ([]types.RouteOption, error) {
	f.quoteCalls = append(f.quoteCalls, req)
	return f.quotes, nil
}

func (f *fakeAggregator) BuildTransaction(ctx context.Context, req types.QuoteRequest) ([]types.BuildOption, error) {
	f.buildCalls = append(f.buildCalls, req)
	r := f.buildResults[0]
	if len(f.buildResults) > 1 {
		f.buildResults = f.buildResults[1:]
	}
	return r.options, r.err
}

func (f *fakeAggregator) GetStatus(ctx context.Context, chainID, txHash string) (*types.StatusResponse, error) {
	resp := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	f.statusCalls++
	return resp, nil
}

type approval struct {
	spender common.Address
	amount  *big.Int
}

type fakeWallet struct {
	native       *big.Int
	gasPrice     *big.Int
	tokenBalance *big.Int
	allowance    *big.Int
	failReceipts bool

	approvals []approval
	sent      []types.TxPayload
	nonce     uint64
}

func (f *fakeWallet) Address() common.Address { return common.HexToAddress(testWallet) }

func (f *fakeWallet) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeWallet) GasPrice(ctx context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeWallet) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return f.tokenBalance, nil
}

func (f *fakeWallet) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return f.allowance, nil
}

func (f *fakeWallet) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*ethtypes.Transaction, error) {
	f.approvals = append(f.approvals, approval{spender: spender, amount: amount})
	f.allowance = amount
	return f.tx(), nil
}

func (f *fakeWallet) Send(ctx context.Context, p types.TxPayload) (*ethtypes.Transaction, error) {
	f.sent = append(f.sent, p)
	return f.tx(), nil
}

func (f *fakeWallet) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	if f.failReceipts {
		return nil, types.ErrTransactionFailed
	}
	return &ethtypes.Receipt{TxHash: tx.Hash(), Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}, nil
}

func (f *fakeWallet) tx() *ethtypes.Transaction {
	f.nonce++
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: f.nonce, GasPrice: big.NewInt(1), Gas: 21000})
}

type fakeLedger struct {
	records []*history.Record
}

func (f *fakeLedger) Add(rec *history.Record) error {
	rec.ID = "id"
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLedger) FindByTxHash(hash string) (*history.Record, error) {
	for _, r := range f.records {
		if strings.EqualFold(r.Result.TxHash, hash) {
			return r, nil
		}
	}
	return nil, history.ErrNotFound
}

func (f *fakeLedger) Update(rec *history.Record) error { return nil }

func richWallet() *fakeWallet {
	return &fakeWallet{
		native:       big.NewInt(1e18),
		gasPrice:     big.NewInt(1e9),
		tokenBalance: big.NewInt(10_000_000),
		allowance:    big.NewInt(0),
	}
}

func buildOption(bridgeName, fromAmount string) types.BuildOption {
	return types.BuildOption{
		FromChainID:     "8453",
		ToChainID:       "42161",
		FromTokenAmount: fromAmount,
		Route: types.RouteOption{
			FromTokenAmount: fromAmount,
			ToTokenAmount:   "990000",
			MinimumReceive:  "980100",
			Router:          types.Router{BridgeName: bridgeName},
		},
		Tx: types.TxPayload{
			From:     testWallet,
			To:       testRouter,
			Data:     "0x" + strings.Repeat("ab", 4) + bridgeName,
			Value:    "0",
			GasLimit: "300000",
			GasPrice: "1000000",
		},
	}
}

type harness struct {
	svc    *Service
	agg    *fakeAggregator
	wallet *fakeWallet
	ledger *fakeLedger
	sleeps []time.Duration
}

func newHarness(t *testing.T, agg *fakeAggregator, wallet *fakeWallet, cfg Config) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	h := &harness{agg: agg, wallet: wallet, ledger: &fakeLedger{}}

	if cfg.WalletAddress == "" {
		cfg.WalletAddress = testWallet
	}
	if cfg.FeePercent == "" {
		cfg.FeePercent = "0.5"
	}
	h.svc = NewService(agg, chains.Default(), cfg,
		WithWallet(wallet),
		WithLedger(h.ledger),
		WithLogger(logger),
	)
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	h.svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return h
}

func pair(t *testing.T, dest chains.Key) chains.Pair {
	t.Helper()
	p, err := chains.Default().Pair(dest)
	require.NoError(t, err)
	return p
}

func TestExecuteBridgeArbitrum(t *testing.T) {
	agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{buildOption("Stargate", "1000000")}}}}
	h := newHarness(t, agg, richWallet(), Config{QuoteDelay: DefaultQuoteDelay})

	result, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	require.NoError(t, err)

	assert.Equal(t, types.StatusPending, result.Status)
	assert.Equal(t, "1", result.Amount)
	assert.Equal(t, "Base", result.FromChain)
	assert.Equal(t, "USDC", result.ToToken)
	assert.Equal(t, int64(1700000000000), result.Timestamp)
	assert.NotEmpty(t, result.TxHash)

	require.Len(t, agg.buildCalls, 1)
	req := agg.buildCalls[0]
	assert.Equal(t, "1000000", req.Amount)
	assert.Equal(t, "8453", req.FromChainID)
	assert.Equal(t, "42161", req.ToChainID)
	assert.Equal(t, "0.01", req.Slippage)
	assert.Equal(t, "0.5", req.FeePercent)
	assert.Equal(t, types.SortOptimal, req.Sort)
	assert.Equal(t, testWallet, req.UserWalletAddress)
	assert.Equal(t, []time.Duration{DefaultQuoteDelay}, h.sleeps)

	// aggregator target plus Stargate, 100x the amount each
	require.Len(t, h.wallet.approvals, 2)
	assert.Equal(t, common.HexToAddress(testRouter), h.wallet.approvals[0].spender)
	assert.Equal(t, common.HexToAddress(chains.StargateRouter), h.wallet.approvals[1].spender)
	assert.Equal(t, big.NewInt(100_000_000), h.wallet.approvals[0].amount)

	require.Len(t, h.wallet.sent, 1)
	assert.Equal(t, testRouter, h.wallet.sent[0].To)

	require.Len(t, h.ledger.records, 1)
	assert.Equal(t, result.TxHash, h.ledger.records[0].Result.TxHash)
	assert.Equal(t, "Stargate", h.ledger.records[0].BridgeName)
	assert.Equal(t, "arbitrum", h.ledger.records[0].Destination)
}

func TestExecuteBridgeOverrides(t *testing.T) {
	opt := buildOption("Stargate", "1500000")
	opt.ToChainID = "56"
	agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{opt}}}}
	h := newHarness(t, agg, richWallet(), Config{})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.BSC), Options{
		Amount:     "1.5",
		Slippage:   "0.05",
		Referrer:   "0xref",
		FeePercent: "1",
	})
	require.NoError(t, err)

	req := agg.buildCalls[0]
	assert.Equal(t, "1500000", req.Amount)
	assert.Equal(t, "56", req.ToChainID)
	assert.Equal(t, "0.05", req.Slippage)
	assert.Equal(t, "1", req.FeePercent)
	assert.Equal(t, "0xref", req.ReferrerAddress)
}

func TestExecuteBridgeSingleAcrossOptionIsUsed(t *testing.T) {
	agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{buildOption("Across", "1000000")}}}}
	h := newHarness(t, agg, richWallet(), Config{})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	require.NoError(t, err)
	require.Len(t, h.wallet.sent, 1)
	assert.Contains(t, h.wallet.sent[0].Data, "Across")
}

func TestExecuteBridgePrefersNonAcross(t *testing.T) {
	agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{
		buildOption("Across", "1000000"),
		buildOption("Stargate", "1000000"),
	}}}}
	h := newHarness(t, agg, richWallet(), Config{})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	require.NoError(t, err)
	require.Len(t, h.wallet.sent, 1)
	assert.Contains(t, h.wallet.sent[0].Data, "Stargate")
	assert.Equal(t, "Stargate", h.ledger.records[0].BridgeName)
}

func TestExecuteBridgePolygonApprovesAcross(t *testing.T) {
	opt := buildOption("Stargate", "1000000")
	opt.ToChainID = "137"
	agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{opt}}}}
	h := newHarness(t, agg, richWallet(), Config{})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Polygon), Options{Amount: "1"})
	require.NoError(t, err)

	require.Len(t, h.wallet.approvals, 3)
	assert.Equal(t, common.HexToAddress(chains.AcrossSpokePool), h.wallet.approvals[2].spender)
	assert.Equal(t, "0.30", agg.buildCalls[0].Slippage)
}

func TestExecuteBridgeValidationMismatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.BuildOption)
	}{
		{name: "amount", mutate: func(o *types.BuildOption) { o.FromTokenAmount = "999999" }},
		{name: "source chain", mutate: func(o *types.BuildOption) { o.FromChainID = "1" }},
		{name: "destination chain", mutate: func(o *types.BuildOption) { o.ToChainID = "56" }},
		{name: "target", mutate: func(o *types.BuildOption) { o.Tx.To = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := buildOption("Stargate", "1000000")
			tt.mutate(&opt)
			agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{opt}}}}
			h := newHarness(t, agg, richWallet(), Config{})

			_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
			assert.ErrorIs(t, err, types.ErrValidation)
			assert.Empty(t, h.wallet.approvals)
			assert.Empty(t, h.wallet.sent)
			assert.Empty(t, h.ledger.records)
		})
	}
}

func TestExecuteBridgeAbsentEchoedChainIDs(t *testing.T) {
	opt := buildOption("Stargate", "1000000")
	opt.FromChainID = ""
	opt.ToChainID = ""
	agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{opt}}}}
	h := newHarness(t, agg, richWallet(), Config{})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	assert.NoError(t, err)
}

func TestExecuteBridgeInsufficientGas(t *testing.T) {
	wallet := richWallet()
	// 2 x 200000 gas x 1 gwei = 0.0004 ETH required
	wallet.native = big.NewInt(399_999_999_999_999)
	agg := &fakeAggregator{}
	h := newHarness(t, agg, wallet, Config{})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	assert.ErrorIs(t, err, types.ErrInsufficientGas)
	assert.Empty(t, agg.buildCalls)
}

func TestExecuteBridgeGasPriceFallback(t *testing.T) {
	wallet := richWallet()
	wallet.gasPrice = big.NewInt(0)
	wallet.native = big.NewInt(400_000_000_000_000)
	agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{buildOption("Stargate", "1000000")}}}}
	h := newHarness(t, agg, wallet, Config{})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	assert.NoError(t, err)
}

func TestExecuteBridgeInsufficientBalance(t *testing.T) {
	wallet := richWallet()
	wallet.tokenBalance = big.NewInt(999_999)
	agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{buildOption("Stargate", "1000000")}}}}
	h := newHarness(t, agg, wallet, Config{})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "required 1 USDC, available 0.999999 USDC")
	assert.Empty(t, wallet.approvals)
	assert.Empty(t, wallet.sent)
}

func TestExecuteBridgeInvalidAmount(t *testing.T) {
	agg := &fakeAggregator{}
	h := newHarness(t, agg, richWallet(), Config{})

	for _, amount := range []string{"abc", "0", "-1", "1.0000001"} {
		_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: amount})
		assert.ErrorIs(t, err, types.ErrInvalidAmount, amount)
	}
	assert.Empty(t, agg.buildCalls)
}

func TestExecuteBridgeEmptyBuildData(t *testing.T) {
	agg := &fakeAggregator{buildResults: []buildResult{{options: nil}}}
	h := newHarness(t, agg, richWallet(), Config{})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestExecuteBridgeFailedReceipt(t *testing.T) {
	wallet := richWallet()
	wallet.failReceipts = true
	agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{buildOption("Stargate", "1000000")}}}}
	h := newHarness(t, agg, wallet, Config{})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	assert.ErrorIs(t, err, types.ErrTransactionFailed)
	assert.Len(t, wallet.approvals, 1)
	assert.Empty(t, wallet.sent)
}

func TestExecuteBridgeRetriesConfiguredCodes(t *testing.T) {
	agg := &fakeAggregator{buildResults: []buildResult{
		{err: &client.APIError{Code: "82116", Msg: "quote expired"}},
		{options: []types.BuildOption{buildOption("Stargate", "1000000")}},
	}}
	h := newHarness(t, agg, richWallet(), Config{BuildRetries: 2, RetryCodes: []string{"82116"}})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	require.NoError(t, err)
	assert.Len(t, agg.buildCalls, 2)
	// quote delay (zero here) followed by one backoff wait
	require.Len(t, h.sleeps, 2)
	assert.Equal(t, time.Second, h.sleeps[1])
}

func TestExecuteBridgeDoesNotRetryOtherCodes(t *testing.T) {
	agg := &fakeAggregator{buildResults: []buildResult{
		{err: &client.APIError{Code: "51000", Msg: "bad parameter"}},
	}}
	h := newHarness(t, agg, richWallet(), Config{BuildRetries: 2, RetryCodes: []string{"82116"}})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	assert.ErrorIs(t, err, types.ErrAggregator)
	assert.Len(t, agg.buildCalls, 1)
}

func TestExecuteBridgeRetriesExhausted(t *testing.T) {
	agg := &fakeAggregator{buildResults: []buildResult{
		{err: &client.APIError{Code: "82116", Msg: "quote expired"}},
	}}
	h := newHarness(t, agg, richWallet(), Config{BuildRetries: 1, RetryCodes: []string{"82116"}})

	_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	assert.ErrorIs(t, err, types.ErrAggregator)
	assert.Len(t, agg.buildCalls, 2)
}

func TestExecuteBridgeCancelledDuringDelay(t *testing.T) {
	agg := &fakeAggregator{}
	h := newHarness(t, agg, richWallet(), Config{QuoteDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.svc.ExecuteBridge(ctx, pair(t, chains.Arbitrum), Options{Amount: "1"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, agg.buildCalls)
}

func TestExecuteBridgeWithoutWallet(t *testing.T) {
	svc := NewService(&fakeAggregator{}, chains.Default(), Config{})
	_, err := svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1"})
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestSpendersDeduplicates(t *testing.T) {
	got := spenders(chains.StargateRouter, []chains.Spender{
		{Name: "Stargate", Address: strings.ToLower(chains.StargateRouter)},
		{Name: "Across", Address: chains.AcrossSpokePool},
	})
	require.Len(t, got, 2)
	assert.Equal(t, chains.AcrossSpokePool, got[1].Address)
}

func TestExecuteBridgeRejectsSlippageOutOfRange(t *testing.T) {
	for _, slippage := range []string{"0.5%", "0", "-0.01", "1.5", "50"} {
		t.Run(slippage, func(t *testing.T) {
			agg := &fakeAggregator{buildResults: []buildResult{{options: []types.BuildOption{buildOption("Stargate", "1000000")}}}}
			h := newHarness(t, agg, richWallet(), Config{})

			_, err := h.svc.ExecuteBridge(context.Background(), pair(t, chains.Arbitrum), Options{Amount: "1", Slippage: slippage})
			assert.ErrorIs(t, err, types.ErrValidation)
			assert.Empty(t, agg.buildCalls)
			assert.Empty(t, h.wallet.approvals)
			assert.Empty(t, h.wallet.sent)
		})
	}
}

func TestValidateSlippage(t *testing.T) {
	for _, ok := range []string{"0.01", "0.30", "1", " 0.05 "} {
		assert.NoError(t, validateSlippage(ok), ok)
	}
	for _, bad := range []string{"", "abc", "0", "1.01"} {
		assert.ErrorIs(t, validateSlippage(bad), types.ErrValidation, bad)
	}
}
