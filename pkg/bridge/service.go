// Package bridge orchestrates a USDC transfer from Base to a destination chain.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/client"
	"usdc-bridge/pkg/history"
	"usdc-bridge/pkg/telemetry"
	"usdc-bridge/pkg/types"
	"usdc-bridge/pkg/units"
)

const (
	EstimatedBridgeGas = 200000 // gas budgeted for the pre-check
	ApprovalMultiplier = 100    // approvals cover this many transfers
	DefaultQuoteDelay  = 2 * time.Second

	nativeDecimals = 18

	buildRetryWaitMin = time.Second
	buildRetryWaitMax = 30 * time.Second
)

// fallbackGasPrice is used when the node reports no gas price (1 gwei)
var fallbackGasPrice = big.NewInt(1_000_000_000)

// Aggregator is the part of the aggregator API the orchestrator needs
type Aggregator interface {
	GetQuote(ctx context.Context, req types.QuoteRequest) ([]types.RouteOption, error)
	BuildTransaction(ctx context.Context, req types.QuoteRequest) ([]types.BuildOption, error)
	GetStatus(ctx context.Context, chainID, txHash string) (*types.StatusResponse, error)
}

// Wallet reads and writes the source chain on behalf of one key
type Wallet interface {
	Address() common.Address
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*ethtypes.Transaction, error)
	Send(ctx context.Context, p types.TxPayload) (*ethtypes.Transaction, error)
	WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)
}

// Ledger records submitted transfers
type Ledger interface {
	Add(rec *history.Record) error
	FindByTxHash(hash string) (*history.Record, error)
	Update(rec *history.Record) error
}

// Config holds the orchestrator settings
type Config struct {
	WalletAddress string
	FeePercent    string
	QuoteDelay    time.Duration
	BuildRetries  int
	RetryCodes    []string
}

// Options are the per-call inputs of ExecuteBridge
type Options struct {
	Amount     string // human units, e.g. "1.5"
	Slippage   string // empty uses the pair default
	Referrer   string
	FeePercent string // empty uses the configured fee
}

// Service runs bridge transfers
type Service struct {
	agg       Aggregator
	registry  *chains.Registry
	cfg       Config
	wallet    Wallet
	ledger    Ledger
	log       logrus.FieldLogger
	metrics   *telemetry.Metrics
	predicate RoutePredicate

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithWallet enables ExecuteBridge
func WithWallet(w Wallet) Option {
	return func(s *Service) { s.wallet = w }
}

// WithLedger records submitted transfers
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRoutePredicate replaces DefaultRoutePredicate
func WithRoutePredicate(p RoutePredicate) Option {
	return func(s *Service) { s.predicate = p }
}

// NewService creates a bridge service
func NewService(agg Aggregator, registry *chains.Registry, cfg Config, opts ...Option) *Service {
	s := &Service{
		agg:       agg,
		registry:  registry,
		cfg:       cfg,
		log:       logrus.StandardLogger(),
		predicate: DefaultRoutePredicate,
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExecuteBridge moves opts.Amount of USDC along pair. It returns once the source
// transaction has one confirmation; the result status is always pending.
func (s *Service) ExecuteBridge(ctx context.Context, pair chains.Pair, opts Options) (result *types.BridgeResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bridge.Execute", trace.WithAttributes(
		attribute.String("bridge.destination", string(pair.Dest.Key)),
		attribute.String("bridge.amount", opts.Amount),
	))
	defer func() {
		outcome := telemetry.OutcomeSuccess
		if err != nil {
			outcome = telemetry.OutcomeError
		}
		s.metrics.RecordBridge(string(pair.Dest.Key), outcome)
		telemetry.EndSpan(span, err)
	}()

	if s.wallet == nil {
		return nil, fmt.Errorf("%w: no wallet configured", types.ErrConfiguration)
	}

	log := s.log.WithField("route", pair.String())
	log.Infof("Starting bridge of %s %s", opts.Amount, pair.SourceToken.Symbol)

	if err := s.checkGas(ctx, pair); err != nil {
		return nil, err
	}

	amount, err := units.ToBaseUnits(opts.Amount, pair.SourceToken.Decimals)
	if err != nil {
		return nil, err
	}

	req := s.request(pair, amount.String(), opts)
	req.Sort = types.SortOptimal
	if err := validateSlippage(req.Slippage); err != nil {
		return nil, err
	}

	log.WithField("delay", s.cfg.QuoteDelay).Debug("Waiting for fresh quote")
	if err := s.sleep(ctx, s.cfg.QuoteDelay); err != nil {
		return nil, err
	}

	options, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	for i, opt := range options {
		log.Debugf("Option %d: %s, min receive %s %s", i+1, opt.Route.BridgeName(),
			units.FormatString(opt.Route.MinimumReceive, pair.DestToken.Decimals, 6), pair.DestToken.Symbol)
	}

	idx := SelectRoute(options, s.predicate)
	choice := options[idx]
	if idx != 0 {
		log.Infof("Using alternative bridge %s instead of %s", choice.Route.BridgeName(), options[0].Route.BridgeName())
	}

	if err := validateOption(pair, req, choice); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"bridge":   choice.Route.BridgeName(),
		"amount":   req.Amount,
		"slippage": req.Slippage,
		"receive":  units.FormatString(choice.Route.ToTokenAmount, pair.DestToken.Decimals, 6),
	}).Info("Bridge parameters validated")

	token := common.HexToAddress(pair.SourceToken.Address)
	for _, spender := range spenders(choice.Tx.To, pair.ExtraSpenders) {
		if err := s.ensureAllowance(ctx, pair, token, spender, amount); err != nil {
			return nil, err
		}
	}

	tx, err := s.submit(ctx, pair, choice.Tx)
	if err != nil {
		return nil, err
	}

	result = &types.BridgeResult{
		TxHash:    tx.Hash().Hex(),
		FromChain: pair.Source.Name,
		ToChain:   pair.Dest.Name,
		FromToken: pair.SourceToken.Symbol,
		ToToken:   pair.DestToken.Symbol,
		Amount:    opts.Amount,
		Status:    types.StatusPending,
		Timestamp: s.now().UnixMilli(),
	}
	s.record(pair, choice, result)

	return result, nil
}

// request builds the aggregator parameters for pair
func (s *Service) request(pair chains.Pair, amount string, opts Options) types.QuoteRequest {
	slippage := opts.Slippage
	if slippage == "" {
		slippage = pair.DefaultSlippage
	}
	fee := opts.FeePercent
	if fee == "" {
		fee = s.cfg.FeePercent
	}
	return types.QuoteRequest{
		FromChainIndex:    pair.Source.ChainIndex,
		ToChainIndex:      pair.Dest.ChainIndex,
		FromChainID:       pair.Source.ChainID,
		ToChainID:         pair.Dest.ChainID,
		FromTokenAddress:  pair.SourceToken.Address,
		ToTokenAddress:    pair.DestToken.Address,
		Amount:            amount,
		Slippage:          slippage,
		UserWalletAddress: s.cfg.WalletAddress,
		FeePercent:        fee,
		ReferrerAddress:   opts.Referrer,
	}
}

// checkGas requires twice the estimated bridge gas cost in native balance
func (s *Service) checkGas(ctx context.Context, pair chains.Pair) (err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bridge.CheckGas")
	defer func() { telemetry.EndSpan(span, err) }()

	balance, err := s.wallet.NativeBalance(ctx, s.wallet.Address())
	if err != nil {
		return err
	}

	price, err := s.wallet.GasPrice(ctx)
	if err != nil {
		return err
	}
	if price == nil || price.Sign() == 0 {
		price = fallbackGasPrice
	}

	cost := new(big.Int).Mul(big.NewInt(EstimatedBridgeGas), price)
	required := new(big.Int).Mul(cost, big.NewInt(2))

	s.log.WithFields(logrus.Fields{
		"gas_limit": EstimatedBridgeGas,
		"gas_price": units.Format(price, 9, 4) + " gwei",
		"cost":      units.FromBaseUnits(cost, nativeDecimals) + " " + pair.Source.NativeSymbol,
		"available": units.FromBaseUnits(balance, nativeDecimals) + " " + pair.Source.NativeSymbol,
	}).Info("Gas estimation")

	if balance.Cmp(required) < 0 {
		return fmt.Errorf("%w: need ~%s %s plus safety margin, but have %s %s", types.ErrInsufficientGas,
			units.FromBaseUnits(cost, nativeDecimals), pair.Source.NativeSymbol,
			units.FromBaseUnits(balance, nativeDecimals), pair.Source.NativeSymbol)
	}

	s.log.Debug("Gas check passed")
	return nil
}

// build calls build-tx, retrying aggregator rejections whose code is configured as retryable
func (s *Service) build(ctx context.Context, req types.QuoteRequest) (options []types.BuildOption, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bridge.BuildTransaction")
	defer func() { telemetry.EndSpan(span, err) }()

	for attempt := 0; ; attempt++ {
		options, err = s.agg.BuildTransaction(ctx, req)
		if err == nil {
			if len(options) == 0 {
				return nil, fmt.Errorf("%w: no bridge transaction data received", types.ErrValidation)
			}
			return options, nil
		}

		var apiErr *client.APIError
		if attempt >= s.cfg.BuildRetries || !errors.As(err, &apiErr) || !apiErr.IsRetryable(s.cfg.RetryCodes) {
			return nil, err
		}

		wait := retryablehttp.DefaultBackoff(buildRetryWaitMin, buildRetryWaitMax, attempt, nil)
		s.log.WithFields(logrus.Fields{
			"code":    apiErr.Code,
			"attempt": attempt + 1,
			"wait":    wait,
		}).Warn("Aggregator rejected build, retrying")
		if err := s.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// spenders lists the aggregator target followed by the pair's extra spenders, without duplicates
func spenders(target string, extra []chains.Spender) []chains.Spender {
	out := []chains.Spender{{Name: "aggregator", Address: target}}
	for _, sp := range extra {
		dup := false
		for _, existing := range out {
			if strings.EqualFold(existing.Address, sp.Address) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, sp)
		}
	}
	return out
}

// ensureAllowance approves ApprovalMultiplier times amount for spender
func (s *Service) ensureAllowance(ctx context.Context, pair chains.Pair, token common.Address, spender chains.Spender, amount *big.Int) (err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bridge.Approve", trace.WithAttributes(
		attribute.String("bridge.spender", spender.Address),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	decimals := pair.SourceToken.Decimals
	symbol := pair.SourceToken.Symbol
	owner := s.wallet.Address()
	spenderAddr := common.HexToAddress(spender.Address)
	log := s.log.WithFields(logrus.Fields{"spender": spender.Name, "address": spender.Address})

	current, err := s.wallet.Allowance(ctx, token, owner, spenderAddr)
	if err != nil {
		return err
	}
	log.Debugf("Current allowance: %s %s", units.FromBaseUnits(current, decimals), symbol)

	balance, err := s.wallet.TokenBalance(ctx, token, owner)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: required %s %s, available %s %s", types.ErrInsufficientBalance,
			units.FromBaseUnits(amount, decimals), symbol, units.FromBaseUnits(balance, decimals), symbol)
	}

	approval := new(big.Int).Mul(amount, big.NewInt(ApprovalMultiplier))
	log.Infof("Approving %s %s (%dx buffer)", units.FromBaseUnits(approval, decimals), symbol, ApprovalMultiplier)

	tx, err := s.wallet.Approve(ctx, token, spenderAddr, approval)
	if err != nil {
		return err
	}
	s.metrics.RecordApproval()
	log.WithField("tx", tx.Hash().Hex()).Info("Approval submitted")

	receipt, err := s.wallet.WaitMined(ctx, tx)
	if err != nil {
		return err
	}
	log.WithField("block", receipt.BlockNumber).Info("Approval confirmed")

	updated, err := s.wallet.Allowance(ctx, token, owner, spenderAddr)
	if err != nil {
		return err
	}
	log.Infof("New allowance: %s %s", units.FromBaseUnits(updated, decimals), symbol)
	return nil
}

// submit sends the bridge transaction and waits for one confirmation
func (s *Service) submit(ctx context.Context, pair chains.Pair, payload types.TxPayload) (tx *ethtypes.Transaction, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bridge.Submit")
	defer func() { telemetry.EndSpan(span, err) }()

	tx, err = s.wallet.Send(ctx, payload)
	if err != nil {
		return nil, err
	}
	hash := tx.Hash().Hex()
	s.log.WithFields(logrus.Fields{
		"tx":       hash,
		"explorer": pair.Source.TxURL(hash),
		"eip1559":  payload.IsDynamicFee(),
	}).Info("Bridge transaction submitted")

	receipt, err := s.wallet.WaitMined(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w (check %s)", err, pair.Source.TxURL(hash))
	}
	s.log.WithField("block", receipt.BlockNumber).Info("Bridge transaction confirmed")
	return tx, nil
}

// record stores the result in the ledger; failures are logged since the transfer already happened
func (s *Service) record(pair chains.Pair, choice types.BuildOption, result *types.BridgeResult) {
	if s.ledger == nil {
		return
	}
	rec := &history.Record{
		Result:        *result,
		BridgeName:    choice.Route.BridgeName(),
		SourceChainID: pair.Source.ChainID,
		Destination:   string(pair.Dest.Key),
		ExplorerURL:   pair.Source.TxURL(result.TxHash),
	}
	if err := s.ledger.Add(rec); err != nil {
		s.log.WithError(err).Warn("Failed to record bridge in history")
	}
}
