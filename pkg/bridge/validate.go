package bridge

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/types"
)

// validateOption cross-checks the request and the selected option against the pair.
// Chain IDs echoed by the aggregator are only compared when present.
func validateOption(pair chains.Pair, req types.QuoteRequest, opt types.BuildOption) error {
	if req.FromChainID != pair.Source.ChainID {
		return fmt.Errorf("%w: invalid fromChainId: %s, should be %s", types.ErrValidation, req.FromChainID, pair.Source.ChainID)
	}
	if req.ToChainID != pair.Dest.ChainID {
		return fmt.Errorf("%w: invalid toChainId: %s, should be %s", types.ErrValidation, req.ToChainID, pair.Dest.ChainID)
	}

	if opt.FromChainID != "" && opt.FromChainID != pair.Source.ChainID {
		return fmt.Errorf("%w: route built for source chain %s, expected %s", types.ErrValidation, opt.FromChainID, pair.Source.ChainID)
	}
	if opt.ToChainID != "" && opt.ToChainID != pair.Dest.ChainID {
		return fmt.Errorf("%w: route built for destination chain %s, expected %s", types.ErrValidation, opt.ToChainID, pair.Dest.ChainID)
	}

	if opt.FromTokenAmount != "" && !sameAmount(opt.FromTokenAmount, req.Amount) {
		return fmt.Errorf("%w: amount mismatch: got %s, expected %s", types.ErrValidation, opt.FromTokenAmount, req.Amount)
	}

	if !common.IsHexAddress(opt.Tx.To) {
		return fmt.Errorf("%w: invalid transaction target %q", types.ErrValidation, opt.Tx.To)
	}
	if !strings.HasPrefix(opt.Tx.Data, "0x") {
		return fmt.Errorf("%w: transaction data is not hex encoded", types.ErrValidation)
	}

	return nil
}

// validateSlippage requires a fraction in (0, 1], 0.01 being 1%
func validateSlippage(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: slippage %q is not a number", types.ErrValidation, s)
	}
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: slippage %s must be a fraction between 0 and 1 (0.01 = 1%%)", types.ErrValidation, s)
	}
	return nil
}

// sameAmount compares two base-unit integers numerically
func sameAmount(a, b string) bool {
	x, ok := new(big.Int).SetString(strings.TrimSpace(a), 10)
	if !ok {
		return false
	}
	y, ok := new(big.Int).SetString(strings.TrimSpace(b), 10)
	if !ok {
		return false
	}
	return x.Cmp(y) == 0
}
