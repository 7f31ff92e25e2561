package bridge

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/telemetry"
	"usdc-bridge/pkg/types"
	"usdc-bridge/pkg/units"
)

// Estimate quotes a transfer without touching the chain. Amounts in the result are in human units.
func (s *Service) Estimate(ctx context.Context, pair chains.Pair, amount, slippage string) (est *types.Estimate, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bridge.Estimate", trace.WithAttributes(
		attribute.String("bridge.destination", string(pair.Dest.Key)),
	))
	defer func() { telemetry.EndSpan(span, err) }()

	base, err := units.ToBaseUnitsString(amount, pair.SourceToken.Decimals)
	if err != nil {
		return nil, err
	}

	req := s.request(pair, base, Options{Amount: amount, Slippage: slippage})
	req.Sort = types.SortOptimal
	if err := validateSlippage(req.Slippage); err != nil {
		return nil, err
	}
	// quotes are requested without the integrator fee
	req.FeePercent = ""

	routes, err := s.agg.GetQuote(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: no bridge routes available for %s", types.ErrValidation, pair)
	}

	best := routes[0]
	fromBase := best.FromTokenAmount
	if fromBase == "" {
		fromBase = req.Amount
	}

	from := units.FormatString(fromBase, pair.SourceToken.Decimals, 6)
	to := units.FormatString(best.ToTokenAmount, pair.DestToken.Decimals, 6)

	return &types.Estimate{
		FromAmount:     from,
		ToAmount:       to,
		MinimumReceive: units.FormatString(best.MinimumReceive, pair.DestToken.Decimals, 6),
		BridgeName:     best.BridgeName(),
		EstimatedTime:  best.EstimateTime + " seconds",
		CrossChainFee:  best.Router.CrossChainFee,
		OtherNativeFee: best.Router.OtherNativeFee,
		PriceImpact:    units.ShortfallPercent(from, to, 2),
		ExchangeRate:   units.Ratio(to, from, 6),
		Routes:         routes,
	}, nil
}
