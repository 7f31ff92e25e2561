package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/types"
	"usdc-bridge/pkg/units"
)

var (
	quoteDest     string
	quoteSlippage string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount>",
	Short: "Estimate a bridge without sending any transaction",
	Long: `Fetch the available routes for bridging USDC from Base and show the best one.

Nothing is signed or submitted.

Examples:
  usdc-bridge quote 10
  usdc-bridge quote 10 --to bsc
  usdc-bridge quote 10 --to polygon --slippage 0.05`,
	Args: cobra.ExactArgs(1),
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteDest, "to", string(chains.Arbitrum), "Destination chain (arbitrum, bsc, polygon)")
	quoteCmd.Flags().StringVarP(&quoteSlippage, "slippage", "s", "", "Slippage tolerance as a fraction, e.g. 0.01 = 1% (default per destination)")
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	key, err := chains.ParseKey(quoteDest)
	if err != nil {
		return err
	}
	pair, err := a.registry.Pair(key)
	if err != nil {
		return err
	}

	stop := startSpinner("Fetching bridge routes...")
	est, err := a.service().Estimate(ctx, pair, args[0], quoteSlippage)
	stop()
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(est)
		return nil
	}

	displayEstimate(est, pair)
	return nil
}

func displayEstimate(est *types.Estimate, pair chains.Pair) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                          BRIDGE QUOTE")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Route:            %s\n", color.CyanString(pair.String()))
	fmt.Printf("  Bridge:           %s\n", color.YellowString(est.BridgeName))
	fmt.Printf("  You send:         %s %s\n", est.FromAmount, pair.SourceToken.Symbol)
	fmt.Printf("  You receive:      %s %s\n", color.GreenString(est.ToAmount), pair.DestToken.Symbol)
	fmt.Printf("  Minimum receive:  %s %s\n", est.MinimumReceive, pair.DestToken.Symbol)
	fmt.Printf("  Exchange rate:    %s\n", est.ExchangeRate)
	fmt.Printf("  Price impact:     %s%%\n", est.PriceImpact)
	fmt.Printf("  Estimated time:   %s\n", est.EstimatedTime)
	if est.CrossChainFee != "" {
		fmt.Printf("  Bridge fee:       %s\n", est.CrossChainFee)
	}
	if est.OtherNativeFee != "" && est.OtherNativeFee != "0" {
		fmt.Printf("  Native fee:       %s %s\n", est.OtherNativeFee, pair.Source.NativeSymbol)
	}

	if len(est.Routes) > 1 {
		color.Cyan("\n  Other routes")
		fmt.Println("  " + strings.Repeat("-", 66))
		for _, r := range est.Routes[1:] {
			fmt.Printf("  %-20s  %s %s\n",
				r.BridgeName(),
				units.FormatString(r.ToTokenAmount, pair.DestToken.Decimals, 6),
				pair.DestToken.Symbol)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
