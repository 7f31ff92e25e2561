package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"usdc-bridge/pkg/bridge"
	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/types"
)

type executeFlags struct {
	dest     string
	slippage string
	referrer string
	fee      string
}

// newExecuteCmd builds an execute command bound to a destination. When
// selectable is set the destination can be changed with --to.
func newExecuteCmd(use string, dest chains.Key, selectable bool) *cobra.Command {
	flags := &executeFlags{dest: string(dest)}
	destName := strings.ToUpper(string(dest)[:1]) + string(dest)[1:]

	cmd := &cobra.Command{
		Use:   use + " <amount>",
		Short: fmt.Sprintf("Bridge USDC from Base to %s", destName),
		Long: fmt.Sprintf(`Bridge USDC from Base to %[1]s through the OKX cross-chain aggregator.

The command checks the ETH balance for gas, fetches a fresh route, approves the
route's spender contracts and submits the bridge transaction. It returns once the
transaction is confirmed on Base; use "usdc-bridge status <tx>" to follow delivery.

Examples:
  usdc-bridge %[2]s 10
  usdc-bridge %[2]s 10 --slippage 0.05
  usdc-bridge %[2]s 10 --fee 0.3 --referrer 0x1234...abcd`, destName, use),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, args[0], flags)
		},
	}

	if selectable {
		cmd.Flags().StringVar(&flags.dest, "to", flags.dest, "Destination chain (arbitrum, bsc, polygon)")
	}
	cmd.Flags().StringVarP(&flags.slippage, "slippage", "s", "", "Slippage tolerance as a fraction, e.g. 0.01 = 1% (default per destination)")
	cmd.Flags().StringVarP(&flags.referrer, "referrer", "r", "", "Referrer address for the integrator fee")
	cmd.Flags().StringVarP(&flags.fee, "fee", "f", "", "Integrator fee percent (default from FEE_PERCENT)")

	return cmd
}

func init() {
	rootCmd.AddCommand(newExecuteCmd("execute", chains.Arbitrum, true))
	rootCmd.AddCommand(newExecuteCmd("execute-bsc", chains.BSC, false))
	rootCmd.AddCommand(newExecuteCmd("execute-polygon", chains.Polygon, false))
}

func runExecute(cmd *cobra.Command, amount string, flags *executeFlags) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	key, err := chains.ParseKey(flags.dest)
	if err != nil {
		return err
	}
	pair, err := a.registry.Pair(key)
	if err != nil {
		return err
	}

	ledger, err := a.ledger()
	if err != nil {
		return err
	}

	wallet, err := a.wallet(ctx)
	if err != nil {
		return err
	}
	defer wallet.Close()

	if !jsonOutput {
		fmt.Printf("\nBridging %s USDC: %s\n", color.CyanString(amount), color.CyanString(pair.String()))
		fmt.Printf("Wallet: %s on %s\n\n", color.HiBlackString(wallet.Address().Hex()), wallet.Chain().Name)
	}

	svc := a.service(bridge.WithWallet(wallet), bridge.WithLedger(ledger))
	result, err := svc.ExecuteBridge(ctx, pair, bridge.Options{
		Amount:     amount,
		Slippage:   flags.slippage,
		Referrer:   flags.referrer,
		FeePercent: flags.fee,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(result)
		return nil
	}

	displayResult(result, pair)
	return nil
}

func displayResult(result *types.BridgeResult, pair chains.Pair) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                     BRIDGE TRANSACTION SENT")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Transaction:  %s\n", color.CyanString(result.TxHash))
	fmt.Printf("  Explorer:     %s\n", color.HiBlackString(pair.Source.TxURL(result.TxHash)))
	fmt.Printf("  From:         %s %s on %s\n", result.Amount, result.FromToken, result.FromChain)
	fmt.Printf("  To:           %s on %s\n", result.ToToken, result.ToChain)
	fmt.Printf("  Status:       %s\n", getColoredStatus(string(result.Status)))
	fmt.Printf("  Submitted:    %s\n", time.UnixMilli(result.Timestamp).Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("\nTrack delivery with: usdc-bridge status %s --watch\n\n", result.TxHash)
}
