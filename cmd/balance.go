package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/evm"
	"usdc-bridge/pkg/units"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the wallet's USDC balances",
	Long: `Show the configured wallet's USDC balance on every supported chain and its
native balance on Base, which pays for approvals and bridge transactions.

Examples:
  usdc-bridge balance
  usdc-bridge balance --json`,
	Args: cobra.NoArgs,
	RunE: runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

type chainBalance struct {
	Chain   string `json:"chain"`
	ChainID string `json:"chainId"`
	USDC    string `json:"usdc,omitempty"`
	Native  string `json:"native,omitempty"`
	Symbol  string `json:"nativeSymbol,omitempty"`
	Error   string `json:"error,omitempty"`
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	owner := common.HexToAddress(a.cfg.WalletAddress)
	source := a.registry.Source()

	stop := startSpinner("Fetching balances...")
	var balances []chainBalance
	failed := 0
	for _, chain := range a.registry.Chains() {
		b := chainBalance{Chain: chain.Name, ChainID: chain.ChainID}
		if err := fetchBalance(ctx, a.registry, chain, owner, chain.Key == source.Key, &b); err != nil {
			a.log.WithError(err).WithField("chain", chain.Name).Debug("Balance lookup failed")
			b.Error = err.Error()
			failed++
		}
		balances = append(balances, b)
	}
	stop()

	if jsonOutput {
		printJSON(map[string]interface{}{
			"address":  owner.Hex(),
			"balances": balances,
		})
	} else {
		displayBalances(owner, balances)
	}

	if failed == len(balances) {
		return fmt.Errorf("no balance could be fetched")
	}
	return nil
}

func fetchBalance(ctx context.Context, registry *chains.Registry, chain chains.Chain, owner common.Address, native bool, out *chainBalance) error {
	token, err := registry.Token(chain.Key, chains.USDC)
	if err != nil {
		return err
	}

	c, err := evm.Dial(ctx, chain)
	if err != nil {
		return err
	}
	defer c.Close()

	bal, err := c.TokenBalance(ctx, common.HexToAddress(token.Address), owner)
	if err != nil {
		return err
	}
	out.USDC = units.FromBaseUnits(bal, token.Decimals)

	if native {
		wei, err := c.NativeBalance(ctx, owner)
		if err != nil {
			return err
		}
		out.Native = units.FromBaseUnits(wei, 18)
		out.Symbol = c.Chain().NativeSymbol
	}
	return nil
}

func displayBalances(owner common.Address, balances []chainBalance) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                          WALLET BALANCES")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Address: %s\n\n", color.CyanString(owner.Hex()))

	for _, b := range balances {
		if b.Error != "" {
			fmt.Printf("  %-18s %s\n", b.Chain, color.RedString("unavailable: %s", b.Error))
			continue
		}
		fmt.Printf("  %-18s %s USDC\n", b.Chain, color.YellowString(b.USDC))
		if b.Native != "" {
			fmt.Printf("  %-18s %s %s\n", "", color.HiBlackString(b.Native), b.Symbol)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
