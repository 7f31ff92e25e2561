package cmd

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"usdc-bridge/pkg/chains"
	"usdc-bridge/pkg/evm"
	"usdc-bridge/pkg/units"
)

var allowancesCmd = &cobra.Command{
	Use:     "check-allowances",
	Aliases: []string{"allowances"},
	Short:   "Show USDC allowances granted to known bridge contracts on Base",
	Args:    cobra.NoArgs,
	RunE:    runAllowances,
}

func init() {
	rootCmd.AddCommand(allowancesCmd)
}

type allowanceEntry struct {
	Spender   string `json:"spender"`
	Address   string `json:"address"`
	Allowance string `json:"allowance"`
}

func runAllowances(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	source := a.registry.Source()
	token, err := a.registry.Token(source.Key, chains.USDC)
	if err != nil {
		return err
	}
	owner := common.HexToAddress(a.cfg.WalletAddress)
	tokenAddr := common.HexToAddress(token.Address)

	c, err := evm.Dial(ctx, source)
	if err != nil {
		return err
	}
	defer c.Close()

	stop := startSpinner("Reading allowances...")
	balance, err := c.TokenBalance(ctx, tokenAddr, owner)
	if err != nil {
		stop()
		return err
	}

	var entries []allowanceEntry
	for _, sp := range a.registry.KnownSpenders() {
		amount, err := c.Allowance(ctx, tokenAddr, owner, common.HexToAddress(sp.Address))
		if err != nil {
			stop()
			return fmt.Errorf("allowance for %s: %w", sp.Name, err)
		}
		entries = append(entries, allowanceEntry{
			Spender:   sp.Name,
			Address:   sp.Address,
			Allowance: units.FromBaseUnits(amount, token.Decimals),
		})
	}
	stop()

	if jsonOutput {
		printJSON(map[string]interface{}{
			"address":    owner.Hex(),
			"token":      token.Address,
			"balance":    units.FromBaseUnits(balance, token.Decimals),
			"allowances": entries,
		})
		return nil
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        USDC ALLOWANCES (%s)", source.Name)
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Wallet:   %s\n", color.CyanString(owner.Hex()))
	fmt.Printf("  Balance:  %s USDC\n\n", color.YellowString(units.FromBaseUnits(balance, token.Decimals)))

	for _, e := range entries {
		value := e.Allowance
		if value == "0" {
			value = color.RedString(value)
		} else {
			value = color.GreenString(value)
		}
		fmt.Printf("  %-20s %s USDC\n", e.Spender, value)
		fmt.Printf("  %-20s %s\n", "", color.HiBlackString(e.Address))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")

	if balance.Cmp(big.NewInt(0)) == 0 {
		color.Yellow("No USDC on %s, bridging will fail until the wallet is funded.\n\n", source.Name)
	}
	return nil
}
