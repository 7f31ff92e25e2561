package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"usdc-bridge/pkg/chains"
)

var (
	tokensChain string
	localChains bool
)

var bridgesCmd = &cobra.Command{
	Use:   "bridges",
	Short: "List the bridges supported by the aggregator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSupported(cmd, "Fetching supported bridges...", func(ctx context.Context, a *app) (json.RawMessage, error) {
			return a.okx.ListSupportedBridges(ctx)
		})
	},
}

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List the chains supported by the aggregator",
	Long: `List the chains supported by the aggregator.

Examples:
  usdc-bridge chains
  usdc-bridge chains --local`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if localChains {
			return runLocalChains(cmd)
		}
		return runSupported(cmd, "Fetching supported chains...", func(ctx context.Context, a *app) (json.RawMessage, error) {
			return a.okx.ListSupportedChains(ctx)
		})
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List the tokens the aggregator can bridge from a chain",
	Long: `List the tokens the aggregator can bridge from a chain.

The chain is a name (base, arbitrum, bsc, polygon) or a numeric chain ID.

Examples:
  usdc-bridge tokens
  usdc-bridge tokens --chain arbitrum
  usdc-bridge tokens --chain 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSupported(cmd, "Fetching supported tokens...", func(ctx context.Context, a *app) (json.RawMessage, error) {
			id, err := resolveChainID(a.registry, tokensChain)
			if err != nil {
				return nil, err
			}
			return a.okx.ListSupportedTokens(ctx, id)
		})
	},
}

func init() {
	rootCmd.AddCommand(bridgesCmd)
	rootCmd.AddCommand(chainsCmd)
	rootCmd.AddCommand(tokensCmd)

	chainsCmd.Flags().BoolVar(&localChains, "local", false, "Show the chains this tool bridges between instead")
	tokensCmd.Flags().StringVar(&tokensChain, "chain", string(chains.Base), "Chain name or ID")
}

// resolveChainID accepts a registry chain name or a raw numeric chain ID
func resolveChainID(registry *chains.Registry, s string) (string, error) {
	if key, err := chains.ParseKey(s); err == nil {
		c, err := registry.Chain(key)
		if err != nil {
			return "", err
		}
		return c.ChainID, nil
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return "", fmt.Errorf("%w: %q", chains.ErrUnknownChain, s)
	}
	return s, nil
}

func runSupported(cmd *cobra.Command, suffix string, fetch func(context.Context, *app) (json.RawMessage, error)) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	stop := startSpinner(suffix)
	data, err := fetch(ctx, a)
	stop()
	if err != nil {
		return err
	}

	printRawJSON(data)
	return nil
}

func runLocalChains(cmd *cobra.Command) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if jsonOutput {
		printJSON(a.registry.Chains())
		return nil
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            CONFIGURED CHAINS")
	fmt.Println(strings.Repeat("=", 90))

	for _, c := range a.registry.Chains() {
		token, err := a.registry.Token(c.Key, chains.USDC)
		if err != nil {
			continue
		}
		color.Cyan("\n%s", strings.ToUpper(c.Name))
		fmt.Println(strings.Repeat("-", 90))
		fmt.Printf("  Chain ID:  %s\n", c.ChainID)
		fmt.Printf("  RPC:       %s\n", color.HiBlackString(c.RPCURL))
		fmt.Printf("  USDC:      %s  %d decimals\n", color.YellowString(token.Address), token.Decimals)
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nBridge destinations: %d\n\n", len(a.registry.Destinations()))
	return nil
}
