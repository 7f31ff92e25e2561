package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	jsonOutput bool
	cfgFile    string
)

var rootCmd = &cobra.Command{
	Use:   "usdc-bridge",
	Short: "Bridge USDC from Base to Arbitrum, BSC or Polygon using the OKX cross-chain aggregator",
	Long: `usdc-bridge asks the OKX Web3 cross-chain aggregator for a route, approves the
USDC allowances the route needs, then signs and submits the bridge transaction from
your own wallet on Base.

Examples:
  usdc-bridge quote 10
  usdc-bridge execute 10
  usdc-bridge execute-bsc 25 --slippage 0.05
  usdc-bridge status 0x1234...abcd --watch
  usdc-bridge balance`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any error. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		return err
	}
	return nil
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.usdc-bridge.yaml)")
}

func printError(err error) {
	if jsonOutput {
		printJSON(map[string]string{"error": err.Error()})
		return
	}
	fmt.Fprintf(os.Stderr, "\n%s %v\n\n", color.RedString("Error:"), err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", color.GreenString(message))
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printRawJSON(raw []byte) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return
	}
	printJSON(v)
}
