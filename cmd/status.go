package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"usdc-bridge/pkg/bridge"
	"usdc-bridge/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
	maxChecks     int
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the status of a bridge transfer",
	Long: `Check the status of a bridge transfer by its Base transaction hash.

Examples:
  usdc-bridge status 0x1234...abcd
  usdc-bridge status 0x1234...abcd --watch
  usdc-bridge status 0x1234...abcd --watch --interval 30`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Poll until the transfer completes or fails")
	statusCmd.Flags().IntVar(&watchInterval, "interval", int(bridge.DefaultStatusInterval/time.Second), "Polling interval in seconds (when watching)")
	statusCmd.Flags().IntVar(&maxChecks, "max-checks", 0, "Stop watching after this many checks (0 means no limit)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	txHash := args[0]

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	opts := []bridge.Option{}
	ledger, err := a.ledger()
	if err != nil {
		a.log.WithError(err).Warn("History unavailable, status will not be recorded")
	} else {
		opts = append(opts, bridge.WithLedger(ledger))
	}
	svc := a.service(opts...)

	if !watchStatus {
		stop := startSpinner("Checking bridge status...")
		resp, err := svc.Status(ctx, txHash)
		stop()
		if err != nil {
			return err
		}

		if jsonOutput {
			printRawJSON(resp.Raw)
			return nil
		}
		displayStatus(resp, txHash)
		return nil
	}

	if !jsonOutput {
		fmt.Printf("\nWatching bridge status (Transaction: %s)\n", color.CyanString(txHash))
		fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)
	}

	status, err := svc.WatchStatus(ctx, txHash, time.Duration(watchInterval)*time.Second, maxChecks, func(u bridge.StatusUpdate) {
		if jsonOutput {
			printRawJSON(u.Response.Raw)
			return
		}
		displayStatus(u.Response, txHash)
	})
	if err != nil {
		return err
	}

	if !jsonOutput {
		switch status {
		case types.StatusCompleted:
			printSuccess("Bridge completed")
		case types.StatusFailed:
			color.Red("\nBridge failed\n")
		default:
			fmt.Printf("\nStopped watching, transfer still %s\n\n", getColoredStatus(string(status)))
		}
	}
	return nil
}

func displayStatus(resp *types.StatusResponse, txHash string) {
	status, raw := bridge.ClassifyStatus(resp)

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                          BRIDGE STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Transaction:     %s\n", color.CyanString(txHash))
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(status)))
	if raw != "" {
		fmt.Printf("  Reported:        %s\n", raw)
	}
	fmt.Printf("  Checked:         %s\n", time.Now().Format("2006-01-02 15:04:05"))

	for _, rec := range resp.Records {
		if rec.CrossChainResult == nil {
			continue
		}
		if rec.CrossChainResult.ToChainID != "" {
			fmt.Printf("  Destination:     chain %s\n", rec.CrossChainResult.ToChainID)
		}
		if rec.CrossChainResult.ToChainTxHash != "" {
			fmt.Printf("  Destination Tx:  %s\n", color.HiBlackString(rec.CrossChainResult.ToChainTxHash))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "SUCCESS", "COMPLETED":
		return color.GreenString(status)
	case "PENDING", "PROCESSING":
		return color.YellowString(status)
	case "FAILED", "FAILURE", "REFUNDED":
		return color.RedString(status)
	default:
		return status
	}
}
