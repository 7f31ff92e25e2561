package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"usdc-bridge/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [id-or-tx-hash]",
	Short: "List bridge transfers sent from this machine",
	Long: `List the bridge transfers recorded in the local history file, newest first.
Pass a record ID or a Base transaction hash to show a single transfer.

Examples:
  usdc-bridge history
  usdc-bridge history --limit 5
  usdc-bridge history 0x1234...abcd`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of transfers to show (0 shows all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	ledger, err := a.ledger()
	if err != nil {
		return err
	}

	var records []*history.Record
	if len(args) == 1 {
		rec, err := ledger.Lookup(args[0])
		if err != nil {
			return err
		}
		records = []*history.Record{rec}
	} else {
		records = ledger.List()
	}
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	if jsonOutput {
		printJSON(records)
		return nil
	}

	if len(records) == 0 {
		fmt.Println("\nNo bridge transfers recorded yet.")
		fmt.Printf("History file: %s\n\n", ledger.GetFilePath())
		return nil
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                              BRIDGE HISTORY")
	fmt.Println(strings.Repeat("=", 90))

	for _, rec := range records {
		fmt.Printf("\n  %s  %s %s → %s  via %s\n",
			rec.Created.Local().Format("2006-01-02 15:04"),
			color.YellowString(rec.Result.Amount),
			rec.Result.FromToken,
			rec.Result.ToChain,
			rec.BridgeName)
		fmt.Printf("    Status:  %s", getColoredStatus(string(rec.Status())))
		if rec.LastStatus != "" {
			fmt.Printf(" (%s, %d checks)", rec.LastStatus, rec.StatusChecks)
		}
		fmt.Println()
		fmt.Printf("    Tx:      %s\n", color.CyanString(rec.Result.TxHash))
		if rec.DestTxHash != "" {
			fmt.Printf("    Dest Tx: %s\n", color.HiBlackString(rec.DestTxHash))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nShowing %d of %d transfers (%s)\n\n", len(records), ledger.Count(), ledger.GetFilePath())
	return nil
}
