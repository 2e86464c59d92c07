package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mimic-swap/pkg/history"
)

var historyStatusFilter string

var historyCmd = &cobra.Command{
	Use:   "history [attempt-id]",
	Short: "List swaps submitted from this machine",
	Long: `List the swap attempts recorded by 'mimic-swap swap', newest first.

Pass an attempt id (or a unique prefix of one) to show a single attempt.

Examples:
  mimic-swap history
  mimic-swap history --status failed
  mimic-swap history 3f2a`,
	Args: cobra.MaximumNArgs(1),
	Run:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyStatusFilter, "status", "", "Filter by status (running, completed, failed)")
}

func runHistory(cmd *cobra.Command, args []string) {
	a := mustLoadApp(cmd)
	defer a.Close()

	store, err := a.history()
	if err != nil {
		a.fail(err)
	}

	if len(args) == 1 {
		attempt, err := store.Get(args[0])
		if err != nil {
			a.fail(err)
		}
		if a.json {
			printJSON(attempt)
		} else {
			displayAttempt(attempt)
		}
		return
	}

	var attempts []*history.Attempt
	switch status := history.AttemptStatus(strings.ToLower(historyStatusFilter)); status {
	case "":
		attempts = store.List()
	case history.StatusRunning, history.StatusCompleted, history.StatusFailed:
		attempts = store.ListByStatus(status)
	default:
		a.fail(fmt.Errorf("unknown status %q", historyStatusFilter))
	}

	if a.json {
		if attempts == nil {
			attempts = []*history.Attempt{}
		}
		printJSON(attempts)
		return
	}

	if len(attempts) == 0 {
		color.Yellow("No swaps found.\n")
		fmt.Println("\nStart a swap with:")
		color.Cyan("  mimic-swap swap <amount> <token> to <token>\n")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 110))
	color.Green("                                           SWAP HISTORY")
	fmt.Println(strings.Repeat("=", 110))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tCREATED\tSWAP\tCONFIG\tSTATUS")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, at := range attempts {
		swap := fmt.Sprintf("%s %s -> %s %s", at.FromAmount, at.FromSymbol, at.ToAmount, at.ToSymbol)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(at.ID),
			at.Created.Local().Format("2006-01-02 15:04"),
			swap,
			truncateString(at.ConfigSig, 20),
			getColoredStatus(string(at.Status)))
	}

	w.Flush()
	fmt.Println("\n" + strings.Repeat("=", 110) + "\n")
}

func displayAttempt(at *history.Attempt) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAP DETAILS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  ID:              %s\n", color.CyanString(at.ID))
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(at.Status)))
	fmt.Printf("  Created:         %s\n", at.Created.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Last Updated:    %s\n", at.LastUpdated.Local().Format("2006-01-02 15:04:05"))

	fmt.Printf("\n  Swap:\n")
	fmt.Printf("    From:          %s %s (%s)\n", at.FromAmount, at.FromSymbol, at.FromToken.Address.Hex())
	fmt.Printf("    To:            ~%s %s (%s)\n", at.ToAmount, at.ToSymbol, at.ToToken.Address.Hex())
	fmt.Printf("    Chain:         %d\n", at.FromToken.ChainID)
	fmt.Printf("    Slippage:      %s%%\n", at.Slippage)
	fmt.Printf("    User:          %s\n", at.User)

	fmt.Printf("\n  Protocol:\n")
	fmt.Printf("    Config:        %s\n", color.CyanString(at.ConfigSig))
	if at.IntentHash != "" {
		fmt.Printf("    Intent:        %s\n", color.CyanString(at.IntentHash))
	}
	if at.Error != "" {
		fmt.Printf("    Failed Step:   %s\n", at.Step)
		fmt.Printf("    Error:         %s\n", color.RedString(at.Error))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
