package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mimic-swap/pkg/history"
	"mimic-swap/pkg/protocol"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <config-sig>",
	Short: "Check the status of a swap",
	Long: `Check the execution and intent status of a swap by its config signature.

The signature is printed when a swap is submitted and listed by
'mimic-swap history'.

Examples:
  mimic-swap status 0x1234...abcd
  mimic-swap status 0x1234...abcd --watch
  mimic-swap status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

// swapStatus is what one status check learns about a config
type swapStatus struct {
	ConfigSig  string                `json:"config_sig"`
	Executions int                   `json:"executions"`
	IntentHash string                `json:"intent_hash,omitempty"`
	Intent     *protocol.Intent      `json:"intent,omitempty"`
	Attempt    *history.Attempt      `json:"attempt,omitempty"`
	Status     protocol.IntentStatus `json:"status"`
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the intent settles")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	configSig := args[0]

	a := mustLoadApp(cmd)
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Use a stored session when there is one; the lookup works without
	apiKey := ""
	if signer, err := a.signer(); err == nil {
		if ac, err := a.authClient(); err == nil {
			if session, err := ac.Load(ctx, signer.Address()); err == nil {
				apiKey = session.APIKey
			} else {
				a.log.Debug().Err(err).Msg("Continuing without an API key")
			}
		}
	}
	api, err := a.protocol(apiKey)
	if err != nil {
		a.fail(err)
	}

	var store *history.Storage
	if s, err := a.history(); err == nil {
		store = s
	}

	if watchStatus {
		watchSwapStatus(ctx, a, api, store, configSig)
	} else {
		checkSwapStatus(ctx, a, api, store, configSig)
	}
}

func fetchSwapStatus(
	ctx context.Context, api *protocol.Client, store *history.Storage, configSig string,
) (*swapStatus, error) {
	res := &swapStatus{ConfigSig: configSig, Status: "waiting"}
	if store != nil {
		if attempt, err := store.FindBySig(configSig); err == nil {
			res.Attempt = attempt
		}
	}

	execs, err := api.Executions(ctx, configSig)
	if err != nil {
		return nil, err
	}
	res.Executions = len(execs)
	for _, e := range execs {
		if hash, ok := e.IntentHash(); ok {
			res.IntentHash = hash
			break
		}
	}
	if res.IntentHash == "" {
		return res, nil
	}

	intent, err := api.IntentByHash(ctx, res.IntentHash)
	if err != nil {
		return nil, err
	}
	res.Intent = intent
	res.Status = intent.Status
	return res, nil
}

func checkSwapStatus(
	ctx context.Context, a *app, api *protocol.Client, store *history.Storage, configSig string,
) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !a.json {
		s.Suffix = " Checking swap status..."
		s.Start()
	}

	status, err := fetchSwapStatus(ctx, api, store, configSig)
	if !a.json {
		s.Stop()
	}

	if err != nil {
		a.fail(err)
	}

	if a.json {
		printJSON(status)
	} else {
		displayStatus(status)
	}
}

func watchSwapStatus(
	ctx context.Context, a *app, api *protocol.Client, store *history.Storage, configSig string,
) {
	if a.json {
		a.fail(errors.New("watch mode not supported with JSON output"))
	}

	fmt.Printf("\nWatching swap status (Config: %s)\n", color.CyanString(configSig))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first, then periodically until terminal
	for {
		status, err := fetchSwapStatus(ctx, api, store, configSig)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			displayStatus(status)
			if status.Status.IsTerminal() {
				if status.Status != protocol.IntentSucceeded {
					a.Close()
					os.Exit(1)
				}
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func displayStatus(status *swapStatus) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAP STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Config:          %s\n", color.CyanString(status.ConfigSig))
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(status.Status)))
	fmt.Printf("  Executions:      %d\n", status.Executions)

	if status.IntentHash != "" {
		fmt.Printf("  Intent:          %s\n", color.HiBlackString(status.IntentHash))
	}
	if status.Intent != nil && status.Intent.Settler != "" {
		fmt.Printf("  Settler:         %s\n", color.HiBlackString(status.Intent.Settler))
	}
	if status.Intent != nil && status.Intent.Deadline > 0 {
		deadline := time.Unix(status.Intent.Deadline, 0)
		fmt.Printf("  Deadline:        %s\n", deadline.Format("2006-01-02 15:04:05"))
	}

	// Details recorded when the swap was submitted from this machine
	if a := status.Attempt; a != nil {
		fmt.Printf("  Swap:            %s %s -> ~%s %s\n",
			a.FromAmount, color.YellowString(a.FromSymbol), a.ToAmount, color.YellowString(a.ToSymbol))
		fmt.Printf("  Submitted:       %s\n", a.Created.Local().Format("2006-01-02 15:04:05"))
		if a.Error != "" {
			fmt.Printf("  Last Error:      %s\n", color.RedString(a.Error))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "SUCCEEDED", "COMPLETED":
		return color.GreenString(status)
	case "CREATED", "ENQUEUED", "SUBMITTED", "RUNNING", "WAITING":
		return color.YellowString(status)
	case "FAILED", "DISCARDED", "EXPIRED":
		return color.RedString(status)
	default:
		return status
	}
}
