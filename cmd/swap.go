package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mimic-swap/pkg/history"
	"mimic-swap/pkg/parser"
	"mimic-swap/pkg/pricing"
	"mimic-swap/pkg/server"
	"mimic-swap/pkg/timeline"
	"mimic-swap/pkg/timeline/steps"
	"mimic-swap/pkg/tokens"
	"mimic-swap/pkg/types"
	"mimic-swap/pkg/units"
)

var (
	swapChain    string
	swapSlippage string
	noConfirm    bool
	listenAddr   string
	retryFailed  bool
)

// maxRetries bounds --retry re-submissions per swap
const maxRetries = 3

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token> [on <chain>]",
	Short: "Swap tokens through the Mimic Protocol",
	Long: `Swap tokens on Optimism or Arbitrum through the Mimic Protocol.

The swap runs as a timeline of three steps:
  1. Check Approval      approve the protocol to spend the input token
  2. Create Swap Config  sign and submit the swap config
  3. Waiting for Intent  follow the execution until the intent settles

Examples:
  # Swap on the configured chain
  mimic-swap swap 100 USDC to WETH

  # Swap on Arbitrum with 1% slippage
  mimic-swap swap 0.5 ETH to USDC on arbitrum --slippage 1

  # Expose the timeline on http://localhost:8080/timeline while it runs
  mimic-swap swap 100 USDC to DAI --listen :8080

  # Skip confirmations and resubmit failed steps
  mimic-swap swap 100 USDC to WETH --yes --retry`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&swapChain, "chain", "", "Chain to swap on (optimism, arbitrum or a chain id)")
	swapCmd.Flags().StringVar(&swapSlippage, "slippage", "", "Slippage tolerance in percent (default 0.5)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
	swapCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve the timeline state on this address while the swap runs")
	swapCmd.Flags().BoolVar(&retryFailed, "retry", false, "Offer to resubmit a failed step")
}

func runSwap(cmd *cobra.Command, args []string) {
	// Parse the command
	swapReq, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if swapSlippage != "" {
		swapReq.Slippage = swapSlippage
	}
	if err := parser.ValidateSwapRequest(swapReq); err != nil {
		printError(err)
		os.Exit(1)
	}

	a := mustLoadApp(cmd)
	defer a.Close()

	chainID := a.cfg.ChainID
	switch {
	case swapChain != "":
		if chainID, err = parser.ParseChain(swapChain); err != nil {
			a.fail(err)
		}
	case swapReq.ChainID != 0:
		chainID = swapReq.ChainID
	}
	swapReq.ChainID = chainID

	list, err := a.tokenList()
	if err != nil {
		a.fail(err)
	}
	from, err := list.FindSymbol(chainID, swapReq.SourceToken)
	if err != nil {
		a.fail(fmt.Errorf("%w (try: mimic-swap tokens --chain %d)", err, chainID))
	}
	to, err := list.FindSymbol(chainID, swapReq.DestToken)
	if err != nil {
		a.fail(fmt.Errorf("%w (try: mimic-swap tokens --chain %d)", err, chainID))
	}
	amount, err := units.ParseUnits(swapReq.Amount, from.Decimals)
	if err != nil {
		a.fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := a.wallet(chainID)
	if err != nil {
		a.fail(err)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !a.json {
		s.Suffix = " Signing in..."
		s.Start()
	}
	session, err := a.session(ctx, w)
	if err != nil {
		s.Stop()
		a.fail(fmt.Errorf("sign-in failed: %w", err))
	}

	if !a.json {
		s.Suffix = " Fetching prices..."
	}
	quote, err := a.pricer().Convert(ctx, from, to, swapReq.Amount, swapReq.Slippage)
	if err != nil {
		a.log.Warn().Err(err).Msg("Price conversion unavailable")
		quote = &pricing.Quote{}
	}
	balance, balErr := w.Balance(ctx, from.Address, w.Address())
	s.Stop()

	if a.json {
		printJSON(map[string]any{
			"from_amount": swapReq.Amount,
			"from_token":  from.Symbol,
			"to_amount":   quote.Amount,
			"to_token":    to.Symbol,
			"slippage":    swapReq.Slippage,
			"chain_id":    chainID,
			"status":      "quote_generated",
		})
	} else {
		displayQuote(swapReq, from, to, quote, a.cfg.Spender.Hex())
		switch {
		case balErr != nil:
			color.Yellow("  Could not read balance: %v\n", balErr)
		case balance.Cmp(amount) < 0:
			color.Yellow("  Balance of %s %s is below the swap amount\n",
				units.FormatUnits(balance, from.Decimals), from.Symbol)
		default:
			fmt.Printf("  Balance:           %s %s\n", units.FormatUnits(balance, from.Decimals), from.Symbol)
		}
	}

	// The config step waits for an output estimate
	if quote.Amount == "" {
		a.fail(errors.New("could not estimate the output amount, try again later"))
	}

	// Ask for confirmation
	if !noConfirm && !a.json {
		if !confirm("\nProceed with swap? (y/N): ") {
			fmt.Println("\nSwap cancelled.")
			return
		}
	}

	api, err := a.protocol(session.APIKey)
	if err != nil {
		a.fail(err)
	}
	store, err := a.history()
	if err != nil {
		a.fail(err)
	}
	rec := history.NewRecorder(store, a.log)

	loop := timeline.NewEventLoop()
	go loop.Run(ctx)

	tl, err := timeline.New(steps.Definitions(steps.Deps{
		Approver: w,
		Approval: steps.ApprovalOptions{
			Spender: a.cfg.Spender,
			Policy:  a.cfg.ApprovalPolicy,
		},
		Creator: rec.Creator(api),
		Config: steps.ConfigOptions{
			TaskCID:        a.cfg.TaskCID,
			ScheduleOffset: a.cfg.ScheduleOffset,
			Validity:       a.cfg.ConfigValidity,
			TriggerDelta:   a.cfg.TriggerDelta,
			Signer:         w,
		},
		Intents: rec.Intents(api),
		Intent: steps.IntentOptions{
			PollInterval:     a.cfg.PollInterval,
			ExecutionTimeout: a.cfg.ExecutionTimeout,
		},
	}), loop, a.log)
	if err != nil {
		a.fail(err)
	}

	feed := newStateFeed()
	tl.OnChange(func(state timeline.State) {
		rec.Observe(state)
		feed.push(state)
	})

	if listenAddr != "" {
		srv := server.NewServer(tl, rec, a.log)
		if err := srv.Start(listenAddr); err != nil {
			a.fail(err)
		}
		a.onClose(func() { _ = srv.Shutdown() })
		if !a.json {
			fmt.Printf("\nTimeline served on %s\n", color.CyanString("http://%s/timeline", listenAddr))
		}
	}

	user := w.Address()
	in := timeline.Inputs{
		FromToken:   from.Timeline(),
		ToToken:     to.Timeline(),
		FromAmount:  swapReq.Amount,
		ToAmount:    quote.Amount,
		Slippage:    swapReq.Slippage,
		UserAddress: &user,
		IsVisible:   true,
		ResetKey:    1,
	}
	rec.Begin(from.Symbol, to.Symbol, in)

	if !a.json {
		fmt.Println()
	}
	tl.Update(in)

	view := newTimelineView(a.json)
	final := followTimeline(ctx, tl, feed, view, func(failed timeline.SwapStep, attempt int) bool {
		if !retryFailed || attempt > maxRetries {
			return false
		}
		if !noConfirm && (a.json || !confirm(fmt.Sprintf("\nRetry %s? (y/N): ", failed.Title))) {
			return false
		}
		switch failed.ID {
		case steps.Approval, steps.Config:
			tl.Retry(failed.ID)
		default:
			// the intent cannot be resubmitted; start a new attempt
			in.ResetKey++
			rec.Begin(from.Symbol, to.Symbol, in)
			view.Reset()
			tl.Update(in)
		}
		return true
	})
	view.Stop()
	tl.Close()

	if a.json {
		printJSON(final)
	} else {
		printTimelineSummary(final)
	}

	if attempt, ok := rec.Current(); ok && !a.json {
		fmt.Printf("\n  Config:  %s\n", color.CyanString(attempt.ConfigSig))
		if attempt.IntentHash != "" {
			fmt.Printf("  Intent:  %s\n", color.CyanString(attempt.IntentHash))
		}
		fmt.Println("\nYou can check the swap later using:")
		color.Cyan("  mimic-swap status %s\n", attempt.ConfigSig)
	}

	if !final.Completed() {
		a.Close()
		os.Exit(1)
	}
}

// followTimeline renders states until the swap completes, fails without a
// retry, or ctx ends. onFailure returns whether a retry was started
func followTimeline(
	ctx context.Context, tl *timeline.Timeline, feed *stateFeed, view *timelineView,
	onFailure func(failed timeline.SwapStep, attempt int) bool,
) timeline.State {
	var (
		attempts int
		handled  uint64 // seq of the last failure handed to onFailure
	)
	for {
		select {
		case <-ctx.Done():
			return tl.State()
		case <-feed.ready:
			state, seq := feed.latest()
			view.Render(state)
			if state.Completed() {
				return state
			}
			failed, ok := state.Failed()
			if !ok || seq <= handled {
				continue
			}
			handled = seq
			view.Stop()
			attempts++
			if !onFailure(failed, attempts) {
				return state
			}
		}
	}
}

// stateFeed hands the newest published state to the render loop, dropping
// intermediate ones
type stateFeed struct {
	mu    sync.Mutex
	state timeline.State
	seq   uint64
	ready chan struct{}
}

func newStateFeed() *stateFeed {
	return &stateFeed{ready: make(chan struct{}, 1)}
}

func (f *stateFeed) push(state timeline.State) {
	f.mu.Lock()
	f.state = state
	f.seq++
	f.mu.Unlock()

	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *stateFeed) latest() (timeline.State, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.seq
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print(prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func displayQuote(
	req *types.SwapRequest, from, to tokens.Token, quote *pricing.Quote, spender string,
) {
	d := types.QuoteDisplay{
		SourceAmount: req.Amount,
		SourceToken:  from.Symbol,
		DestAmount:   quote.Amount,
		DestToken:    to.Symbol,
		Slippage:     req.Slippage + "%",
		Chain:        parser.ChainName(req.ChainID),
		Spender:      spender,
	}
	if d.DestAmount == "" {
		d.DestAmount = "unknown"
	}
	if quote.Rate > 0 {
		d.Rate = fmt.Sprintf("1 %s = %.6f %s", from.Symbol, quote.Rate, to.Symbol)
		d.SourceUSD = fmt.Sprintf("$%.4f", quote.FromUSD)
		d.DestUSD = fmt.Sprintf("$%.4f", quote.ToUSD)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Chain:             %s\n", d.Chain)
	fmt.Printf("  From:              %s %s\n", d.SourceAmount, color.YellowString(d.SourceToken))
	fmt.Printf("  To:                ~%s %s\n", d.DestAmount, color.YellowString(d.DestToken))
	if d.Rate != "" {
		fmt.Printf("  Rate:              %s\n", d.Rate)
		fmt.Printf("  USD Prices:        %s / %s\n", d.SourceUSD, d.DestUSD)
	}
	fmt.Printf("  Slippage:          %s\n", d.Slippage)
	if !from.IsNative() {
		fmt.Printf("  Spender:           %s\n", color.HiBlackString(d.Spender))
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
}
