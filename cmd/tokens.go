package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mimic-swap/pkg/client"
	"mimic-swap/pkg/parser"
	"mimic-swap/pkg/pricing"
	"mimic-swap/pkg/tokens"
)

var (
	filterChain  string
	filterSymbol string
	withPrices   bool
)

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List the tokens a swap can use",
	Long: `List the tokens of the configured token list, grouped by chain.

You can filter tokens by chain or symbol and look up USD prices.

Examples:
  mimic-swap tokens
  mimic-swap tokens --chain arbitrum
  mimic-swap tokens --symbol USDC --prices`,
	Run: runListTokens,
}

// tokenRow is a token as listed, with its price when one was requested
type tokenRow struct {
	tokens.Token
	USDPrice *float64 `json:"usdPrice,omitempty"`
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by chain (name or id)")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().BoolVar(&withPrices, "prices", false, "Look up USD prices")
}

func runListTokens(cmd *cobra.Command, args []string) {
	a := mustLoadApp(cmd)
	defer a.Close()

	list, err := a.tokenList()
	if err != nil {
		a.fail(err)
	}

	var chainID int64
	if filterChain != "" {
		if chainID, err = parser.ParseChain(filterChain); err != nil {
			a.fail(err)
		}
	}

	rows := filterTokens(list, chainID, filterSymbol)

	if withPrices && len(rows) > 0 {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		if !a.json {
			s.Suffix = " Fetching token prices..."
			s.Start()
		}
		err := lookupPrices(ctx, a.pricer(), rows)
		if !a.json {
			s.Stop()
		}
		if err != nil {
			a.fail(err)
		}
	}

	if a.json {
		printJSON(rows)
	} else {
		displayTokens(rows)
	}
}

func filterTokens(list *tokens.List, chainID int64, symbol string) []tokenRow {
	symbol = strings.ToUpper(symbol)
	var rows []tokenRow
	for _, id := range list.Chains() {
		if chainID != 0 && id != chainID {
			continue
		}
		for _, t := range list.ByChain(id) {
			if symbol != "" && !strings.Contains(strings.ToUpper(t.Symbol), symbol) {
				continue
			}
			rows = append(rows, tokenRow{Token: t})
		}
	}
	return rows
}

// lookupPrices fills in prices; tokens the price source does not know keep
// no price
func lookupPrices(ctx context.Context, p *pricing.Pricer, rows []tokenRow) error {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range rows {
		g.Go(func() error {
			price, err := p.USDPrice(ctx, rows[i].Token)
			if err != nil {
				if errors.Is(err, client.ErrPriceNotFound) || errors.Is(err, client.ErrUnsupportedChain) {
					return nil
				}
				return err
			}
			mu.Lock()
			rows[i].USDPrice = &price
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func displayTokens(rows []tokenRow) {
	if len(rows) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	var (
		chains  int
		current int64
	)
	for _, row := range rows {
		if chains == 0 || row.ChainID != current {
			current = row.ChainID
			chains++
			color.Cyan("\n%s", strings.ToUpper(parser.ChainName(current)))
			fmt.Println(strings.Repeat("-", 90))
		}

		address := row.Address.Hex()
		if row.IsNative() {
			address = "native"
		}
		price := ""
		if row.USDPrice != nil {
			price = fmt.Sprintf("$%.4f", *row.USDPrice)
		}

		fmt.Printf("  %-10s  %2d decimals  %-42s  %s\n",
			color.YellowString(row.Symbol),
			row.Decimals,
			color.HiBlackString(address),
			price)
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d chains\n\n", len(rows), chains)
}
