// Package pricing converts swap amounts between tokens through their USD
// prices
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"mimic-swap/pkg/client"
	"mimic-swap/pkg/tokens"
)

type (
	// PriceSource returns the USD price of a token on a chain
	PriceSource interface {
		USDPrice(ctx context.Context, chainID int64, address common.Address) (float64, error)
	}

	// Pricer handles price fetching for swaps
	Pricer struct {
		source PriceSource
	}

	// Quote is the estimated output of a swap
	Quote struct {
		FromUSD float64
		ToUSD   float64
		Rate    float64 // to tokens per from token
		Amount  string  // output after slippage, empty for no input
	}
)

// NewPricer creates a new pricer instance
func NewPricer(source PriceSource) *Pricer {
	return &Pricer{source: source}
}

// USDPrice returns the USD price of one token
func (p *Pricer) USDPrice(ctx context.Context, token tokens.Token) (float64, error) {
	return p.source.USDPrice(ctx, token.ChainID, token.Address)
}

// Convert estimates how much of to an amount of from buys, reduced by the
// slippage percentage. Both prices are fetched in parallel. A token without
// a known price counts as 0 USD on the input side and 1 USD on the output
// side
func (p *Pricer) Convert(
	ctx context.Context, from, to tokens.Token, amount, slippagePercent string,
) (*Quote, error) {
	value, err := strconv.ParseFloat(amount, 64)
	if amount == "" || err != nil || value <= 0 {
		return &Quote{}, nil
	}

	slippage := 0.0
	if slippagePercent != "" {
		slippage, err = strconv.ParseFloat(slippagePercent, 64)
		if err != nil || slippage < 0 || slippage > 100 {
			return nil, fmt.Errorf("invalid slippage: %q", slippagePercent)
		}
	}

	var fromUSD, toUSD float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fromUSD, err = p.price(gctx, from, 0)
		return err
	})
	g.Go(func() error {
		var err error
		toUSD, err = p.price(gctx, to, 1)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}

	rate := fromUSD / toUSD
	out := value * rate * (1 - slippage/100)
	return &Quote{
		FromUSD: fromUSD,
		ToUSD:   toUSD,
		Rate:    rate,
		Amount:  strconv.FormatFloat(out, 'f', -1, 64),
	}, nil
}

func (p *Pricer) price(ctx context.Context, token tokens.Token, fallback float64) (float64, error) {
	price, err := p.USDPrice(ctx, token)
	if errors.Is(err, client.ErrPriceNotFound) {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return fallback, nil
	}
	return price, nil
}
