package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

type (
	// OneClickClient wraps the 1Click SDK as a USD price source
	OneClickClient struct {
		client *oneclick.APIClient
		ctx    context.Context
		log    zerolog.Logger
		ttl    time.Duration
		now    func() time.Time

		mu        sync.Mutex
		tokens    []oneclick.TokenResponse
		fetchedAt time.Time
	}

	// Option configures a OneClickClient
	Option func(*OneClickClient, *oneclick.Configuration)
)

// DefaultPriceTTL is how long a fetched token catalogue is reused
const DefaultPriceTTL = time.Minute

var (
	ErrUnsupportedChain = errors.New("chain not supported by 1Click")
	ErrPriceNotFound    = errors.New("no USD price for token")
)

// blockchains maps EVM chain ids to 1Click blockchain names
var blockchains = map[int64]string{
	1:     "eth",
	10:    "op",
	8453:  "base",
	42161: "arb",
}

// WithBaseURL points the SDK at another server
func WithBaseURL(url string) Option {
	return func(_ *OneClickClient, cfg *oneclick.Configuration) {
		cfg.Servers = oneclick.ServerConfigurations{{URL: url}}
	}
}

// WithLogger sets the client logger
func WithLogger(log zerolog.Logger) Option {
	return func(c *OneClickClient, _ *oneclick.Configuration) {
		c.log = log
	}
}

// WithClock replaces the time source of the catalogue cache
func WithClock(now func() time.Time) Option {
	return func(c *OneClickClient, _ *oneclick.Configuration) {
		c.now = now
	}
}

// NewOneClickClient creates a new 1Click API client
func NewOneClickClient(jwtToken string, opts ...Option) *OneClickClient {
	config := oneclick.NewConfiguration()

	// Create authenticated context
	ctx := context.Background()
	if jwtToken != "" {
		ctx = context.WithValue(ctx, oneclick.ContextAccessToken, jwtToken)
	}

	c := &OneClickClient{
		ctx: ctx,
		log: zerolog.Nop(),
		ttl: DefaultPriceTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c, config)
	}
	c.client = oneclick.NewAPIClient(config)
	return c
}

// Blockchain returns the 1Click name of an EVM chain
func Blockchain(chainID int64) (string, error) {
	name, ok := blockchains[chainID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	return name, nil
}

// GetSupportedTokens retrieves all supported tokens, reusing a recent
// catalogue
func (c *OneClickClient) GetSupportedTokens(ctx context.Context) ([]oneclick.TokenResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.tokens, nil
	}

	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.authContext(ctx)).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != 200 {
		return nil, fmt.Errorf("API returned status code %d", httpResp.StatusCode)
	}

	c.tokens = resp
	c.fetchedAt = c.now()
	c.log.Debug().Int("tokens", len(resp)).Msg("Token catalogue refreshed")
	return resp, nil
}

// USDPrice returns the USD price of a token. The zero address is the
// chain's native currency
func (c *OneClickClient) USDPrice(
	ctx context.Context, chainID int64, address common.Address,
) (float64, error) {
	chain, err := Blockchain(chainID)
	if err != nil {
		return 0, err
	}
	tokens, err := c.GetSupportedTokens(ctx)
	if err != nil {
		return 0, err
	}
	return MatchPrice(tokens, chain, address)
}

// MatchPrice finds the price of the token with the given contract address
// on a 1Click blockchain
func MatchPrice(
	tokens []oneclick.TokenResponse, chain string, address common.Address,
) (float64, error) {
	native := address == (common.Address{})
	for _, token := range tokens {
		if !strings.EqualFold(token.GetBlockchain(), chain) {
			continue
		}

		contract := token.GetContractAddress()
		if native && contract == "" ||
			!native && strings.EqualFold(contract, address.Hex()) {
			price := float64(token.GetPrice())
			if price <= 0 {
				break
			}
			return price, nil
		}
	}
	return 0, fmt.Errorf("%w: %s on %s", ErrPriceNotFound, address.Hex(), chain)
}

// authContext carries the JWT of the client into a request context
func (c *OneClickClient) authContext(ctx context.Context) context.Context {
	if token := c.ctx.Value(oneclick.ContextAccessToken); token != nil {
		return context.WithValue(ctx, oneclick.ContextAccessToken, token)
	}
	return ctx
}
