package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimic-swap/pkg/parser"
	"mimic-swap/pkg/types"
)

func TestParseSwapCommand(t *testing.T) {
	tests := []struct {
		in   string
		want types.SwapRequest
	}{
		{
			in:   "swap 100 USDC to WETH",
			want: types.SwapRequest{Amount: "100", SourceToken: "USDC", DestToken: "WETH", Slippage: "0.5"},
		},
		{
			in:   "  0.5   eth TO usdc  ",
			want: types.SwapRequest{Amount: "0.5", SourceToken: "ETH", DestToken: "USDC", Slippage: "0.5"},
		},
		{
			in: "swap 1 usdc to arb on arbitrum",
			want: types.SwapRequest{
				Amount: "1", SourceToken: "USDC", DestToken: "ARB", ChainID: 42161, Slippage: "0.5",
			},
		},
		{
			in: "2 USDC.E to DAI on 10",
			want: types.SwapRequest{
				Amount: "2", SourceToken: "USDC.E", DestToken: "DAI", ChainID: 10, Slippage: "0.5",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parser.ParseSwapCommand(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseSwapCommandRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"swap USDC to WETH",
		"swap -1 USDC to WETH",
		"swap 1 USDC WETH",
		"swap 1 USDC to WETH on mars",
	} {
		_, err := parser.ParseSwapCommand(in)
		assert.Error(t, err, in)
	}
}

func TestParseChain(t *testing.T) {
	id, err := parser.ParseChain("op")
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)

	id, err = parser.ParseChain("8453")
	require.NoError(t, err)
	assert.Equal(t, int64(8453), id)

	_, err = parser.ParseChain("0")
	assert.Error(t, err)

	assert.Equal(t, "Arbitrum", parser.ChainName(42161))
	assert.Equal(t, "chain 8453", parser.ChainName(8453))
}

func TestValidateSwapRequest(t *testing.T) {
	ok := &types.SwapRequest{Amount: "1", SourceToken: "USDC", DestToken: "WETH", Slippage: "1"}
	assert.NoError(t, parser.ValidateSwapRequest(ok))

	same := *ok
	same.DestToken = "usdc"
	assert.Error(t, parser.ValidateSwapRequest(&same))

	slip := *ok
	slip.Slippage = "150"
	assert.Error(t, parser.ValidateSwapRequest(&slip))

	missing := *ok
	missing.Amount = ""
	assert.Error(t, parser.ValidateSwapRequest(&missing))
}
