package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"mimic-swap/pkg/types"
)

// DefaultSlippage is used when neither the command nor a flag names one
const DefaultSlippage = "0.5"

var (
	swapPattern = regexp.MustCompile(
		`^(\d+\.?\d*)\s+([A-Z0-9.]+)\s+TO\s+([A-Z0-9.]+)(?:\s+ON\s+([A-Z0-9]+))?$`,
	)

	chainNames = map[string]int64{
		"OPTIMISM": 10,
		"OP":       10,
		"ARBITRUM": 42161,
		"ARB":      42161,
	}
)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 100 USDC to WETH"
//   - "0.5 ETH to USDC on arbitrum"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	// Normalize the command
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")

	// Remove the word "SWAP" if present at the beginning
	command = strings.TrimPrefix(command, "SWAP ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token> [on <chain>]' (e.g., 'swap 100 USDC to WETH')")
	}

	req := &types.SwapRequest{
		Amount:      matches[1],
		SourceToken: matches[2],
		DestToken:   matches[3],
		Slippage:    DefaultSlippage,
	}
	if matches[4] != "" {
		id, err := ParseChain(matches[4])
		if err != nil {
			return nil, err
		}
		req.ChainID = id
	}
	return req, nil
}

// ParseChain accepts a chain name or a numeric chain id
func ParseChain(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if id, ok := chainNames[s]; ok {
		return id, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("unknown chain: %s", strings.ToLower(s))
	}
	return id, nil
}

// ChainName returns the display name of a chain id
func ChainName(id int64) string {
	switch id {
	case 10:
		return "Optimism"
	case 42161:
		return "Arbitrum"
	default:
		return fmt.Sprintf("chain %d", id)
	}
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if req.SourceToken == "" {
		return fmt.Errorf("source token is required")
	}
	if req.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	if NormalizeTokenSymbol(req.SourceToken) == NormalizeTokenSymbol(req.DestToken) {
		return fmt.Errorf("source and destination token must differ")
	}
	if req.Slippage != "" {
		v, err := strconv.ParseFloat(req.Slippage, 64)
		if err != nil || v < 0 || v > 100 {
			return fmt.Errorf("slippage must be a percentage between 0 and 100")
		}
	}
	return nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}
