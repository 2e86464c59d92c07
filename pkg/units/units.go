package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidAmount is returned when an amount string cannot be parsed
var ErrInvalidAmount = errors.New("invalid amount")

// ParseUnits converts a decimal amount (e.g. "1.5") into base units for a
// token with the given decimals. Excess fractional digits are rejected
func ParseUnits(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.HasPrefix(amount, "-") {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, amount)
	}

	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %s has more than %d decimals", ErrInvalidAmount, amount, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return value, nil
}

// FormatUnits renders base units as a decimal string, trimming trailing zeros
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}

	neg := value.Sign() < 0
	digits := new(big.Int).Abs(value).String()
	if len(digits) <= int(decimals) {
		digits = strings.Repeat("0", int(decimals)-len(digits)+1) + digits
	}

	split := len(digits) - int(decimals)
	whole, frac := digits[:split], strings.TrimRight(digits[split:], "0")

	result := whole
	if frac != "" {
		result += "." + frac
	}
	if neg {
		result = "-" + result
	}
	return result
}

// SlippageBps converts a percentage string such as "0.5" into basis points
func SlippageBps(percent string) (int, error) {
	value, ok := new(big.Float).SetString(strings.TrimSpace(percent))
	if !ok {
		return 0, fmt.Errorf("invalid slippage: %s", percent)
	}
	if value.Sign() < 0 {
		return 0, fmt.Errorf("slippage cannot be negative: %s", percent)
	}

	bps, _ := new(big.Float).Mul(value, big.NewFloat(100)).Float64()
	if bps > 10000 {
		return 0, fmt.Errorf("slippage above 100%%: %s", percent)
	}
	return int(bps + 0.5), nil
}
