package types

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Amount      string
	SourceToken string
	DestToken   string
	ChainID     int64  // 0 means the configured chain
	Slippage    string // percent
}

// QuoteDisplay holds formatted quote information for display
type QuoteDisplay struct {
	SourceAmount string
	SourceToken  string
	DestAmount   string
	DestToken    string
	Rate         string
	SourceUSD    string
	DestUSD      string
	Slippage     string
	Chain        string
	Spender      string
}
