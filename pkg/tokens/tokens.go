// Package tokens serves the token lists the swap can select from
package tokens

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/afero"

	"mimic-swap/pkg/timeline"
)

type (
	// Token is a token list entry
	Token struct {
		ChainID  int64          `json:"chainId"`
		Address  common.Address `json:"address"`
		Name     string         `json:"name"`
		Symbol   string         `json:"symbol"`
		Decimals uint8          `json:"decimals"`
		LogoURI  string         `json:"logoURI,omitempty"`
	}

	// Version is the semantic version of a token list
	Version struct {
		Major int `json:"major"`
		Minor int `json:"minor"`
		Patch int `json:"patch"`
	}

	// List is a token list in the Uniswap token list format
	List struct {
		Name     string   `json:"name"`
		LogoURI  string   `json:"logoURI,omitempty"`
		Keywords []string `json:"keywords,omitempty"`
		Version  Version  `json:"version"`
		Tokens   []Token  `json:"tokens"`
	}
)

// Chain ids of the default lists
const (
	Optimism int64 = 10
	Arbitrum int64 = 42161
)

// ErrTokenNotFound is returned when no list entry matches
var ErrTokenNotFound = errors.New("token not found")

//go:embed lists/*.tokenlist.json
var lists embed.FS

var defaultLists = []string{"optimism.tokenlist.json", "arbitrum.tokenlist.json"}

// Default returns the Optimism list merged with the Arbitrum list
func Default() (*List, error) {
	var merged *List
	for _, name := range defaultLists {
		data, err := lists.ReadFile(path.Join("lists", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		l, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if merged == nil {
			merged = l
			continue
		}
		merged.Tokens = append(merged.Tokens, l.Tokens...)
	}
	return merged, nil
}

// Load reads a token list file. An empty path yields the default list
func Load(fs afero.Fs, file string) (*List, error) {
	if file == "" {
		return Default()
	}
	data, err := afero.ReadFile(fs, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read token list: %w", err)
	}
	return Parse(data)
}

// Parse decodes a token list
func Parse(data []byte) (*List, error) {
	var l List
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token list: %w", err)
	}
	return &l, nil
}

// ByChain returns the tokens of one chain in list order
func (l *List) ByChain(chainID int64) []Token {
	var res []Token
	for _, t := range l.Tokens {
		if t.ChainID == chainID {
			res = append(res, t)
		}
	}
	return res
}

// Chains returns the distinct chain ids, sorted
func (l *List) Chains() []int64 {
	seen := map[int64]bool{}
	var res []int64
	for _, t := range l.Tokens {
		if !seen[t.ChainID] {
			seen[t.ChainID] = true
			res = append(res, t.ChainID)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Find looks a token up by address, ignoring case
func (l *List) Find(chainID int64, address string) (Token, error) {
	for _, t := range l.Tokens {
		if t.ChainID == chainID && strings.EqualFold(t.Address.Hex(), address) {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("%w: %s on chain %d", ErrTokenNotFound, address, chainID)
}

// FindSymbol looks a token up by symbol, ignoring case
func (l *List) FindSymbol(chainID int64, symbol string) (Token, error) {
	for _, t := range l.Tokens {
		if t.ChainID == chainID && strings.EqualFold(t.Symbol, symbol) {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("%w: %s on chain %d", ErrTokenNotFound, symbol, chainID)
}

// IsNative reports whether the entry is the chain's native currency
func (t Token) IsNative() bool {
	return t.Address == timeline.NativeTokenAddress
}

// Timeline converts the entry to the timeline's token view
func (t Token) Timeline() timeline.Token {
	return timeline.Token{
		Address:  t.Address,
		ChainID:  t.ChainID,
		Decimals: t.Decimals,
	}
}
