package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

type (
	// Backend is the slice of an RPC client the wallet needs.
	// *ethclient.Client satisfies it
	Backend interface {
		PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
		SuggestGasPrice(ctx context.Context) (*big.Int, error)
		EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
		CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
		SendTransaction(ctx context.Context, tx *types.Transaction) error
		TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
		BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error)
	}

	// Options tunes transaction building
	Options struct {
		ChainID         int64
		GasLimit        *uint64
		GasPrice        *int64
		ReceiptInterval time.Duration
		Logger          zerolog.Logger
	}

	// EVMWallet signs and sends transactions for one chain
	EVMWallet struct {
		*Signer
		backend Backend
		opts    Options
		closer  func()
	}
)

const (
	defaultApproveGas      = uint64(100000)
	defaultReceiptInterval = 2 * time.Second
)

var (
	// ErrTxReverted is returned by WaitMined for a failed transaction
	ErrTxReverted = errors.New("transaction reverted")

	ErrUnexpectedOutput = errors.New("unexpected contract output")
)

// ERC20 allowance, approve, balanceOf and decimals
const erc20ABI = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

var erc20 = mustParseABI(erc20ABI)

// Dial connects to the RPC endpoint and creates a wallet for the key
func Dial(rpcURL, hexKey string, opts Options) (*EVMWallet, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured for chain %d", opts.ChainID)
	}

	signer, err := NewSigner(hexKey)
	if err != nil {
		return nil, err
	}

	// Connect to the RPC endpoint
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	w := New(signer, client, opts)
	w.closer = client.Close
	return w, nil
}

// New creates a wallet on top of an existing backend
func New(signer *Signer, backend Backend, opts Options) *EVMWallet {
	if opts.ReceiptInterval <= 0 {
		opts.ReceiptInterval = defaultReceiptInterval
	}
	opts.Logger = opts.Logger.With().
		Str("component", "wallet").
		Int64("chain_id", opts.ChainID).
		Logger()

	return &EVMWallet{
		Signer:  signer,
		backend: backend,
		opts:    opts,
	}
}

// ChainID returns the chain the wallet signs for
func (w *EVMWallet) ChainID() int64 {
	return w.opts.ChainID
}

// Allowance reads the ERC-20 allowance owner has granted spender
func (w *EVMWallet) Allowance(
	ctx context.Context, token, owner, spender common.Address,
) (*big.Int, error) {
	out, err := w.call(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return unpackUint(out, "allowance")
}

// Approve sends an ERC-20 approve transaction and returns its hash
// without waiting for it to be mined
func (w *EVMWallet) Approve(
	ctx context.Context, token, spender common.Address, amount *big.Int,
) (common.Hash, error) {
	data, err := erc20.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve data: %w", err)
	}

	// Get nonce
	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := w.gasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	gasLimit := w.gasLimit(ctx, token, data)

	tx := types.NewTransaction(nonce, token, big.NewInt(0), gasLimit, gasPrice, data)

	// Sign transaction
	chainID := big.NewInt(w.opts.ChainID)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	w.opts.Logger.Info().
		Str("tx", signed.Hash().Hex()).
		Str("token", token.Hex()).
		Str("spender", spender.Hex()).
		Str("amount", amount.String()).
		Msg("Approval sent")
	return signed.Hash(), nil
}

// WaitMined polls for the receipt of hash until it is mined or ctx ends
func (w *EVMWallet) WaitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(w.opts.ReceiptInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex())
			}
			w.opts.Logger.Debug().
				Str("tx", hash.Hex()).
				Uint64("gas_used", receipt.GasUsed).
				Msg("Transaction mined")
			return nil
		case !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("failed to get transaction receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Balance returns the owner's balance of token. The zero address is the
// chain's native currency
func (w *EVMWallet) Balance(
	ctx context.Context, token, owner common.Address,
) (*big.Int, error) {
	if token == (common.Address{}) {
		balance, err := w.backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}

	out, err := w.call(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return unpackUint(out, "balanceOf")
}

// Decimals reads the ERC-20 decimals of token
func (w *EVMWallet) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := w.call(ctx, token, "decimals")
	if err != nil {
		return 0, err
	}
	res, err := erc20.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack decimals: %w", err)
	}
	d, ok := res[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals", ErrUnexpectedOutput)
	}
	return d, nil
}

// Close closes the RPC connection, if the wallet owns one
func (w *EVMWallet) Close() {
	if w.closer != nil {
		w.closer()
	}
}

func (w *EVMWallet) call(
	ctx context.Context, token common.Address, method string, args ...any,
) ([]byte, error) {
	data, err := erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", method, err)
	}

	msg := ethereum.CallMsg{
		To:   &token,
		Data: data,
	}
	out, err := w.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	return out, nil
}

// gasPrice returns the configured gas price or the network suggestion
func (w *EVMWallet) gasPrice(ctx context.Context) (*big.Int, error) {
	if w.opts.GasPrice != nil {
		return big.NewInt(*w.opts.GasPrice), nil
	}

	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return gasPrice, nil
}

func (w *EVMWallet) gasLimit(ctx context.Context, to common.Address, data []byte) uint64 {
	if w.opts.GasLimit != nil {
		return *w.opts.GasLimit
	}

	msg := ethereum.CallMsg{
		From: w.address,
		To:   &to,
		Data: data,
	}
	estimated, err := w.backend.EstimateGas(ctx, msg)
	if err != nil {
		w.opts.Logger.Debug().Err(err).Msg("Gas estimation failed, using default")
		return defaultApproveGas
	}
	// Add 20% buffer
	return estimated * 120 / 100
}

func unpackUint(out []byte, method string) (*big.Int, error) {
	res, err := erc20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	v, ok := res[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedOutput, method)
	}
	return v, nil
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
	}
	return parsed
}
