package wallet_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimic-swap/pkg/protocol"
	"mimic-swap/pkg/timeline/steps"
	"mimic-swap/pkg/wallet"
)

type fakeBackend struct {
	callOut     []byte
	calls       []ethereum.CallMsg
	sent        []*types.Transaction
	estimateErr error
	receipts    []*types.Receipt
	receiptErr  error
	receiptHits int
	balance     *big.Int
}

var (
	_ steps.TokenApprover = (*wallet.EVMWallet)(nil)
	_ protocol.Signer     = (*wallet.Signer)(nil)
	_ protocol.Signer     = (*wallet.EVMWallet)(nil)
	_ wallet.Backend      = (*fakeBackend)(nil)

	token   = common.HexToAddress("0x0b2c639c533813f4aa9d7837caf62653d097ff85")
	spender = common.HexToAddress("0x609d831c0068844e11ef85a273c7f356212fd6d1")
)

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 50000, nil
}

func (f *fakeBackend) CallContract(
	_ context.Context, msg ethereum.CallMsg, _ *big.Int,
) ([]byte, error) {
	f.calls = append(f.calls, msg)
	return f.callOut, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.receiptHits++
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if len(f.receipts) == 0 {
		return nil, ethereum.NotFound
	}
	r := f.receipts[0]
	f.receipts = f.receipts[1:]
	if r == nil {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func newSigner(t *testing.T) *wallet.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := wallet.NewSigner(hexutil.Encode(crypto.FromECDSA(key)))
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())
	return s
}

func newWallet(t *testing.T, backend *fakeBackend) *wallet.EVMWallet {
	t.Helper()
	return wallet.New(newSigner(t), backend, wallet.Options{
		ChainID:         10,
		ReceiptInterval: time.Millisecond,
	})
}

func word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func recoverSig(t *testing.T, hash []byte, sig string) common.Address {
	t.Helper()
	raw, err := hexutil.Decode(sig)
	require.NoError(t, err)
	require.Len(t, raw, 65)
	require.Contains(t, []byte{27, 28}, raw[64])
	raw[64] -= 27
	pub, err := crypto.SigToPub(hash, raw)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub)
}

func TestNewSignerRejectsMissingKey(t *testing.T) {
	_, err := wallet.NewSigner("  ")
	assert.ErrorIs(t, err, wallet.ErrNoWallet)

	_, err = wallet.NewSigner("0xzz")
	assert.Error(t, err)
}

func TestSignMessageRecoversAddress(t *testing.T) {
	s := newSigner(t)
	msg := "Sign in with nonce: abc123"

	sig, err := s.SignMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recoverSig(t, accounts.TextHash([]byte(msg)), sig))
}

func TestSignTypedDataRecoversAddress(t *testing.T) {
	s := newSigner(t)
	spec := protocol.ConfigSpec{
		TaskCID:           "QmTask",
		Version:           "1.0.0",
		Signer:            s.Address(),
		ExecutionFeeLimit: "0",
		MinValidations:    1,
		ChainID:           10,
	}
	td, err := protocol.ConfigTypedData(spec)
	require.NoError(t, err)

	sig, err := s.SignTypedData(td)
	require.NoError(t, err)

	hash, _, err := apitypes.TypedDataAndHash(td)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), recoverSig(t, hash, sig))
}

func TestAllowance(t *testing.T) {
	backend := &fakeBackend{callOut: word(1234)}
	w := newWallet(t, backend)
	owner := w.Address()

	got, err := w.Allowance(context.Background(), token, owner, spender)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), got.Int64())

	require.Len(t, backend.calls, 1)
	call := backend.calls[0]
	assert.Equal(t, token, *call.To)
	// allowance(address,address)
	assert.Equal(t, "0xdd62ed3e", hexutil.Encode(call.Data[:4]))
	assert.Equal(t, owner, common.BytesToAddress(call.Data[4:36]))
	assert.Equal(t, spender, common.BytesToAddress(call.Data[36:68]))
}

func TestAllowanceBadOutput(t *testing.T) {
	w := newWallet(t, &fakeBackend{callOut: []byte{1, 2}})
	_, err := w.Allowance(context.Background(), token, common.Address{}, spender)
	assert.Error(t, err)
}

func TestApproveSendsSignedTransaction(t *testing.T) {
	backend := &fakeBackend{}
	w := newWallet(t, backend)
	amount := big.NewInt(1_500_000)

	hash, err := w.Approve(context.Background(), token, spender, amount)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	assert.Equal(t, tx.Hash(), hash)
	assert.Equal(t, token, *tx.To())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(60000), tx.Gas())
	assert.Zero(t, tx.Value().Sign())
	// approve(address,uint256)
	assert.Equal(t, "0x095ea7b3", hexutil.Encode(tx.Data()[:4]))
	assert.Equal(t, spender, common.BytesToAddress(tx.Data()[4:36]))
	assert.Zero(t, new(big.Int).SetBytes(tx.Data()[36:68]).Cmp(amount))

	from, err := types.Sender(types.NewEIP155Signer(big.NewInt(10)), tx)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), from)
}

func TestApproveGasFallbacks(t *testing.T) {
	backend := &fakeBackend{estimateErr: errors.New("execution reverted")}
	w := newWallet(t, backend)
	_, err := w.Approve(context.Background(), token, spender, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(100000), backend.sent[0].Gas())

	limit := uint64(80000)
	price := int64(42)
	backend = &fakeBackend{}
	w = wallet.New(newSigner(t), backend, wallet.Options{
		ChainID: 10, GasLimit: &limit, GasPrice: &price,
	})
	_, err = w.Approve(context.Background(), token, spender, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, limit, backend.sent[0].Gas())
	assert.Equal(t, int64(42), backend.sent[0].GasPrice().Int64())
}

func TestWaitMined(t *testing.T) {
	backend := &fakeBackend{
		receipts: []*types.Receipt{nil, nil, {Status: types.ReceiptStatusSuccessful}},
	}
	w := newWallet(t, backend)

	require.NoError(t, w.WaitMined(context.Background(), common.HexToHash("0x01")))
	assert.Equal(t, 3, backend.receiptHits)
}

func TestWaitMinedReverted(t *testing.T) {
	backend := &fakeBackend{
		receipts: []*types.Receipt{{Status: types.ReceiptStatusFailed}},
	}
	w := newWallet(t, backend)

	err := w.WaitMined(context.Background(), common.HexToHash("0x01"))
	assert.ErrorIs(t, err, wallet.ErrTxReverted)
}

func TestWaitMinedErrors(t *testing.T) {
	boom := errors.New("rpc down")
	w := newWallet(t, &fakeBackend{receiptErr: boom})
	err := w.WaitMined(context.Background(), common.HexToHash("0x01"))
	assert.ErrorIs(t, err, boom)

	w = newWallet(t, &fakeBackend{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = w.WaitMined(ctx, common.HexToHash("0x01"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBalance(t *testing.T) {
	backend := &fakeBackend{balance: big.NewInt(99), callOut: word(5)}
	w := newWallet(t, backend)
	ctx := context.Background()

	native, err := w.Balance(ctx, common.Address{}, w.Address())
	require.NoError(t, err)
	assert.Equal(t, int64(99), native.Int64())
	assert.Empty(t, backend.calls)

	erc20, err := w.Balance(ctx, token, w.Address())
	require.NoError(t, err)
	assert.Equal(t, int64(5), erc20.Int64())
	// balanceOf(address)
	assert.Equal(t, "0x70a08231", hexutil.Encode(backend.calls[0].Data[:4]))
}

func TestDecimals(t *testing.T) {
	w := newWallet(t, &fakeBackend{callOut: word(6)})
	d, err := w.Decimals(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)
}
