// Package wallet provides the local-key EVM wallet used in place of a
// browser wallet: allowance reads, approval transactions, balances and
// message signing
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrNoWallet is returned when no private key is configured
var ErrNoWallet = errors.New("no wallet private key configured")

// Signer signs on behalf of a single private key
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key, with or without 0x prefix
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrNoWallet
	}

	// Parse private key
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the account address of the key
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMessage produces a personal_sign (EIP-191) signature over msg
func (s *Signer) SignMessage(msg string) (string, error) {
	return s.sign(accounts.TextHash([]byte(msg)))
}

// SignTypedData produces an EIP-712 signature over the typed data
func (s *Signer) SignTypedData(td apitypes.TypedData) (string, error) {
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return "", fmt.Errorf("hash typed data: %w", err)
	}
	return s.sign(hash)
}

func (s *Signer) sign(hash []byte) (string, error) {
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign: %w", err)
	}

	// Wallets return V as 27/28
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
