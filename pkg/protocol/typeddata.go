package protocol

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	domainName    = "Mimic Protocol"
	domainVersion = "1"
	primaryType   = "Config"
)

var configTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	primaryType: {
		{Name: "taskCid", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "signer", Type: "address"},
		{Name: "trigger", Type: "string"},
		{Name: "input", Type: "string"},
		{Name: "executionFeeLimit", Type: "uint256"},
		{Name: "minValidations", Type: "uint256"},
	},
}

// ConfigTypedData builds the EIP-712 payload signed when creating a config.
// Trigger and input are committed to as their canonical JSON encoding
func ConfigTypedData(spec ConfigSpec) (apitypes.TypedData, error) {
	trigger, err := json.Marshal(spec.Trigger)
	if err != nil {
		return apitypes.TypedData{}, fmt.Errorf("encode trigger: %w", err)
	}
	input, err := json.Marshal(spec.Input)
	if err != nil {
		return apitypes.TypedData{}, fmt.Errorf("encode input: %w", err)
	}

	feeLimit := spec.ExecutionFeeLimit
	if feeLimit == "" {
		feeLimit = "0"
	}
	if _, ok := new(big.Int).SetString(feeLimit, 10); !ok {
		return apitypes.TypedData{}, fmt.Errorf("invalid execution fee limit %q", feeLimit)
	}

	return apitypes.TypedData{
		Types:       configTypes,
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    domainName,
			Version: domainVersion,
			ChainId: math.NewHexOrDecimal256(spec.ChainID),
		},
		Message: apitypes.TypedDataMessage{
			"taskCid":           spec.TaskCID,
			"version":           spec.Version,
			"signer":            spec.Signer.Hex(),
			"trigger":           string(trigger),
			"input":             string(input),
			"executionFeeLimit": feeLimit,
			"minValidations":    big.NewInt(int64(spec.MinValidations)),
		},
	}, nil
}
