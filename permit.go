package main

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/evmgate/evmgate/pkg/sign"
)

// PermitData carries the EIP-2612 permit message fields.
type PermitData struct {
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Nonce    *big.Int
	Deadline *big.Int
}

// SignPermit produces an EIP-2612 permit signature over the token's EIP-712
// domain. The returned signature decomposes into the v, r, s triple the
// token's permit() call expects.
func SignPermit(signer sign.Signer, tokenName, tokenVersion string, chainID uint64, token common.Address, permit PermitData) (sign.Signature, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": []apitypes.Type{
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              tokenName,
			Version:           tokenVersion,
			ChainId:           math.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    permit.Owner.Hex(),
			"spender":  permit.Spender.Hex(),
			"value":    permit.Value.String(),
			"nonce":    permit.Nonce.String(),
			"deadline": permit.Deadline.String(),
		},
	}

	return signer.SignTypedData(typedData)
}
