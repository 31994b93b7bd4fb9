package sign

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer produces signatures with a single key.
type Signer interface {
	// Address returns the address derived from the signer's public key.
	Address() common.Address
	// Sign signs a 32-byte hash and returns a 65-byte [R || S || V]
	// signature with V adjusted to 27/28.
	Sign(hash []byte) (Signature, error)
	// SignText signs a human-readable message per EIP-191.
	SignText(message []byte) (Signature, error)
	// SignTypedData signs EIP-712 structured data.
	SignTypedData(data apitypes.TypedData) (Signature, error)
}

// Signature is a 65-byte [R || S || V] secp256k1 signature.
type Signature []byte

// V returns the recovery byte (27 or 28).
func (s Signature) V() byte {
	if len(s) != 65 {
		return 0
	}
	return s[64]
}

// R returns the R component as a 0x-prefixed 32-byte hex string.
func (s Signature) R() string {
	if len(s) != 65 {
		return ""
	}
	return hexutil.Encode(s[:32])
}

// S returns the S component as a 0x-prefixed 32-byte hex string.
func (s Signature) S() string {
	if len(s) != 65 {
		return ""
	}
	return hexutil.Encode(s[32:64])
}

// String implements the fmt.Stringer interface.
func (s Signature) String() string {
	return hexutil.Encode(s)
}

// MarshalJSON encodes the signature as a hex string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the signature from a hex string.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(hexStr)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
