package sign

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a19"

func TestNewEthereumSigner(t *testing.T) {
	signer, err := NewEthereumSigner(testKeyHex)
	require.NoError(t, err)
	assert.NotEqual(t, signer.Address().Hex(), "0x0000000000000000000000000000000000000000")

	// A 0x prefix is accepted.
	prefixed, err := NewEthereumSigner("0x" + testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), prefixed.Address())

	_, err = NewEthereumSigner("not-a-key")
	assert.Error(t, err)
}

func TestSignAndRecoverHash(t *testing.T) {
	signer, err := NewEthereumSigner(testKeyHex)
	require.NoError(t, err)

	hash := crypto.Keccak256([]byte("payload"))
	sig, err := signer.Sign(hash)
	require.NoError(t, err)
	require.Len(t, []byte(sig), 65)
	assert.Contains(t, []byte{27, 28}, sig.V())

	recovered, err := RecoverHash(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestSignTextRoundTrip(t *testing.T) {
	signer, err := NewEthereumSigner(testKeyHex)
	require.NoError(t, err)

	message := []byte("gateway challenge")
	sig, err := signer.SignText(message)
	require.NoError(t, err)

	recovered, err := RecoverText(message, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)

	// A different message must not recover the same address.
	recovered, err = RecoverText([]byte("other message"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, signer.Address(), recovered)
}

func TestSignTypedData(t *testing.T) {
	signer, err := NewEthereumSigner(testKeyHex)
	require.NoError(t, err)

	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {{Name: "name", Type: "string"}},
			"Order": {
				{Name: "maker", Type: "address"},
				{Name: "amount", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain:      apitypes.TypedDataDomain{Name: "Gateway"},
		Message: map[string]interface{}{
			"maker":  signer.Address().Hex(),
			"amount": big.NewInt(1000),
		},
	}

	sig, err := signer.SignTypedData(td)
	require.NoError(t, err)

	hash, _, err := apitypes.TypedDataAndHash(td)
	require.NoError(t, err)
	recovered, err := RecoverHash(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)
}

func TestSignatureComponents(t *testing.T) {
	signer, err := NewEthereumSigner(testKeyHex)
	require.NoError(t, err)

	sig, err := signer.SignText([]byte("abc"))
	require.NoError(t, err)

	assert.Regexp(t, "^0x[0-9a-f]{64}$", sig.R())
	assert.Regexp(t, "^0x[0-9a-f]{64}$", sig.S())
	assert.Regexp(t, "^0x[0-9a-f]{130}$", sig.String())
}

func TestSignatureJSONRoundTrip(t *testing.T) {
	signer, err := NewEthereumSigner(testKeyHex)
	require.NoError(t, err)

	sig, err := signer.SignText([]byte("abc"))
	require.NoError(t, err)

	encoded, err := json.Marshal(sig)
	require.NoError(t, err)

	var decoded Signature
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, sig, decoded)
}
