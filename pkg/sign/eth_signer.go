package sign

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var _ Signer = (*EthereumSigner)(nil)

// EthereumSigner is the secp256k1 implementation of the Signer interface.
type EthereumSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewEthereumSigner creates a signer from a hex-encoded private key.
func NewEthereumSigner(privateKeyHex string) (*EthereumSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	key, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("could not parse ethereum private key: %w", err)
	}
	return &EthereumSigner{
		privateKey: key,
		address:    ethcrypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *EthereumSigner) Address() common.Address {
	return s.address
}

// PrivateKey exposes the underlying key for transaction signing with
// go-ethereum's types.SignNewTx. Do not log or serialize it.
func (s *EthereumSigner) PrivateKey() *ecdsa.PrivateKey {
	return s.privateKey
}

// Sign expects the input data to be a hash (e.g., Keccak256 hash).
func (s *EthereumSigner) Sign(hash []byte) (Signature, error) {
	sig, err := ethcrypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, err
	}
	// Adjust V from 0/1 to 27/28 for Ethereum compatibility.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return Signature(sig), nil
}

// SignText hashes the message with the EIP-191 personal-message prefix and
// signs the result.
func (s *EthereumSigner) SignText(message []byte) (Signature, error) {
	return s.Sign(accounts.TextHash(message))
}

// SignTypedData hashes EIP-712 structured data and signs the result.
func (s *EthereumSigner) SignTypedData(data apitypes.TypedData) (Signature, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return s.Sign(hash)
}

// RecoverText recovers the signing address of an EIP-191 personal message.
func RecoverText(message []byte, sig Signature) (common.Address, error) {
	return RecoverHash(accounts.TextHash(message), sig)
}

// RecoverHash recovers the signing address from a pre-computed hash.
func RecoverHash(hash []byte, sig Signature) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length")
	}
	localSig := make(Signature, 65)
	copy(localSig, sig)
	if localSig[64] >= 27 {
		localSig[64] -= 27
	}
	pubKey, err := ethcrypto.SigToPub(hash, localSig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}
