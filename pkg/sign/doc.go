// Package sign provides the cryptographic signing primitives the gateway
// needs: raw hash signing, EIP-191 personal-message signing and EIP-712
// typed-data signing, plus address recovery for verification.
//
// The Signer interface never exposes private key material, so alternative
// implementations (HSM, KMS) can be substituted without touching callers.
package sign
