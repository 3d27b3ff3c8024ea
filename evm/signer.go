// Package evm provides the reference DigestSigner backed by a local ECDSA
// key. Keys can be supplied directly, decrypted from a keystore file, or
// derived from a BIP-39 mnemonic.
package evm

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	orderhub "github.com/orderhub-labs/orderhub-go"
)

// Signer implements the orderhub.DigestSigner interface with a local
// private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates a new EVM signer with the given options.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, orderhub.ErrInvalidKey
	}

	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)
	return s, nil
}

// WithPrivateKey sets the private key from a hex string.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) error {
		hexKey = strings.TrimPrefix(hexKey, "0x")

		privateKey, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return orderhub.ErrInvalidKey
		}

		s.privateKey = privateKey
		return nil
	}
}

// WithECDSAKey sets an already-parsed private key.
func WithECDSAKey(key *ecdsa.PrivateKey) SignerOption {
	return func(s *Signer) error {
		if key == nil {
			return orderhub.ErrInvalidKey
		}
		s.privateKey = key
		return nil
	}
}

// SignDigest implements orderhub.DigestSigner. It signs the raw digest as
// given, with no personal-message prefixing, and returns the 65-byte
// signature with v adjusted to 27/28.
func (s *Signer) SignDigest(digest [32]byte) ([]byte, error) {
	signature, err := crypto.Sign(digest[:], s.privateKey)
	if err != nil {
		return nil, orderhub.NewError(orderhub.ErrCodeSigning, "failed to sign digest", err)
	}

	// Adjust v value for Ethereum (27 or 28)
	signature[64] += 27

	return signature, nil
}

// Address implements orderhub.DigestSigner.
func (s *Signer) Address() common.Address {
	return s.address
}
