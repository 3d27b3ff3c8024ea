package orderhub

import "github.com/ethereum/go-ethereum/common"

// DigestSigner produces an ECDSA signature over a raw 32-byte digest.
// Implementations must sign the digest exactly as given, without applying
// any personal-message prefix or re-hashing.
type DigestSigner interface {
	// SignDigest signs the digest and returns the 65-byte r||s||v signature
	// with v adjusted to 27/28.
	SignDigest(digest [32]byte) ([]byte, error)

	// Address returns the account bound to this signer, or the zero address
	// when none is bound.
	Address() common.Address
}
