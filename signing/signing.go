// Package signing orchestrates EIP-712 signing, verification and
// identification of order requests. All domain and struct hashing is
// delegated to the typedata package so no other component embeds schema
// knowledge.
package signing

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	orderhub "github.com/orderhub-labs/orderhub-go"
	"github.com/orderhub-labs/orderhub-go/typedata"
)

// SignatureLength is the expected length of a hex-encoded signature,
// including the 0x prefix: 65 bytes of r||s||v.
const SignatureLength = 132

// Digest computes the signable digest for an order request against the
// OrderHub contract on the given chain.
func Digest(req *orderhub.OrderRequest, chainID uint64, orderHubAddress common.Address) (common.Hash, error) {
	requestHash, err := typedata.HashOrderRequest(req)
	if err != nil {
		return common.Hash{}, err
	}
	domainSeparator := typedata.DomainSeparator(chainID, orderHubAddress)
	return typedata.FinalDigest(domainSeparator, requestHash), nil
}

// Sign computes the order request digest and asks the signer capability to
// sign the raw 32-byte digest. The signer must not apply any
// personal-message prefix. Returns the 0x-prefixed hex signature.
func Sign(req *orderhub.OrderRequest, signer orderhub.DigestSigner, chainID uint64, orderHubAddress common.Address) (string, error) {
	if signer == nil || signer.Address() == (common.Address{}) {
		return "", orderhub.NewError(orderhub.ErrCodeSigning, "signer has no usable account bound", orderhub.ErrNoAccount)
	}

	digest, err := Digest(req, chainID, orderHubAddress)
	if err != nil {
		return "", err
	}

	sig, err := signer.SignDigest(digest)
	if err != nil {
		return "", orderhub.NewError(orderhub.ErrCodeSigning, "signer capability failed", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", orderhub.NewError(orderhub.ErrCodeSigning,
			fmt.Sprintf("signer returned %d bytes, want %d", len(sig), crypto.SignatureLength), orderhub.ErrInvalidSignature)
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// Verify recomputes the digest, recovers the signing address from the
// signature and compares it to expectedSigner.
//
// A malformed or non-recoverable signature yields (false, nil); a failure to
// recompute the digest yields (false, err) so callers can tell "invalid"
// from "verification machinery failed".
func Verify(req *orderhub.OrderRequest, signature string, expectedSigner common.Address, chainID uint64, orderHubAddress common.Address) (bool, error) {
	if len(signature) != SignatureLength || !strings.HasPrefix(signature, "0x") {
		return false, nil
	}
	sig, err := hex.DecodeString(signature[2:])
	if err != nil {
		return false, nil
	}

	digest, err := Digest(req, chainID, orderHubAddress)
	if err != nil {
		return false, err
	}

	// crypto.SigToPub wants the recovery id in 0/1 form.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return false, nil
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return false, nil
	}

	return crypto.PubkeyToAddress(*pub) == expectedSigner, nil
}

// OrderID derives the deterministic client-side order identifier:
// keccak256(hash(orderRequest) || nonce). The authoritative id is whatever
// the chain or bot assigns; a mismatch is informational, not fatal.
func OrderID(req *orderhub.OrderRequest) (orderhub.Bytes32, error) {
	requestHash, err := typedata.HashOrderRequest(req)
	if err != nil {
		return orderhub.Bytes32{}, err
	}

	data := make([]byte, 0, 2*common.HashLength)
	data = append(data, requestHash.Bytes()...)
	data = append(data, common.LeftPadBytes(req.Nonce.Bytes(), common.HashLength)...)

	return orderhub.Bytes32(crypto.Keccak256Hash(data)), nil
}
