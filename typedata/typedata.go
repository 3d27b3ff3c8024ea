// Package typedata computes the EIP-712 hashes for the Order, OrderRequest
// and Token schemas. The schema strings must match the verifying contract
// byte for byte; a single width or ordering mismatch produces digests that
// never validate on chain.
package typedata

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	orderhub "github.com/orderhub-labs/orderhub-go"
)

// EIP-712 domain constants for the OrderHub contract.
const (
	DomainName    = "OrderHub"
	DomainVersion = "1"
)

// Struct schema strings. OrderRequest embeds the Order and Token sub-schemas
// per the typed-data encoding convention (referenced types appended in
// alphabetical order).
const (
	tokenSchema = "Token(uint8 tokenType,bytes32 tokenAddress,uint256 tokenId,uint256 amount)"

	orderSchema = "Order(bytes32 user,bytes32 recipient,bytes32 filler,bytes32 callRecipient," +
		"Token[] inputs,Token[] outputs,uint32 sourceChainId,uint32 destinationChainId," +
		"bool sponsored,uint64 primaryFillerDeadline,uint64 deadline,bytes callData,uint256 callValue)"

	orderRequestSchema = "OrderRequest(uint256 deadline,uint256 nonce,Order order)"
)

// Pre-computed type hashes using keccak256
var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))

	tokenTypeHash = crypto.Keccak256Hash([]byte(tokenSchema))

	orderTypeHash = crypto.Keccak256Hash([]byte(orderSchema + tokenSchema))

	orderRequestTypeHash = crypto.Keccak256Hash([]byte(orderRequestSchema + orderSchema + tokenSchema))
)

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	uint64Type, _  = abi.NewType("uint64", "", nil)
	uint32Type, _  = abi.NewType("uint32", "", nil)
	uint8Type, _   = abi.NewType("uint8", "", nil)
	boolType, _    = abi.NewType("bool", "", nil)
)

// DomainSeparator computes the EIP-712 domain separator for the OrderHub
// contract at verifyingContract on the given chain. Pure and deterministic.
func DomainSeparator(chainID uint64, verifyingContract common.Address) common.Hash {
	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: bytes32Type}, // keccak256(name)
		{Type: bytes32Type}, // keccak256(version)
		{Type: uint256Type}, // chainId
		{Type: addressType}, // verifyingContract
	}

	encoded, err := arguments.Pack(
		domainTypeHash,
		crypto.Keccak256Hash([]byte(DomainName)),
		crypto.Keccak256Hash([]byte(DomainVersion)),
		new(big.Int).SetUint64(chainID),
		verifyingContract,
	)
	if err != nil {
		// Static argument types; Pack cannot fail here.
		panic("failed to encode domain separator: " + err.Error())
	}

	return crypto.Keccak256Hash(encoded)
}

// HashToken computes the struct hash of a single token leg.
func HashToken(t orderhub.Token) (common.Hash, error) {
	if t.TokenID == nil || t.Amount == nil {
		return common.Hash{}, orderhub.NewError(orderhub.ErrCodeValidation, "token id and amount must be set", orderhub.ErrInvalidAmount)
	}

	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: uint8Type},   // tokenType
		{Type: bytes32Type}, // tokenAddress
		{Type: uint256Type}, // tokenId
		{Type: uint256Type}, // amount
	}

	encoded, err := arguments.Pack(
		tokenTypeHash,
		uint8(t.TokenType),
		[32]byte(t.TokenAddress),
		t.TokenID,
		t.Amount,
	)
	if err != nil {
		return common.Hash{}, orderhub.NewError(orderhub.ErrCodeValidation, "failed to encode token", err)
	}

	return crypto.Keccak256Hash(encoded), nil
}

// hashTokenArray hashes each token individually, then hashes the
// concatenation of the element hashes as one block.
func hashTokenArray(tokens []orderhub.Token) (common.Hash, error) {
	packed := make([]byte, 0, len(tokens)*common.HashLength)
	for i := range tokens {
		h, err := HashToken(tokens[i])
		if err != nil {
			return common.Hash{}, err
		}
		packed = append(packed, h.Bytes()...)
	}
	return crypto.Keccak256Hash(packed), nil
}

// HashOrder computes the struct hash of an order under the Order schema.
func HashOrder(o *orderhub.Order) (common.Hash, error) {
	if o.CallValue == nil {
		return common.Hash{}, orderhub.NewError(orderhub.ErrCodeValidation, "call value must be set", orderhub.ErrInvalidAmount)
	}

	inputsHash, err := hashTokenArray(o.Inputs)
	if err != nil {
		return common.Hash{}, err
	}
	outputsHash, err := hashTokenArray(o.Outputs)
	if err != nil {
		return common.Hash{}, err
	}

	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: bytes32Type}, // user
		{Type: bytes32Type}, // recipient
		{Type: bytes32Type}, // filler
		{Type: bytes32Type}, // callRecipient
		{Type: bytes32Type}, // keccak256 of input hashes
		{Type: bytes32Type}, // keccak256 of output hashes
		{Type: uint32Type},  // sourceChainId
		{Type: uint32Type},  // destinationChainId
		{Type: boolType},    // sponsored
		{Type: uint64Type},  // primaryFillerDeadline
		{Type: uint64Type},  // deadline
		{Type: bytes32Type}, // keccak256(callData)
		{Type: uint256Type}, // callValue
	}

	encoded, err := arguments.Pack(
		orderTypeHash,
		[32]byte(o.User),
		[32]byte(o.Recipient),
		[32]byte(o.Filler),
		[32]byte(o.CallRecipient),
		inputsHash,
		outputsHash,
		o.SourceChainID,
		o.DestinationChainID,
		o.Sponsored,
		o.PrimaryFillerDeadline,
		o.Deadline,
		crypto.Keccak256Hash(o.CallData),
		o.CallValue,
	)
	if err != nil {
		return common.Hash{}, orderhub.NewError(orderhub.ErrCodeValidation, "failed to encode order", err)
	}

	return crypto.Keccak256Hash(encoded), nil
}

// HashOrderRequest computes the struct hash of an order request under the
// OrderRequest schema.
func HashOrderRequest(r *orderhub.OrderRequest) (common.Hash, error) {
	if r.Deadline == nil || r.Nonce == nil {
		return common.Hash{}, orderhub.NewError(orderhub.ErrCodeValidation, "request deadline and nonce must be set", orderhub.ErrInvalidAmount)
	}

	orderHash, err := HashOrder(&r.Order)
	if err != nil {
		return common.Hash{}, err
	}

	arguments := abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: uint256Type}, // deadline
		{Type: uint256Type}, // nonce
		{Type: bytes32Type}, // order struct hash
	}

	encoded, err := arguments.Pack(
		orderRequestTypeHash,
		r.Deadline,
		r.Nonce,
		orderHash,
	)
	if err != nil {
		return common.Hash{}, orderhub.NewError(orderhub.ErrCodeValidation, "failed to encode order request", err)
	}

	return crypto.Keccak256Hash(encoded), nil
}

// FinalDigest computes the signable digest
// keccak256("\x19\x01" || domainSeparator || requestHash).
func FinalDigest(domainSeparator, requestHash common.Hash) common.Hash {
	data := make([]byte, 0, 2+2*common.HashLength)
	data = append(data, 0x19, 0x01)
	data = append(data, domainSeparator.Bytes()...)
	data = append(data, requestHash.Bytes()...)
	return crypto.Keccak256Hash(data)
}
