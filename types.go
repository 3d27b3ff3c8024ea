// Package orderhub provides the client SDK for the OrderHub cross-chain
// intent protocol: requesting quotes from the solver network over pub/sub,
// building and EIP-712-signing orders, and submitting them for gasless
// execution.
package orderhub

import "math/big"

// TokenType identifies the asset class of an order leg.
type TokenType uint8

const (
	// TokenTypeNull is the zero token type.
	TokenTypeNull TokenType = iota
	// TokenTypeNative is the chain's native asset.
	TokenTypeNative
	// TokenTypeFungible is an ERC-20-style fungible token.
	TokenTypeFungible
	// TokenTypeNonFungible is an ERC-721-style token.
	TokenTypeNonFungible
	// TokenTypeSemiFungible is an ERC-1155-style token.
	TokenTypeSemiFungible
)

// Token is a single input or output leg of an order. Treat as immutable
// once constructed.
type Token struct {
	// TokenType is the asset class.
	TokenType TokenType

	// TokenAddress is the 32-byte padded token identifier.
	TokenAddress Bytes32

	// TokenID is the token id for non-fungible and semi-fungible assets,
	// zero otherwise.
	TokenID *big.Int

	// Amount is the leg amount in atomic units.
	Amount *big.Int
}

// Order is the cross-chain intent signed by the user and filled by a solver.
type Order struct {
	// User is the 32-byte padded address of the order creator.
	User Bytes32

	// Recipient receives the outputs on the destination chain.
	Recipient Bytes32

	// Filler is the solver the order is primarily offered to, or zero for
	// an open order.
	Filler Bytes32

	// CallRecipient receives the optional destination-chain call.
	CallRecipient Bytes32

	// Inputs are the assets the user gives up on the source chain.
	Inputs []Token

	// Outputs are the assets the user receives on the destination chain.
	Outputs []Token

	// SourceChainID is the numeric id of the source chain.
	SourceChainID uint32

	// DestinationChainID is the numeric id of the destination chain.
	DestinationChainID uint32

	// Sponsored marks orders whose gas is paid by a third party.
	Sponsored bool

	// PrimaryFillerDeadline is the unix timestamp until which only the
	// primary filler may fill. Must be strictly before Deadline.
	PrimaryFillerDeadline uint64

	// Deadline is the unix timestamp after which the order is void.
	Deadline uint64

	// CallData is the optional calldata executed against CallRecipient.
	CallData []byte

	// CallValue is the native value forwarded with the call.
	CallValue *big.Int
}

// Validate checks the order invariants enforced at creation time.
// The deadline ordering is not re-checked anywhere else.
func (o *Order) Validate() error {
	if o.PrimaryFillerDeadline >= o.Deadline {
		return NewError(ErrCodeValidation, "primary filler deadline must precede order deadline", ErrDeadlineOrder)
	}
	return nil
}

// OrderRequest wraps an Order with the signing deadline and the account
// nonce. The nonce must match the on-chain account nonce at submission time;
// the bot validates that, not this SDK.
type OrderRequest struct {
	// Deadline is the request validity deadline as a uint256.
	Deadline *big.Int

	// Nonce is the caller-supplied account nonce.
	Nonce *big.Int

	// Order is the order being signed.
	Order Order
}

// TokenAmount is one token leg of a quote request.
type TokenAmount struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// NetworkTokens names a chain and the token legs on it.
type NetworkTokens struct {
	Network string        `json:"network"`
	Tokens  []TokenAmount `json:"tokens"`
}

// QuoteRequest is the payload published to the solver broadcast channel.
type QuoteRequest struct {
	// Bucket is the optional caller-supplied correlation id. When empty,
	// the RFQ client generates one.
	Bucket string `json:"bucket,omitempty"`

	From NetworkTokens `json:"from"`
	To   NetworkTokens `json:"to"`
}

// QuoteTag classifies a solver quote within a reply set.
type QuoteTag string

const (
	QuoteTagFastest    QuoteTag = "FASTEST"
	QuoteTagBestReturn QuoteTag = "BEST_RETURN"
	QuoteTagNone       QuoteTag = "NONE"
)

// QuoteRoute identifies the solver route behind a quote.
type QuoteRoute struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// QuoteOption is a single solver quote from a reply payload.
type QuoteOption struct {
	ID                    string     `json:"id"`
	ReceiveAmount         string     `json:"receiveAmount"`
	USDValue              float64    `json:"usdValue"`
	PriceImpact           float64    `json:"priceImpact"`
	ConversionRate        float64    `json:"conversionRate"`
	GasFeeUSD             float64    `json:"gasFeeUsd"`
	EstimatedTime         int        `json:"estimatedTime"`
	Tag                   QuoteTag   `json:"tag"`
	Route                 QuoteRoute `json:"route"`
	Source                string     `json:"source"`
	Destination           string     `json:"destination"`
	USDTDestinationAmount string     `json:"usdtDestinationAmount"`
}
