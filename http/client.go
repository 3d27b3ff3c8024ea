// Package http provides the client for gasless order submission to the bot
// endpoint.
package http

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	orderhub "github.com/orderhub-labs/orderhub-go"
	"github.com/orderhub-labs/orderhub-go/validation"
)

// submitPath is the bot route for gasless order creation.
const submitPath = "/order-creation/createOrderGasless"

// Client submits signed orders to the bot endpoint for gasless execution.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient creates a submission client for the given bot endpoint.
func NewClient(botEndpoint string, opts ...ClientOption) (*Client, error) {
	if botEndpoint == "" {
		return nil, orderhub.NewError(orderhub.ErrCodeValidation, "bot endpoint cannot be empty", orderhub.ErrInvalidAddress)
	}

	c := &Client{
		endpoint:   strings.TrimRight(botEndpoint, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		c.httpClient = httpClient
		return nil
	}
}

// GaslessOrder is a signed order ready for submission.
type GaslessOrder struct {
	Order           *orderhub.Order
	Signature       string
	OrderID         string
	Nonce           *big.Int
	RequestDeadline *big.Int
}

// Receipt is the bot's acknowledgement of a submitted order. The order id
// is the one the bot assigned; it is authoritative and may differ from the
// client-computed id.
type Receipt struct {
	TxHash  string
	OrderID string
}

// tokenBody is the wire form of a token leg.
type tokenBody struct {
	TokenType    uint8            `json:"tokenType"`
	TokenAddress orderhub.Bytes32 `json:"tokenAddress"`
	TokenID      string           `json:"tokenId"`
	Amount       string           `json:"amount"`
}

// orderBody is the wire form of an order; uint256 values travel as decimal
// strings.
type orderBody struct {
	User                  orderhub.Bytes32 `json:"user"`
	Recipient             orderhub.Bytes32 `json:"recipient"`
	Filler                orderhub.Bytes32 `json:"filler"`
	CallRecipient         orderhub.Bytes32 `json:"callRecipient"`
	Inputs                []tokenBody      `json:"inputs"`
	Outputs               []tokenBody      `json:"outputs"`
	SourceChainID         uint32           `json:"sourceChainId"`
	DestinationChainID    uint32           `json:"destinationChainId"`
	Sponsored             bool             `json:"sponsored"`
	PrimaryFillerDeadline uint64           `json:"primaryFillerDeadline"`
	Deadline              uint64           `json:"deadline"`
	CallData              string           `json:"callData"`
	CallValue             string           `json:"callValue"`
}

type submitRequest struct {
	Order           orderBody `json:"order"`
	Signature       string    `json:"signature"`
	OrderID         string    `json:"orderId"`
	Nonce           string    `json:"nonce"`
	RequestDeadline string    `json:"requestDeadline"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	OrderID string `json:"orderId"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// SubmitGasless validates the signature and order id formats, posts the
// signed order to the bot and returns its receipt. Non-2xx responses and
// success:false bodies fail with the server-supplied detail.
func (c *Client) SubmitGasless(ctx context.Context, sub *GaslessOrder) (*Receipt, error) {
	if err := validation.ValidateSignature(sub.Signature); err != nil {
		return nil, err
	}
	if err := validation.ValidateOrderID(sub.OrderID); err != nil {
		return nil, err
	}
	if sub.Order == nil || sub.Nonce == nil {
		return nil, orderhub.NewError(orderhub.ErrCodeValidation, "order and nonce must be set", orderhub.ErrInvalidAmount)
	}

	body, err := json.Marshal(submitRequest{
		Order:           encodeOrder(sub.Order),
		Signature:       sub.Signature,
		OrderID:         sub.OrderID,
		Nonce:           sub.Nonce.String(),
		RequestDeadline: bigString(sub.RequestDeadline),
	})
	if err != nil {
		return nil, orderhub.NewError(orderhub.ErrCodeValidation, "failed to encode submission", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+submitPath, bytes.NewReader(body))
	if err != nil {
		return nil, orderhub.NewError(orderhub.ErrCodeSubmission, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, orderhub.NewError(orderhub.ErrCodeSubmission, "submission request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, orderhub.NewError(orderhub.ErrCodeSubmission, "failed to read response", err)
	}

	var parsed submitResponse
	// A detail-free parse failure on an error status still reports the
	// status below.
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, orderhub.NewError(orderhub.ErrCodeSubmission,
			fmt.Sprintf("bot returned status %d: %s", resp.StatusCode, serverDetail(parsed, respBody)),
			orderhub.ErrSubmissionFailed)
	}
	if !parsed.Success {
		return nil, orderhub.NewError(orderhub.ErrCodeSubmission,
			"bot rejected order: "+serverDetail(parsed, respBody), orderhub.ErrSubmissionFailed)
	}

	return &Receipt{
		TxHash:  parsed.TxHash,
		OrderID: parsed.OrderID,
	}, nil
}

func serverDetail(parsed submitResponse, raw []byte) string {
	if parsed.Message != "" {
		return parsed.Message
	}
	if parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(raw))
}

func encodeOrder(o *orderhub.Order) orderBody {
	return orderBody{
		User:                  o.User,
		Recipient:             o.Recipient,
		Filler:                o.Filler,
		CallRecipient:         o.CallRecipient,
		Inputs:                encodeTokens(o.Inputs),
		Outputs:               encodeTokens(o.Outputs),
		SourceChainID:         o.SourceChainID,
		DestinationChainID:    o.DestinationChainID,
		Sponsored:             o.Sponsored,
		PrimaryFillerDeadline: o.PrimaryFillerDeadline,
		Deadline:              o.Deadline,
		CallData:              "0x" + hex.EncodeToString(o.CallData),
		CallValue:             bigString(o.CallValue),
	}
}

func encodeTokens(tokens []orderhub.Token) []tokenBody {
	out := make([]tokenBody, len(tokens))
	for i, t := range tokens {
		out[i] = tokenBody{
			TokenType:    uint8(t.TokenType),
			TokenAddress: t.TokenAddress,
			TokenID:      bigString(t.TokenID),
			Amount:       bigString(t.Amount),
		}
	}
	return out
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
