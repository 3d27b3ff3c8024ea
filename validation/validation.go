// Package validation provides the synchronous format checks shared by the
// signing and submission paths.
package validation

import (
	"fmt"
	"math/big"
	"regexp"

	orderhub "github.com/orderhub-labs/orderhub-go"
)

var (
	// signatureRegex matches a 65-byte hex signature (0x + 130 hex chars).
	signatureRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{130}$`)

	// orderIDRegex matches a 32-byte hex identifier (0x + 64 hex chars).
	orderIDRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

	// addressRegex matches an Ethereum-style address (0x + 40 hex chars).
	addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
)

// ValidateSignature checks that sig is a 0x-prefixed 65-byte hex signature.
func ValidateSignature(sig string) error {
	if !signatureRegex.MatchString(sig) {
		return orderhub.NewError(orderhub.ErrCodeValidation,
			fmt.Sprintf("signature must be 132 hex characters including prefix, got %d", len(sig)),
			orderhub.ErrInvalidSignature)
	}
	return nil
}

// ValidateOrderID checks that id is a 0x-prefixed 32-byte hex identifier.
func ValidateOrderID(id string) error {
	if !orderIDRegex.MatchString(id) {
		return orderhub.NewError(orderhub.ErrCodeValidation,
			"order id must be a 0x-prefixed 32-byte hex string", orderhub.ErrInvalidOrderID)
	}
	return nil
}

// ValidateAddress checks that addr is a 0x-prefixed 20-byte hex address.
func ValidateAddress(addr string) error {
	if !addressRegex.MatchString(addr) {
		return orderhub.NewError(orderhub.ErrCodeValidation,
			"address must be a 0x-prefixed 20-byte hex string", orderhub.ErrInvalidAddress)
	}
	return nil
}

// ValidateAmount checks that amount is a positive decimal integer string.
func ValidateAmount(amount string) error {
	if amount == "" {
		return orderhub.NewError(orderhub.ErrCodeValidation, "amount cannot be empty", orderhub.ErrInvalidAmount)
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return orderhub.NewError(orderhub.ErrCodeValidation, "invalid amount format: "+amount, orderhub.ErrInvalidAmount)
	}
	if amt.Sign() <= 0 {
		return orderhub.NewError(orderhub.ErrCodeValidation, "amount must be greater than 0, got: "+amount, orderhub.ErrInvalidAmount)
	}
	return nil
}

// ValidateDeadlines checks the order deadline ordering invariant.
func ValidateDeadlines(primaryFillerDeadline, deadline uint64) error {
	if primaryFillerDeadline >= deadline {
		return orderhub.NewError(orderhub.ErrCodeValidation,
			"primary filler deadline must precede order deadline", orderhub.ErrDeadlineOrder)
	}
	return nil
}
