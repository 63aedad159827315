package smsbox

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Limits holds message validation limits.
type Limits struct {
	MaxBodySize      int
	MaxAddressLength int
}

// DefaultLimits returns the default message limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBodySize:      DefaultMaxBodySize,
		MaxAddressLength: DefaultMaxAddressLength,
	}
}

// ValidateAddress validates a counterpart address against limits.
// Addresses may be phone numbers, short codes, alphanumeric sender IDs or
// email gateway addresses, so only emptiness, length and control characters
// are checked.
func ValidateAddress(address string, limits Limits) error {
	if strings.TrimSpace(address) == "" {
		return ErrEmptyAddress
	}
	if len(address) > limits.MaxAddressLength {
		return fmt.Errorf("%w: address length %d exceeds max %d", ErrAddressTooLong, len(address), limits.MaxAddressLength)
	}
	if !utf8.ValidString(address) {
		return fmt.Errorf("%w: address contains invalid UTF-8", ErrInvalidContent)
	}
	for _, r := range address {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: address contains control character U+%04X", ErrInvalidContent, r)
		}
	}
	return nil
}

// ValidateBody validates a message body against limits.
func ValidateBody(body string, limits Limits) error {
	if len(body) > limits.MaxBodySize {
		return fmt.Errorf("%w: body size %d exceeds max %d bytes", ErrBodyTooLarge, len(body), limits.MaxBodySize)
	}

	if !utf8.ValidString(body) {
		return fmt.Errorf("%w: body contains invalid UTF-8", ErrInvalidContent)
	}

	if strings.ContainsRune(body, '\x00') {
		return fmt.Errorf("%w: body contains null bytes", ErrInvalidContent)
	}

	return nil
}

// ValidateOutgoing validates an outbound message before it is queued.
func ValidateOutgoing(address, body string, limits Limits) error {
	if err := ValidateAddress(address, limits); err != nil {
		return &ValidationError{Field: "address", Message: err.Error(), Err: err}
	}
	if err := ValidateBody(body, limits); err != nil {
		return &ValidationError{Field: "body", Message: err.Error(), Err: err}
	}
	return nil
}

// ValidateParts validates the parts of a received message.
// Only the first part's address is checked. Received bodies are not size
// limited since the network already bounds the number of parts.
func ValidateParts(parts []PDU, limits Limits) error {
	if len(parts) == 0 {
		return ErrNoParts
	}
	if err := ValidateAddress(parts[0].OriginatingAddress, limits); err != nil {
		return &ValidationError{Field: "address", Message: err.Error(), Err: err}
	}
	return nil
}
