// Package resolver provides ContactResolver implementations.
package resolver

import (
	"context"
	"maps"
	"strings"

	"github.com/rbaliyan/smsbox"
)

var (
	_ smsbox.ContactResolver = (*Static)(nil)
	_ smsbox.ContactResolver = Digits{}
)

// Static is a map-based ContactResolver for testing and simple deployments.
// Addresses missing from the map fall back to Digits normalisation.
// Safe for concurrent use (read-only after creation).
type Static struct {
	addresses map[string]string
}

// NewStatic creates a Static resolver from a map of address to canonical
// address. Keys are normalised with Digits, so "+1 (555) 010-0001" and
// "+15550100001" find the same entry. The map is copied to prevent external
// mutation.
func NewStatic(addresses map[string]string) *Static {
	m := make(map[string]string, len(addresses))
	for k, v := range addresses {
		m[Normalize(k)] = v
	}
	return &Static{addresses: m}
}

// CanonicalAddress returns the mapped address, or the normalised input when
// there is no mapping.
func (s *Static) CanonicalAddress(_ context.Context, address string) string {
	key := Normalize(address)
	if canonical, ok := s.addresses[key]; ok {
		return canonical
	}
	return key
}

// Addresses returns a copy of the mapping.
func (s *Static) Addresses() map[string]string {
	return maps.Clone(s.addresses)
}

// Digits strips phone number formatting. It is the fallback for every
// resolver in this package.
type Digits struct{}

// CanonicalAddress returns Normalize(address).
func (Digits) CanonicalAddress(_ context.Context, address string) string {
	return Normalize(address)
}

// Normalize removes spaces, dashes, dots and parentheses from phone numbers,
// keeping a leading plus. Addresses that contain letters (alphanumeric sender
// IDs, email gateways) are only trimmed.
func Normalize(address string) string {
	address = strings.TrimSpace(address)
	if strings.IndexFunc(address, isLetterOrAt) >= 0 {
		return address
	}

	var sb strings.Builder
	sb.Grow(len(address))
	for i, r := range address {
		switch {
		case r >= '0' && r <= '9', r == '*', r == '#':
			sb.WriteRune(r)
		case r == '+' && i == 0:
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return address
	}
	return sb.String()
}

func isLetterOrAt(r rune) bool {
	return r == '@' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
