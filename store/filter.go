package store

import (
	"fmt"
	"time"
)

// SortOrder represents the sort direction.
type SortOrder int

const (
	// SortAsc sorts in ascending order.
	SortAsc SortOrder = 1
	// SortDesc sorts in descending order.
	SortDesc SortOrder = -1
)

// ListOptions configures message listing.
// Backends must honour the ordering exactly: SortBy first, then created_at,
// then id, all in SortOrder direction.
type ListOptions struct {
	Limit     int
	Offset    int
	SortBy    string
	SortOrder SortOrder
}

// Filter represents a query filter with a field key, comparison operator, and value.
type Filter struct {
	key      string
	value    any
	operator string
}

// Key returns the storage field key.
func (f Filter) Key() string { return f.key }

// Value returns the filter value.
func (f Filter) Value() any { return f.value }

// Operator returns the comparison operator (eq, ne, gt, gte, lt, lte, in, nin).
func (f Filter) Operator() string { return f.operator }

// FilterBuilder builds filters for a specific message field.
// Use MessageFilter() to create one, then chain a comparison method:
//
//	filter, err := store.MessageFilter("Date").LessThan(cutoff)
type FilterBuilder struct {
	key string
	err error
}

// validOperators is the set of supported filter operators.
var validOperators = map[string]bool{
	"eq":  true,
	"ne":  true,
	"gt":  true,
	"gte": true,
	"lt":  true,
	"lte": true,
	"in":  true,
	"nin": true,
}

// NewFilter creates a filter with the given key, operator, and value.
// Returns ErrFilterInvalid if the key or operator is invalid.
func NewFilter(key, operator string, value any) (Filter, error) {
	storageKey, ok := MessageFieldKey(key)
	if !ok {
		return Filter{}, fmt.Errorf("%w: unsupported field: %s", ErrFilterInvalid, key)
	}
	if !validOperators[operator] {
		return Filter{}, fmt.Errorf("%w: unsupported operator: %s", ErrFilterInvalid, operator)
	}
	return Filter{key: storageKey, value: value, operator: operator}, nil
}

// FilterError represents an error in filter building.
type FilterError struct {
	Key string
	Err error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %s: %v", e.Key, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

func (b *FilterBuilder) build(op string, v any) (Filter, error) {
	if b.err != nil {
		return Filter{}, &FilterError{Key: b.key, Err: b.err}
	}
	return Filter{key: b.key, value: v, operator: op}, nil
}

func (b *FilterBuilder) Equal(v any) (Filter, error)            { return b.build("eq", v) }
func (b *FilterBuilder) NotEqual(v any) (Filter, error)         { return b.build("ne", v) }
func (b *FilterBuilder) GreaterThan(v any) (Filter, error)      { return b.build("gt", v) }
func (b *FilterBuilder) GreaterThanEqual(v any) (Filter, error) { return b.build("gte", v) }
func (b *FilterBuilder) LessThan(v any) (Filter, error)         { return b.build("lt", v) }
func (b *FilterBuilder) LessThanEqual(v any) (Filter, error)    { return b.build("lte", v) }

// In matches any of the given values. Values must share one type.
func (b *FilterBuilder) In(v ...any) (Filter, error) { return b.build("in", v) }

// NotIn matches none of the given values.
func (b *FilterBuilder) NotIn(v ...any) (Filter, error) { return b.build("nin", v) }

// MessageFilter returns a filter builder for message fields.
func MessageFilter(field string) *FilterBuilder {
	key, ok := MessageFieldKey(field)
	if !ok {
		return &FilterBuilder{key: field, err: fmt.Errorf("%w: unsupported field: %s", ErrFilterInvalid, field)}
	}
	return &FilterBuilder{key: key}
}

// MessageFieldKey maps field names to storage keys.
func MessageFieldKey(field string) (string, bool) {
	switch field {
	case "ID", "id":
		return "id", true
	case "ThreadID", "thread_id":
		return "thread_id", true
	case "Address", "address":
		return "address", true
	case "Body", "body":
		return "body", true
	case "Protocol", "protocol":
		return "protocol", true
	case "Date", "date":
		return "date", true
	case "Folder", "folder":
		return "folder", true
	case "IsRead", "is_read":
		return "is_read", true
	case "ReplyPathPresent", "reply_path_present":
		return "reply_path_present", true
	case "ServiceCenter", "service_center":
		return "service_center", true
	case "Subject", "subject":
		return "subject", true
	case "ErrorCode", "error_code":
		return "error_code", true
	case "CreatedAt", "created_at":
		return "created_at", true
	case "UpdatedAt", "updated_at":
		return "updated_at", true
	default:
		return "", false
	}
}

// MessageOrderingKey returns the storage key for sorting.
// Only time-valued fields are sortable.
func MessageOrderingKey(field string) (string, bool) {
	key, ok := MessageFieldKey(field)
	if !ok {
		return "", false
	}
	switch key {
	case "date", "created_at", "updated_at":
		return key, true
	}
	return "", false
}

// Convenience filter functions

// IDIs returns a filter for a single message.
func IDIs(id string) Filter {
	f, _ := MessageFilter("ID").Equal(id)
	return f
}

// IDIn returns a filter for any of the given messages.
func IDIn(ids ...string) Filter {
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	f, _ := MessageFilter("ID").In(vals...)
	return f
}

// InFolder returns a filter for messages in a specific folder.
func InFolder(folder string) Filter {
	f, _ := MessageFilter("Folder").Equal(folder)
	return f
}

// InFolders returns a filter for messages in any of the given folders.
func InFolders(folders ...string) Filter {
	vals := make([]any, len(folders))
	for i, folder := range folders {
		vals[i] = folder
	}
	f, _ := MessageFilter("Folder").In(vals...)
	return f
}

// ThreadIs returns a filter for messages in a specific thread.
func ThreadIs(threadID string) Filter {
	f, _ := MessageFilter("ThreadID").Equal(threadID)
	return f
}

// AddressIs returns an exact-match filter on the message address.
func AddressIs(address string) Filter {
	f, _ := MessageFilter("Address").Equal(address)
	return f
}

// ProtocolIs returns a filter on the protocol identifier.
func ProtocolIs(protocol int) Filter {
	f, _ := MessageFilter("Protocol").Equal(protocol)
	return f
}

// IsReadFilter returns a filter for read/unread messages.
func IsReadFilter(isRead bool) Filter {
	f, _ := MessageFilter("IsRead").Equal(isRead)
	return f
}

// DateBefore returns a filter for messages dated strictly before t.
func DateBefore(t time.Time) Filter {
	f, _ := MessageFilter("Date").LessThan(t)
	return f
}
