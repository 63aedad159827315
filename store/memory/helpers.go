package memory

import (
	"slices"
	"strings"
	"time"

	"github.com/rbaliyan/smsbox/store"
)

func matchesFilters(m *message, filters []store.Filter) bool {
	for _, f := range filters {
		if !matchesFilter(m, f) {
			return false
		}
	}
	return true
}

func fieldValue(m *message, key string) (any, bool) {
	switch key {
	case "id":
		return m.id, true
	case "thread_id":
		return m.threadID, true
	case "address":
		return m.address, true
	case "body":
		return m.body, true
	case "protocol":
		return m.protocol, true
	case "date":
		return m.date, true
	case "folder":
		return m.folder, true
	case "is_read":
		return m.isRead, true
	case "reply_path_present":
		return m.replyPathPresent, true
	case "service_center":
		return m.serviceCenter, true
	case "subject":
		return m.subject, true
	case "error_code":
		return m.errorCode, true
	case "created_at":
		return m.createdAt, true
	case "updated_at":
		return m.updatedAt, true
	}
	return nil, false
}

func matchesFilter(m *message, f store.Filter) bool {
	fv, ok := fieldValue(m, f.Key())
	if !ok {
		return false // unknown field never matches
	}
	value := f.Value()

	switch f.Operator() {
	case "eq", "":
		return compareValues(fv, value) == 0 && sameKind(fv, value)
	case "ne":
		return !(compareValues(fv, value) == 0 && sameKind(fv, value))
	case "lt":
		return sameKind(fv, value) && compareValues(fv, value) < 0
	case "lte":
		return sameKind(fv, value) && compareValues(fv, value) <= 0
	case "gt":
		return sameKind(fv, value) && compareValues(fv, value) > 0
	case "gte":
		return sameKind(fv, value) && compareValues(fv, value) >= 0
	case "in":
		return valueInSet(fv, value)
	case "nin":
		return !valueInSet(fv, value)
	default:
		return false
	}
}

// sameKind reports whether two filter operands can be compared.
func sameKind(a, b any) bool {
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case int:
		_, ok := b.(int)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	case time.Time:
		_, ok := b.(time.Time)
		return ok
	}
	return false
}

// valueInSet checks if a scalar value is in a set (slice) of values.
func valueInSet(fieldValue any, set any) bool {
	switch s := set.(type) {
	case []string:
		fv, ok := fieldValue.(string)
		return ok && slices.Contains(s, fv)
	case []any:
		for _, v := range s {
			if sameKind(fieldValue, v) && compareValues(fieldValue, v) == 0 {
				return true
			}
		}
	}
	return false
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			if av < bv {
				return -1
			} else if av > bv {
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			if av == bv {
				return 0
			}
			if !av {
				return -1
			}
			return 1
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	return 0
}

func sortKey(m *message, sortBy string) time.Time {
	switch sortBy {
	case "date":
		return m.date
	case "updated_at":
		return m.updatedAt
	default:
		return m.createdAt
	}
}

// sortMessages orders by sortBy, then created_at, then id.
// The default direction is descending (newest first).
func sortMessages(msgs []*message, sortBy string, order store.SortOrder) {
	if order == 0 {
		order = store.SortDesc
	}
	slices.SortStableFunc(msgs, func(a, b *message) int {
		c := sortKey(a, sortBy).Compare(sortKey(b, sortBy))
		if c == 0 {
			c = a.createdAt.Compare(b.createdAt)
		}
		if c == 0 {
			c = strings.Compare(a.id, b.id)
		}
		if order == store.SortDesc {
			return -c
		}
		return c
	})
}
