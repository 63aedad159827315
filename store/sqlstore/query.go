package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/smsbox/store"
)

// Get retrieves a message by ID.
func (s *Store) Get(ctx context.Context, id string) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := s.db.Rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, messageColumns, s.opts.table))

	var r row
	if err := s.db.GetContext(ctx, &r, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &r, nil
}

// Find retrieves a page of messages matching the filters.
func (s *Store) Find(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.MessageList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	sortField := "created_at"
	if opts.SortBy != "" {
		key, ok := store.MessageOrderingKey(opts.SortBy)
		if !ok {
			return nil, store.ErrFilterInvalid
		}
		sortField, _ = column(key)
	}
	sortOrder := "DESC"
	if opts.SortOrder == store.SortAsc {
		sortOrder = "ASC"
	}

	where, args, err := buildWhereClause(filters)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var total int64
	countQuery := s.db.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.opts.table, where))
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = math.MaxInt32 - 1
	}
	offset := max(opts.Offset, 0)

	query := s.db.Rebind(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY %s %s, created_at %s, id %s
		LIMIT ? OFFSET ?
	`, messageColumns, s.opts.table, where, sortField, sortOrder, sortOrder, sortOrder))
	pageArgs := append(append([]any{}, args...), limit+1, offset)

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, pageArgs...); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	messages := make([]store.Message, len(rows))
	for i := range rows {
		messages[i] = &rows[i]
	}

	return &store.MessageList{
		Messages: messages,
		Total:    total,
		HasMore:  hasMore,
	}, nil
}

// Count returns the number of messages matching the filters.
func (s *Store) Count(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	where, args, err := buildWhereClause(filters)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var count int64
	query := s.db.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.opts.table, where))
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// buildWhereClause turns filters into a '?'-placeholder condition.
// Callers must Rebind the final statement.
func buildWhereClause(filters []store.Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "1=1", nil, nil
	}

	conditions := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		cond, condArgs, err := filterToCondition(f)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, cond)
		args = append(args, condArgs...)
	}
	return strings.Join(conditions, " AND "), args, nil
}

func filterToCondition(f store.Filter) (string, []any, error) {
	col, ok := column(f.Key())
	if !ok {
		return "", nil, fmt.Errorf("%w: unsupported field: %s", store.ErrFilterInvalid, f.Key())
	}
	val := sqlValue(f.Value())

	switch f.Operator() {
	case "eq", "":
		return col + " = ?", []any{val}, nil
	case "ne":
		return col + " <> ?", []any{val}, nil
	case "gt":
		return col + " > ?", []any{val}, nil
	case "gte":
		return col + " >= ?", []any{val}, nil
	case "lt":
		return col + " < ?", []any{val}, nil
	case "lte":
		return col + " <= ?", []any{val}, nil
	case "in", "nin":
		set, ok := val.([]any)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s expects a list", store.ErrFilterInvalid, f.Operator())
		}
		if len(set) == 0 {
			if f.Operator() == "in" {
				return "1=0", nil, nil
			}
			return "1=1", nil, nil
		}
		cond, inArgs, err := sqlx.In(col+" IN (?)", set)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", store.ErrFilterInvalid, err)
		}
		if f.Operator() == "nin" {
			cond = "NOT (" + cond + ")"
		}
		return cond, inArgs, nil
	default:
		return "", nil, fmt.Errorf("%w: unsupported operator: %s", store.ErrFilterInvalid, f.Operator())
	}
}
