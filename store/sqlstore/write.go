package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/smsbox/store"
)

// GetOrCreateThread returns the thread for address, creating it on first use.
// The unique address column makes concurrent creation safe: losers of the
// insert race read the winner's row.
func (s *Store) GetOrCreateThread(ctx context.Context, address string) (string, error) {
	if err := s.checkConnected(); err != nil {
		return "", err
	}
	if address == "" {
		return "", store.ErrEmptyAddress
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	insert := s.db.Rebind(s.dialect.insertIgnore(s.opts.threadTable, "address", "id, address, created_at", "?, ?, ?"))
	if _, err := s.db.ExecContext(ctx, insert, uuid.New().String(), address, s.now()); err != nil {
		return "", fmt.Errorf("insert thread: %w", err)
	}

	var id string
	query := s.db.Rebind(fmt.Sprintf(`SELECT id FROM %s WHERE address = ?`, s.opts.threadTable))
	if err := s.db.GetContext(ctx, &id, query, address); err != nil {
		return "", fmt.Errorf("select thread: %w", err)
	}
	return id, nil
}

// Insert stores a new message.
func (s *Store) Insert(ctx context.Context, data store.MessageData) (store.Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	threadID := data.ThreadID
	if threadID == "" {
		var err error
		if threadID, err = s.GetOrCreateThread(ctx, data.Address); err != nil {
			return nil, err
		}
	}

	now := s.now()
	r := &row{
		ID:               uuid.New().String(),
		ThreadID:         threadID,
		Address:          data.Address,
		Body:             data.Body,
		Protocol:         data.Protocol,
		Date:             data.Date.UnixNano(),
		Folder:           data.Folder,
		IsRead:           data.IsRead,
		ReplyPathPresent: data.ReplyPathPresent,
		ServiceCenter:    data.ServiceCenter,
		Subject:          data.Subject,
		ErrorCode:        data.ErrorCode,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if data.Date.IsZero() {
		r.Date = now
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, thread_id, address, body, protocol, msg_date, folder, is_read,
		                reply_path, service_center, subject, error_code, created_at, updated_at)
		VALUES (:id, :thread_id, :address, :body, :protocol, :msg_date, :folder, :is_read,
		        :reply_path, :service_center, :subject, :error_code, :created_at, :updated_at)
	`, s.opts.table)

	if _, err := s.db.NamedExecContext(ctx, query, r); err != nil {
		if s.dialect.uniqueViolation(err) {
			return nil, store.ErrDuplicateEntry
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return r, nil
}

// Update applies the update to every message matching the filters.
func (s *Store) Update(ctx context.Context, filters []store.Filter, update store.MessageUpdate) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, store.ErrFilterInvalid
	}
	if err := update.Validate(); err != nil {
		return 0, err
	}

	set, setArgs := buildSetClause(update)
	set = append(set, "updated_at = ?")
	setArgs = append(setArgs, s.now())

	where, whereArgs, err := buildWhereClause(filters)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := s.db.Rebind(fmt.Sprintf(`UPDATE %s SET %s WHERE %s`, s.opts.table, strings.Join(set, ", "), where))
	result, err := s.db.ExecContext(ctx, query, append(setArgs, whereArgs...)...)
	if err != nil {
		return 0, fmt.Errorf("update messages: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rows, nil
}

func buildSetClause(u store.MessageUpdate) ([]string, []any) {
	var set []string
	var args []any
	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, sqlValue(v))
	}
	if u.Address != nil {
		add("address", *u.Address)
	}
	if u.Body != nil {
		add("body", *u.Body)
	}
	if u.Protocol != nil {
		add("protocol", *u.Protocol)
	}
	if u.Date != nil {
		add("msg_date", *u.Date)
	}
	if u.Folder != nil {
		add("folder", *u.Folder)
	}
	if u.IsRead != nil {
		add("is_read", *u.IsRead)
	}
	if u.ReplyPathPresent != nil {
		add("reply_path", *u.ReplyPathPresent)
	}
	if u.ServiceCenter != nil {
		add("service_center", *u.ServiceCenter)
	}
	if u.Subject != nil {
		add("subject", *u.Subject)
	}
	if u.ErrorCode != nil {
		add("error_code", *u.ErrorCode)
	}
	return set, args
}

// Delete removes every message matching the filters.
func (s *Store) Delete(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if len(filters) == 0 {
		return 0, store.ErrFilterInvalid
	}

	where, args, err := buildWhereClause(filters)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := s.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.opts.table, where))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rows, nil
}

// MoveToFolder moves a message with a single conditional update on its
// current folder, so the transition check and the write cannot interleave
// with another writer.
func (s *Store) MoveToFolder(ctx context.Context, id, folder string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrInvalidID
	}
	if !store.IsValidFolder(folder) {
		return store.ErrInvalidFolder
	}
	sources := store.AllowedSources(folder)
	if len(sources) == 0 {
		return store.ErrInvalidTransition
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query, args, err := sqlx.In(
		fmt.Sprintf(`UPDATE %s SET folder = ?, updated_at = ? WHERE id = ? AND folder IN (?)`, s.opts.table),
		folder, s.now(), id, sources,
	)
	if err != nil {
		return fmt.Errorf("move to folder: %w", err)
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("move to folder: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Nothing moved: tell a missing message apart from a refused transition.
	var current string
	check := s.db.Rebind(fmt.Sprintf(`SELECT folder FROM %s WHERE id = ?`, s.opts.table))
	if err := s.db.GetContext(ctx, &current, check, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("move to folder: %w", err)
	}
	return store.ErrInvalidTransition
}
