package sqlstore

import (
	"context"
	"fmt"

	"github.com/rbaliyan/smsbox/store"
)

// Stats returns aggregate statistics with a single grouped query.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT folder,
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_read THEN 0 ELSE 1 END), 0) AS unread
		FROM %s
		GROUP BY folder
	`, s.opts.table)

	var groups []struct {
		Folder string `db:"folder"`
		Total  int64  `db:"total"`
		Unread int64  `db:"unread"`
	}
	if err := s.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	stats := &store.Stats{
		Folders: make(map[string]store.FolderCounts, len(groups)),
	}
	for _, g := range groups {
		stats.Total += g.Total
		stats.Unread += g.Unread
		stats.Folders[g.Folder] = store.FolderCounts{Total: g.Total, Unread: g.Unread}
	}
	return stats, nil
}
