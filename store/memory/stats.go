package memory

import (
	"context"

	"github.com/rbaliyan/smsbox/store"
)

// Stats returns aggregate statistics in a single pass.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	stats := &store.Stats{
		Folders: make(map[string]store.FolderCounts),
	}
	s.messages.Range(func(_, v any) bool {
		m := v.(*message)
		stats.Total++
		c := stats.Folders[m.folder]
		c.Total++
		if !m.isRead {
			stats.Unread++
			c.Unread++
		}
		stats.Folders[m.folder] = c
		return true
	})
	return stats, nil
}
