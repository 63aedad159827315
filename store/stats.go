package store

import (
	"context"
	"maps"
)

// FolderCounts holds the message and unread counts for a folder.
type FolderCounts struct {
	Total  int64
	Unread int64
}

// Stats holds aggregate statistics over all stored messages.
type Stats struct {
	// Total is the number of stored messages.
	Total int64
	// Unread is the number of unread messages across all folders.
	Unread int64
	// Folders contains per-folder counts keyed by folder (e.g. "__inbox").
	// Missing keys mean zero.
	Folders map[string]FolderCounts
}

// Clone returns a deep copy of the stats.
func (s *Stats) Clone() *Stats {
	c := &Stats{
		Total:  s.Total,
		Unread: s.Unread,
	}
	if s.Folders != nil {
		c.Folders = make(map[string]FolderCounts, len(s.Folders))
		maps.Copy(c.Folders, s.Folders)
	}
	return c
}

// InFolder returns the counts for one folder.
func (s *Stats) InFolder(folder string) FolderCounts {
	if s == nil || s.Folders == nil {
		return FolderCounts{}
	}
	return s.Folders[folder]
}

// StatsStore provides aggregate statistics.
type StatsStore interface {
	// Stats returns totals and per-folder counts. Implementations should use
	// a single grouped query rather than one count per folder.
	Stats(ctx context.Context) (*Stats, error)
}
