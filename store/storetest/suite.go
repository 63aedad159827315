// Package storetest provides a conformance suite that every store.Store
// backend runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/smsbox/store"
)

// Factory returns a connected, empty store. The factory owns cleanup and
// should register it with t.Cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores built by newStore.
// Each subtest gets its own store.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InsertAssignsThreadAndID", testInsertAssignsThreadAndID},
		{"InsertValidation", testInsertValidation},
		{"GetMissing", testGetMissing},
		{"FindOrderingAndPaging", testFindOrderingAndPaging},
		{"FindDescendingDefault", testFindDescendingDefault},
		{"UpdateAndDeleteRequireFilters", testUpdateAndDeleteRequireFilters},
		{"UpdateCounts", testUpdateCounts},
		{"UpdateFields", testUpdateFields},
		{"DeleteCounts", testDeleteCounts},
		{"MoveToFolderTransitions", testMoveToFolderTransitions},
		{"ConcurrentMoveOnlyOneWins", testConcurrentMoveOnlyOneWins},
		{"ConcurrentThreadCreate", testConcurrentThreadCreate},
		{"Stats", testStats},
		{"FilterOperators", testFilterOperators},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// Insert stores a message with the given fields or fails the test.
func Insert(t *testing.T, s store.Store, folder, address, body string, date time.Time) store.Message {
	t.Helper()
	m, err := s.Insert(context.Background(), store.MessageData{
		Address: address,
		Body:    body,
		Folder:  folder,
		Date:    date,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return m
}

func testInsertAssignsThreadAndID(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := Insert(t, s, store.FolderInbox, "555", "one", time.UnixMilli(1000))
	b := Insert(t, s, store.FolderInbox, "555", "two", time.UnixMilli(2000))
	c := Insert(t, s, store.FolderInbox, "777", "three", time.UnixMilli(3000))

	if a.GetID() == "" || a.GetID() == b.GetID() {
		t.Fatalf("expected distinct ids, got %q and %q", a.GetID(), b.GetID())
	}
	if a.GetThreadID() == "" || a.GetThreadID() != b.GetThreadID() {
		t.Fatalf("same address should share a thread: %q vs %q", a.GetThreadID(), b.GetThreadID())
	}
	if a.GetThreadID() == c.GetThreadID() {
		t.Fatalf("different addresses should not share a thread")
	}

	got, err := s.Get(ctx, a.GetID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GetBody() != "one" || got.GetFolder() != store.FolderInbox || got.GetAddress() != "555" {
		t.Fatalf("unexpected message: body=%q folder=%q address=%q", got.GetBody(), got.GetFolder(), got.GetAddress())
	}
	if !got.GetDate().Equal(time.UnixMilli(1000)) {
		t.Fatalf("date not preserved: %v", got.GetDate())
	}
	if got.GetCreatedAt().IsZero() {
		t.Fatalf("created_at not set")
	}

	threadID, err := s.GetOrCreateThread(ctx, "555")
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	if threadID != a.GetThreadID() {
		t.Fatalf("GetOrCreateThread returned %q, want %q", threadID, a.GetThreadID())
	}
}

func testInsertValidation(t *testing.T, s store.Store) {
	ctx := context.Background()

	tests := []struct {
		name string
		data store.MessageData
		want error
	}{
		{"empty address", store.MessageData{Folder: store.FolderInbox}, store.ErrEmptyAddress},
		{"bad folder", store.MessageData{Address: "1", Folder: "inbox"}, store.ErrInvalidFolder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Insert(ctx, tt.data); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := Insert(t, s, store.FolderInbox, "1", "x", time.Time{})
	if _, err := s.Delete(ctx, []store.Filter{store.IDIs(m.GetID())}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, m.GetID()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, ""); !errors.Is(err, store.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for empty id, got %v", err)
	}
}

func testFindOrderingAndPaging(t *testing.T, s store.Store) {
	ctx := context.Background()

	base := time.UnixMilli(1_000_000)
	Insert(t, s, store.FolderQueued, "1", "c", base.Add(3*time.Second))
	Insert(t, s, store.FolderQueued, "1", "a", base.Add(1*time.Second))
	Insert(t, s, store.FolderQueued, "1", "b", base.Add(2*time.Second))
	Insert(t, s, store.FolderInbox, "1", "inbox", base)

	queued := []store.Filter{store.InFolder(store.FolderQueued)}
	list, err := s.Find(ctx, queued, store.ListOptions{
		SortBy:    "date",
		SortOrder: store.SortAsc,
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if list.Total != 3 || !list.HasMore || len(list.Messages) != 2 {
		t.Fatalf("unexpected page: total=%d hasMore=%v len=%d", list.Total, list.HasMore, len(list.Messages))
	}
	if list.Messages[0].GetBody() != "a" || list.Messages[1].GetBody() != "b" {
		t.Fatalf("wrong order: %q, %q", list.Messages[0].GetBody(), list.Messages[1].GetBody())
	}

	next, err := s.Find(ctx, queued, store.ListOptions{
		SortBy:    "date",
		SortOrder: store.SortAsc,
		Limit:     2,
		Offset:    2,
	})
	if err != nil {
		t.Fatalf("find page 2: %v", err)
	}
	if len(next.Messages) != 1 || next.Messages[0].GetBody() != "c" || next.HasMore {
		t.Fatalf("unexpected second page: len=%d hasMore=%v", len(next.Messages), next.HasMore)
	}

	if _, err := s.Find(ctx, nil, store.ListOptions{SortBy: "body"}); !errors.Is(err, store.ErrFilterInvalid) {
		t.Fatalf("expected ErrFilterInvalid for unsortable field, got %v", err)
	}
}

func testFindDescendingDefault(t *testing.T, s store.Store) {
	ctx := context.Background()
	Insert(t, s, store.FolderInbox, "1", "first", time.Time{})
	Insert(t, s, store.FolderInbox, "1", "second", time.Time{})

	list, err := s.Find(ctx, nil, store.ListOptions{})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(list.Messages) != 2 || list.Messages[0].GetBody() != "second" {
		t.Fatalf("expected newest first by created_at")
	}
}

func testUpdateAndDeleteRequireFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	body := "x"

	if _, err := s.Update(ctx, nil, store.MessageUpdate{Body: &body}); !errors.Is(err, store.ErrFilterInvalid) {
		t.Fatalf("expected ErrFilterInvalid, got %v", err)
	}
	if _, err := s.Delete(ctx, nil); !errors.Is(err, store.ErrFilterInvalid) {
		t.Fatalf("expected ErrFilterInvalid, got %v", err)
	}
	m := Insert(t, s, store.FolderInbox, "1", "a", time.Time{})
	if _, err := s.Update(ctx, []store.Filter{store.IDIs(m.GetID())}, store.MessageUpdate{}); !errors.Is(err, store.ErrEmptyUpdate) {
		t.Fatalf("expected ErrEmptyUpdate, got %v", err)
	}
}

func testUpdateCounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	Insert(t, s, store.FolderOutbox, "1", "a", time.Time{})
	Insert(t, s, store.FolderOutbox, "2", "b", time.Time{})
	sent := Insert(t, s, store.FolderSent, "3", "c", time.Time{})

	queued := store.FolderQueued
	n, err := s.Update(ctx, []store.Filter{store.InFolder(store.FolderOutbox)}, store.MessageUpdate{Folder: &queued})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 updated, got %d", n)
	}
	if c, _ := s.Count(ctx, []store.Filter{store.InFolder(store.FolderOutbox)}); c != 0 {
		t.Fatalf("expected empty outbox, got %d", c)
	}

	got, err := s.Get(ctx, sent.GetID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GetFolder() != store.FolderSent {
		t.Fatalf("unfiltered message changed folder")
	}

	n, err = s.Update(ctx, []store.Filter{store.ThreadIs("missing")}, store.MessageUpdate{Folder: &queued})
	if err != nil || n != 0 {
		t.Fatalf("expected 0 rows for missing thread, got %d (%v)", n, err)
	}
}

func testUpdateFields(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := Insert(t, s, store.FolderInbox, "555", "v1", time.UnixMilli(5000))

	body, subject, sc := "v2", "subj", "+100"
	reply, read := true, true
	date := time.UnixMilli(9000)
	n, err := s.Update(ctx, []store.Filter{store.IDIs(m.GetID())}, store.MessageUpdate{
		Body:             &body,
		Subject:          &subject,
		ServiceCenter:    &sc,
		ReplyPathPresent: &reply,
		IsRead:           &read,
		Date:             &date,
	})
	if err != nil || n != 1 {
		t.Fatalf("update: n=%d err=%v", n, err)
	}
	got, err := s.Get(ctx, m.GetID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.GetBody() != "v2" || got.GetSubject() != "subj" || got.GetServiceCenter() != "+100" {
		t.Fatalf("fields not updated: %q %q %q", got.GetBody(), got.GetSubject(), got.GetServiceCenter())
	}
	if !got.GetReplyPathPresent() || !got.GetIsRead() {
		t.Fatalf("flags not updated")
	}
	if !got.GetDate().Equal(date) {
		t.Fatalf("date not updated: %v", got.GetDate())
	}
	if got.GetThreadID() != m.GetThreadID() || got.GetID() != m.GetID() {
		t.Fatalf("identity changed on update")
	}
}

func testDeleteCounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := Insert(t, s, store.FolderInbox, "1", "a", time.Time{})
	b := Insert(t, s, store.FolderInbox, "1", "b", time.Time{})
	Insert(t, s, store.FolderInbox, "1", "c", time.Time{})

	n, err := s.Delete(ctx, []store.Filter{store.IDIn(a.GetID(), b.GetID())})
	if err != nil || n != 2 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}
	n, err = s.Delete(ctx, []store.Filter{store.IDIs(a.GetID())})
	if err != nil || n != 0 {
		t.Fatalf("second delete: n=%d err=%v", n, err)
	}
	if c, _ := s.Count(ctx, nil); c != 1 {
		t.Fatalf("expected 1 remaining, got %d", c)
	}
}

func testMoveToFolderTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()

	tests := []struct {
		from, to string
		want     error
	}{
		{store.FolderOutbox, store.FolderSent, nil},
		{store.FolderOutbox, store.FolderFailed, nil},
		{store.FolderOutbox, store.FolderQueued, nil},
		{store.FolderQueued, store.FolderOutbox, nil},
		{store.FolderFailed, store.FolderQueued, nil},
		{store.FolderInbox, store.FolderSent, store.ErrInvalidTransition},
		{store.FolderSent, store.FolderOutbox, store.ErrInvalidTransition},
		{store.FolderQueued, store.FolderSent, store.ErrInvalidTransition},
		{store.FolderFailed, store.FolderInbox, store.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			m := Insert(t, s, tt.from, "1", "x", time.Time{})
			err := s.MoveToFolder(ctx, m.GetID(), tt.to)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			got, err := s.Get(ctx, m.GetID())
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			wantFolder := tt.to
			if tt.want != nil {
				wantFolder = tt.from
			}
			if got.GetFolder() != wantFolder {
				t.Fatalf("expected folder %s, got %s", wantFolder, got.GetFolder())
			}
		})
	}

	m := Insert(t, s, store.FolderOutbox, "1", "gone", time.Time{})
	if _, err := s.Delete(ctx, []store.Filter{store.IDIs(m.GetID())}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.MoveToFolder(ctx, m.GetID(), store.FolderSent); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.MoveToFolder(ctx, m.GetID(), "bogus"); !errors.Is(err, store.ErrInvalidFolder) {
		t.Fatalf("expected ErrInvalidFolder, got %v", err)
	}
}

func testConcurrentMoveOnlyOneWins(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := Insert(t, s, store.FolderQueued, "1", "x", time.Time{})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.MoveToFolder(ctx, m.GetID(), store.FolderOutbox); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one successful move, got %d", wins)
	}
}

func testConcurrentThreadCreate(t *testing.T, s store.Store) {
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]bool)
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.GetOrCreateThread(ctx, "+15550001")
			if err != nil {
				t.Errorf("get or create thread: %v", err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != 1 {
		t.Fatalf("expected one thread id, got %d", len(ids))
	}
	if _, err := s.GetOrCreateThread(ctx, ""); !errors.Is(err, store.ErrEmptyAddress) {
		t.Fatalf("expected ErrEmptyAddress, got %v", err)
	}
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()

	Insert(t, s, store.FolderInbox, "1", "a", time.Time{})
	Insert(t, s, store.FolderInbox, "1", "b", time.Time{})
	Insert(t, s, store.FolderFailed, "1", "c", time.Time{})
	read := true
	if _, err := s.Update(ctx, []store.Filter{store.InFolder(store.FolderFailed)}, store.MessageUpdate{IsRead: &read}); err != nil {
		t.Fatalf("update: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Unread != 2 {
		t.Fatalf("unexpected totals: total=%d unread=%d", stats.Total, stats.Unread)
	}
	if got := stats.InFolder(store.FolderInbox); got.Total != 2 || got.Unread != 2 {
		t.Fatalf("unexpected inbox counts: %+v", got)
	}
	if got := stats.InFolder(store.FolderFailed); got.Total != 1 || got.Unread != 0 {
		t.Fatalf("unexpected failed counts: %+v", got)
	}
	if got := stats.InFolder(store.FolderSent); got.Total != 0 {
		t.Fatalf("expected empty sent folder, got %+v", got)
	}
}

func testFilterOperators(t *testing.T, s store.Store) {
	ctx := context.Background()

	old := Insert(t, s, store.FolderInbox, "1", "old", time.UnixMilli(10_000))
	Insert(t, s, store.FolderInbox, "1", "new", time.UnixMilli(20_000))

	tests := []struct {
		name    string
		filters []store.Filter
		want    int64
	}{
		{"date before", []store.Filter{store.DateBefore(time.UnixMilli(15_000))}, 1},
		{"id in", []store.Filter{store.IDIn(old.GetID(), "00000000-0000-0000-0000-000000000000")}, 1},
		{"protocol and address", []store.Filter{store.ProtocolIs(0), store.AddressIs("1")}, 2},
		{"protocol mismatch", []store.Filter{store.ProtocolIs(1)}, 0},
		{"unread", []store.Filter{store.IsReadFilter(false)}, 2},
		{"folders", []store.Filter{store.InFolders(store.FolderSent, store.FolderInbox)}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.Count(ctx, tt.filters)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if n != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, n)
			}
		})
	}
}
