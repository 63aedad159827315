package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbaliyan/smsbox/retry"
	"github.com/rbaliyan/smsbox/store"
	"github.com/rbaliyan/smsbox/store/memory"
)

type upload struct {
	key         string
	contentType string
	body        []byte
}

// memUploader keeps uploads in memory. The first failures calls fail with err.
type memUploader struct {
	mu       sync.Mutex
	uploads  []upload
	attempts int
	failures int
	err      error
}

func (u *memUploader) Upload(_ context.Context, key, contentType string, body io.Reader) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.attempts++
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if u.attempts <= u.failures {
		return "", u.err
	}
	u.uploads = append(u.uploads, upload{key: key, contentType: contentType, body: data})
	return "mem://" + key, nil
}

func fastRetry(maxRetries int) retry.Config {
	return retry.Config{MaxRetries: maxRetries, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func seedMessages(t *testing.T, n int) []store.Message {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(ctx) })

	base := time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC)
	msgs := make([]store.Message, 0, n)
	for i := range n {
		m, err := s.Insert(ctx, store.MessageData{
			ThreadID:      "thread-1",
			Address:       "+15550100001",
			Body:          strings.Repeat("x", i+1) + " <b>&",
			Date:          base.Add(time.Duration(i) * time.Minute),
			Folder:        store.FolderInbox,
			ServiceCenter: "+15550009999",
			Subject:       "hi",
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		msgs = append(msgs, m)
	}
	return msgs
}

func TestEncodeDecode(t *testing.T) {
	msgs := seedMessages(t, 2)

	var buf bytes.Buffer
	if err := Encode(&buf, msgs); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
	if !strings.Contains(buf.String(), "<b>&") {
		t.Error("expected html characters unescaped")
	}

	buf.WriteString("\n\n")
	records, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	got, want := records[1], msgs[1]
	if got.ID != want.GetID() || got.Body != want.GetBody() || got.Folder != store.FolderInbox {
		t.Errorf("record mismatch: %+v", got)
	}
	if !got.Date.Equal(want.GetDate()) {
		t.Errorf("date = %v, want %v", got.Date, want.GetDate())
	}
	if got.ServiceCenter != "+15550009999" || got.Subject != "hi" {
		t.Errorf("optional fields lost: %+v", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader("{\"id\":\"a\"}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 error, got %v", err)
	}
}

func TestNewRequiresUploader(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrUploaderRequired) {
		t.Errorf("expected ErrUploaderRequired, got %v", err)
	}
}

func newTestArchiver(t *testing.T, u Uploader, opts ...Option) *Archiver {
	t.Helper()
	day := time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)
	opts = append([]Option{
		WithClock(func() time.Time { return day }),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRetry(fastRetry(2)),
	}, opts...)
	a, err := New(u, opts...)
	if err != nil {
		t.Fatalf("new archiver: %v", err)
	}
	return a
}

func TestArchiverUploadsBatch(t *testing.T) {
	u := &memUploader{}
	a := newTestArchiver(t, u, WithPrefix("/backups/"))
	msgs := seedMessages(t, 3)

	if err := a.Archive(context.Background(), "thread-1", msgs); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(u.uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(u.uploads))
	}
	up := u.uploads[0]
	if !strings.HasPrefix(up.key, "backups/2024/01/31/thread-1/") || !strings.HasSuffix(up.key, ".jsonl") {
		t.Errorf("unexpected key %q", up.key)
	}
	if up.contentType != ContentType {
		t.Errorf("content type = %q", up.contentType)
	}
	records, err := Decode(bytes.NewReader(up.body))
	if err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 records, got %d", len(records))
	}
}

func TestArchiverEmptyBatch(t *testing.T) {
	u := &memUploader{}
	a := newTestArchiver(t, u)
	if err := a.Archive(context.Background(), "thread-1", nil); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if u.attempts != 0 {
		t.Errorf("expected no upload, got %d", u.attempts)
	}
}

func TestArchiverRetriesUpload(t *testing.T) {
	u := &memUploader{failures: 2, err: errors.New("503 slow down")}
	a := newTestArchiver(t, u)

	if err := a.Archive(context.Background(), "thread-1", seedMessages(t, 2)); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if u.attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", u.attempts)
	}
	records, err := Decode(bytes.NewReader(u.uploads[0].body))
	if err != nil || len(records) != 2 {
		t.Errorf("retried upload must carry the full body: %d records, %v", len(records), err)
	}
}

func TestArchiverGivesUp(t *testing.T) {
	cause := errors.New("bucket unavailable")
	u := &memUploader{failures: 100, err: cause}
	a := newTestArchiver(t, u, WithRetry(fastRetry(1)))

	err := a.Archive(context.Background(), "thread-1", seedMessages(t, 1))
	if !errors.Is(err, retry.ErrMaxRetries) || !errors.Is(err, cause) {
		t.Errorf("expected max retries wrapping cause, got %v", err)
	}
	if u.attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", u.attempts)
	}
}

func TestArchiverKeyThread(t *testing.T) {
	a := newTestArchiver(t, &memUploader{})
	tests := []struct {
		thread string
		want   string
	}{
		{"thread-1", "smsbox-archive/2024/01/31/thread-1/"},
		{"a/b", "smsbox-archive/2024/01/31/a_b/"},
		{"", "smsbox-archive/2024/01/31/unthreaded/"},
		{"..", "smsbox-archive/2024/01/31/unthreaded/"},
	}
	for _, tt := range tests {
		t.Run(tt.thread, func(t *testing.T) {
			if got := a.key(tt.thread); !strings.HasPrefix(got, tt.want) {
				t.Errorf("key(%q) = %q, want prefix %q", tt.thread, got, tt.want)
			}
		})
	}
}
