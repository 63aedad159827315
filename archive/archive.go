// Package archive keeps a copy of messages before retention removes them.
//
// Messages are encoded as JSON lines, one record per message, and handed to
// an Uploader (see the s3 and gcs subpackages). Object keys are partitioned
// by date and thread:
//
//	<prefix>/2024/01/31/<thread_id>/<uuid>.jsonl
package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/smsbox"
	"github.com/rbaliyan/smsbox/retry"
	"github.com/rbaliyan/smsbox/store"
)

// ContentType is the media type of archive objects.
const ContentType = "application/x-ndjson"

// ErrUploaderRequired is returned by New without an uploader.
var ErrUploaderRequired = errors.New("archive: uploader is required")

// Uploader stores an archive object and returns its URI.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (uri string, err error)
}

// Record is the archived form of a message.
type Record struct {
	ID               string    `json:"id"`
	ThreadID         string    `json:"thread_id"`
	Address          string    `json:"address"`
	Body             string    `json:"body"`
	Protocol         int       `json:"protocol"`
	Date             time.Time `json:"date"`
	Folder           string    `json:"folder"`
	IsRead           bool      `json:"is_read"`
	ReplyPathPresent bool      `json:"reply_path_present,omitempty"`
	ServiceCenter    string    `json:"service_center,omitempty"`
	Subject          string    `json:"subject,omitempty"`
	ErrorCode        int       `json:"error_code,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewRecord copies a stored message into a Record.
func NewRecord(m store.Message) Record {
	return Record{
		ID:               m.GetID(),
		ThreadID:         m.GetThreadID(),
		Address:          m.GetAddress(),
		Body:             m.GetBody(),
		Protocol:         m.GetProtocol(),
		Date:             m.GetDate(),
		Folder:           m.GetFolder(),
		IsRead:           m.GetIsRead(),
		ReplyPathPresent: m.GetReplyPathPresent(),
		ServiceCenter:    m.GetServiceCenter(),
		Subject:          m.GetSubject(),
		ErrorCode:        m.GetErrorCode(),
		CreatedAt:        m.GetCreatedAt(),
	}
}

// Encode writes msgs to w as JSON lines.
func Encode(w io.Writer, msgs []store.Message) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, m := range msgs {
		if err := enc.Encode(NewRecord(m)); err != nil {
			return fmt.Errorf("encode message %s: %w", m.GetID(), err)
		}
	}
	return nil
}

// Decode reads JSON-lines records. Blank lines are skipped.
func Decode(r io.Reader) ([]Record, error) {
	var records []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return records, nil
}

var _ smsbox.Archiver = (*Archiver)(nil)

// Archiver uploads messages that are about to be recycled.
type Archiver struct {
	uploader Uploader
	prefix   string
	retry    retry.Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Archiver that writes through uploader.
func New(uploader Uploader, opts ...Option) (*Archiver, error) {
	if uploader == nil {
		return nil, ErrUploaderRequired
	}
	o := newOptions(opts...)
	return &Archiver{
		uploader: uploader,
		prefix:   o.prefix,
		retry:    o.retry,
		logger:   o.logger,
		now:      o.now,
	}, nil
}

// Archive encodes msgs and uploads them as one object. An empty batch is a
// no-op. Upload failures are retried; the last error is returned so the
// caller can keep the messages.
func (a *Archiver) Archive(ctx context.Context, threadID string, msgs []store.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := Encode(&buf, msgs); err != nil {
		return err
	}
	data := buf.Bytes()
	key := a.key(threadID)

	cfg := a.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
			a.logger.Warn("archive upload failed, retrying",
				"key", key, "attempt", attempt, "wait", wait, "error", err)
		}
	}

	uri, err := retry.DoWithResult(ctx, cfg, func(ctx context.Context) (string, error) {
		return a.uploader.Upload(ctx, key, ContentType, bytes.NewReader(data))
	})
	if err != nil {
		return fmt.Errorf("archive thread %s: %w", threadID, err)
	}

	a.logger.Info("archived messages", "thread_id", threadID, "count", len(msgs), "uri", uri, "bytes", len(data))
	return nil
}

// key builds a date-partitioned object key for one archive batch.
func (a *Archiver) key(threadID string) string {
	thread := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, strings.TrimSpace(threadID))
	if thread == "" || thread == "." || thread == ".." {
		thread = "unthreaded"
	}
	day := a.now().UTC().Format("2006/01/02")
	return path.Join(a.prefix, day, thread, uuid.NewString()+".jsonl")
}
