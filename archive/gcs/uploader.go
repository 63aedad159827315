// Package gcs uploads archive objects to Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/storage"
	"github.com/rbaliyan/smsbox/archive"
	"google.golang.org/api/option"
)

// ErrBucketRequired is returned by New without WithBucket.
var ErrBucketRequired = errors.New("gcs: bucket is required")

const scopeReadWrite = "https://www.googleapis.com/auth/devstorage.read_write"

var _ archive.Uploader = (*Uploader)(nil)

// Uploader writes archive objects to one bucket.
type Uploader struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// New creates a GCS uploader. Call Close when done.
func New(ctx context.Context, opts ...Option) (*Uploader, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.bucket == "" {
		return nil, ErrBucketRequired
	}

	clientOpts, err := clientOptions(o)
	if err != nil {
		return nil, fmt.Errorf("build client options: %w", err)
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &Uploader{
		client: client,
		bucket: o.bucket,
		logger: o.logger,
	}, nil
}

func clientOptions(o *options) ([]option.ClientOption, error) {
	var opts []option.ClientOption

	switch {
	case o.credentialsJSON != nil:
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{scopeReadWrite},
			CredentialsJSON: o.credentialsJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials from json: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))

	case o.credentialsFile != "":
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{scopeReadWrite},
			CredentialsFile: o.credentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials from file: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))

	case o.apiKey != "":
		opts = append(opts, option.WithAPIKey(o.apiKey))
	}

	if o.endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.endpoint))
	}
	return opts, nil
}

// Upload writes body to key and returns a gs://bucket/key URI.
func (u *Uploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", errors.New("gcs: empty object key")
	}

	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy archive to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer: %w", err)
	}

	u.logger.Debug("uploaded archive to gcs", "bucket", u.bucket, "key", key)
	return "gs://" + u.bucket + "/" + key, nil
}

// Close closes the GCS client.
func (u *Uploader) Close() error {
	return u.client.Close()
}
