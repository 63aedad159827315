// Package s3 uploads archive objects to AWS S3 or an S3-compatible service.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rbaliyan/smsbox/archive"
)

// ErrBucketRequired is returned by New without WithBucket.
var ErrBucketRequired = errors.New("s3: bucket is required")

var _ archive.Uploader = (*Uploader)(nil)

// Uploader writes archive objects with the S3 transfer manager, which
// switches to multipart uploads for large batches.
type Uploader struct {
	tm     *transfermanager.Client
	bucket string
	logger *slog.Logger
}

// New creates an S3 uploader. ctx is used for credential and config loading.
func New(ctx context.Context, opts ...Option) (*Uploader, error) {
	o := &options{
		region: "us-east-1",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bucket == "" {
		return nil, ErrBucketRequired
	}

	awsCfg, err := loadAWSConfig(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
			so.UsePathStyle = o.usePathStyle
		}
	})

	return &Uploader{
		tm:     transfermanager.New(client),
		bucket: o.bucket,
		logger: o.logger,
	}, nil
}

// loadAWSConfig picks the credential source: static keys, an assumed role,
// or the SDK default chain.
func loadAWSConfig(ctx context.Context, o *options) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{config.WithRegion(o.region)}

	switch {
	case o.accessKey != "" && o.secretKey != "":
		creds := credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, o.sessionToken)
		optFns = append(optFns, config.WithCredentialsProvider(creds))

	case o.roleARN != "":
		baseCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(o.region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("load base config for role: %w", err)
		}
		optFns = append(optFns, config.WithCredentialsProvider(
			assumeRoleProvider(baseCfg, o.roleARN, o.roleSessionName, o.externalID)))
	}

	return config.LoadDefaultConfig(ctx, optFns...)
}

// Upload stores body under key and returns an s3://bucket/key URI.
func (u *Uploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", errors.New("s3: empty object key")
	}

	_, err := u.tm.UploadObject(ctx, &transfermanager.UploadObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	u.logger.Debug("uploaded archive to s3", "bucket", u.bucket, "key", key)
	return URI(u.bucket, key), nil
}

// URI formats an s3:// object URI.
func URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// ParseURI splits an s3:// URI into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid s3 uri: %s", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri (no key): %s", uri)
	}
	return bucket, key, nil
}
