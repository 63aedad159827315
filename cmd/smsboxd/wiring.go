package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/rbaliyan/smsbox"
	"github.com/rbaliyan/smsbox/archive"
	"github.com/rbaliyan/smsbox/archive/gcs"
	archiveotel "github.com/rbaliyan/smsbox/archive/otel"
	"github.com/rbaliyan/smsbox/archive/s3"
	"github.com/rbaliyan/smsbox/internal/config"
	"github.com/rbaliyan/smsbox/resolver"
	"github.com/rbaliyan/smsbox/store"
	"github.com/rbaliyan/smsbox/store/memory"
	mongostore "github.com/rbaliyan/smsbox/store/mongo"
	"github.com/rbaliyan/smsbox/store/mysql"
	storeotel "github.com/rbaliyan/smsbox/store/otel"
	"github.com/rbaliyan/smsbox/store/postgres"
	"github.com/rbaliyan/smsbox/store/sqlite"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// closers runs cleanup functions in reverse order of registration.
type closers []func(context.Context) error

func (c *closers) add(fn func(context.Context) error) {
	*c = append(*c, fn)
}

func (c closers) close(ctx context.Context) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openStore builds the configured row store. The store is not connected;
// Service.Connect does that with retries.
func openStore(cfg config.Config, logger *slog.Logger, cl *closers) (store.Store, error) {
	var (
		s   store.Store
		db  *sqlx.DB
		err error
	)
	switch cfg.Store.Driver {
	case "memory":
		s = memory.New()
	case "sqlite":
		if db, err = sqlite.Open(cfg.Store.DSN); err == nil {
			s = sqlite.New(db)
		}
	case "postgres":
		if db, err = postgres.Open(cfg.Store.DSN); err == nil {
			s = postgres.New(db)
		}
	case "mysql":
		if db, err = mysql.Open(cfg.Store.DSN); err == nil {
			s = mysql.New(db)
		}
	case "mongo":
		var client *mongo.Client
		client, err = mongo.Connect(options.Client().ApplyURI(cfg.Store.DSN))
		if err == nil {
			cl.add(client.Disconnect)
			s = mongostore.New(client, mongostore.WithDatabase(cfg.Store.Database), mongostore.WithLogger(logger))
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	if db != nil {
		cl.add(func(context.Context) error { return db.Close() })
	}

	if cfg.Service.Telemetry {
		instrumented, err := storeotel.New(s, storeotel.WithServiceName(cfg.Service.Name))
		if err != nil {
			return nil, fmt.Errorf("instrument store: %w", err)
		}
		return instrumented, nil
	}
	return s, nil
}

// openRedis returns nil when no address is configured.
func openRedis(ctx context.Context, cfg config.Redis, cl *closers) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	cl.add(func(context.Context) error { return client.Close() })
	return client, nil
}

// contactResolver caches canonical addresses in Redis when available.
func contactResolver(client *redis.Client, cfg config.Redis, logger *slog.Logger) smsbox.ContactResolver {
	if client == nil {
		return resolver.Digits{}
	}
	return resolver.NewRedis(client, resolver.Digits{},
		resolver.WithTTL(cfg.ContactTTL),
		resolver.WithLogger(logger),
	)
}

// openArchiver returns nil when archiving is disabled.
func openArchiver(ctx context.Context, cfg config.Config, logger *slog.Logger, cl *closers) (smsbox.Archiver, error) {
	var uploader archive.Uploader
	switch cfg.Archive.Backend {
	case "", "none":
		return nil, nil
	case "s3":
		opts := []s3.Option{
			s3.WithBucket(cfg.Archive.Bucket),
			s3.WithRegion(cfg.Archive.Region),
			s3.WithLogger(logger),
		}
		if cfg.Archive.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(cfg.Archive.Endpoint), s3.WithPathStyle(cfg.Archive.PathStyle))
		}
		if cfg.Archive.RoleARN != "" {
			opts = append(opts, s3.WithAssumeRole(cfg.Archive.RoleARN, ""))
		}
		u, err := s3.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create s3 uploader: %w", err)
		}
		uploader = u
	case "gcs":
		opts := []gcs.Option{gcs.WithBucket(cfg.Archive.Bucket), gcs.WithLogger(logger)}
		if cfg.Archive.Endpoint != "" {
			opts = append(opts, gcs.WithEndpoint(cfg.Archive.Endpoint))
		}
		if cfg.Archive.CredentialsFile != "" {
			opts = append(opts, gcs.WithCredentialsFile(cfg.Archive.CredentialsFile))
		}
		u, err := gcs.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create gcs uploader: %w", err)
		}
		cl.add(func(context.Context) error { return u.Close() })
		uploader = u
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}

	if cfg.Service.Telemetry {
		instrumented, err := archiveotel.New(uploader, archiveotel.WithServiceName(cfg.Service.Name))
		if err != nil {
			return nil, fmt.Errorf("instrument archive: %w", err)
		}
		uploader = instrumented
	}
	a, err := archive.New(uploader, archive.WithPrefix(cfg.Archive.Prefix), archive.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return a, nil
}
