package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mikills/lpnfinder/lpn"
)

const backendTimeout = 5 * time.Second

type blobConfig struct {
	Backend    string
	LocalRoot  string
	S3Bucket   string
	S3Prefix   string
	S3Endpoint string
	GCSBucket  string
	GCSPrefix  string
}

func parseBlobConfigFromEnv(getenv func(string) string) (blobConfig, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := blobConfig{
		Backend:    strings.ToLower(get("LPNFINDER_BLOB_BACKEND", "local")),
		LocalRoot:  get("LPNFINDER_BLOB_ROOT", "./.temp/blobs"),
		S3Bucket:   get("LPNFINDER_S3_BUCKET", ""),
		S3Prefix:   get("LPNFINDER_S3_PREFIX", ""),
		S3Endpoint: get("LPNFINDER_S3_ENDPOINT", ""),
		GCSBucket:  get("LPNFINDER_GCS_BUCKET", ""),
		GCSPrefix:  get("LPNFINDER_GCS_PREFIX", ""),
	}

	switch cfg.Backend {
	case "local":
	case "s3":
		if cfg.S3Bucket == "" {
			return blobConfig{}, fmt.Errorf("LPNFINDER_S3_BUCKET is required for the s3 backend")
		}
	case "gcs":
		if cfg.GCSBucket == "" {
			return blobConfig{}, fmt.Errorf("LPNFINDER_GCS_BUCKET is required for the gcs backend")
		}
	default:
		return blobConfig{}, fmt.Errorf("unknown LPNFINDER_BLOB_BACKEND %q (valid: local, s3, gcs)", cfg.Backend)
	}
	return cfg, nil
}

// newIndexerFromEnv wires the blob backend, optional Mongo meta store and
// optional Redis lease manager. The returned func closes every client opened.
func newIndexerFromEnv(ctx context.Context, logger *slog.Logger, getenv func(string) string) (*lpn.Indexer, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}
	fail := func(err error) (*lpn.Indexer, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	policy, err := parseIndexerPolicyFromEnv(getenv)
	if err != nil {
		return fail(err)
	}
	blobCfg, err := parseBlobConfigFromEnv(getenv)
	if err != nil {
		return fail(err)
	}

	store, closeStore, err := newBlobStore(ctx, blobCfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)
	logger.Info("configured blob store", "backend", blobCfg.Backend)

	opts := []lpn.IndexerOption{lpn.WithIndexerPolicy(policy)}

	if uri := strings.TrimSpace(getenv("LPNFINDER_META_MONGO_URI")); uri != "" {
		dbName := getenvOr(getenv, "LPNFINDER_META_MONGO_DB", "lpnfinder")
		collName := getenvOr(getenv, "LPNFINDER_META_MONGO_COLLECTION", "meta")

		client, err := mongo.Connect(mongooptions.Client().ApplyURI(uri))
		if err != nil {
			return fail(fmt.Errorf("mongo connect: %w", err))
		}
		closers = append(closers, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), backendTimeout)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		})
		pingCtx, cancel := context.WithTimeout(ctx, backendTimeout)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			return fail(fmt.Errorf("mongo ping: %w", err))
		}
		coll := client.Database(dbName).Collection(collName)
		opts = append(opts, lpn.WithMetaStore(lpn.NewMongoMetaStore(coll)))
		logger.Info("configured mongo meta store", "db", dbName, "collection", collName)
	}

	if addr := strings.TrimSpace(getenv("LPNFINDER_REDIS_ADDR")); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		closers = append(closers, func() { _ = client.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, backendTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
		mgr, err := lpn.NewRedisWriteLeaseManager(client, "")
		if err != nil {
			return fail(err)
		}
		opts = append(opts, lpn.WithWriteLeaseManager(mgr))
		logger.Info("configured redis write leases", "addr", addr, "ttl", policy.WriteLeaseTTL.String())
	}

	logger.Info("configured indexer policy",
		"max_retries", policy.MaxRetries,
		"parallelism", policy.Parallelism,
		"archive_manifests", policy.ArchiveManifests,
		"write_lease_ttl", policy.WriteLeaseTTL.String(),
	)
	return lpn.NewIndexer(store, opts...), closeAll, nil
}

func newBlobStore(ctx context.Context, cfg blobConfig) (lpn.BlobStore, func(), error) {
	switch cfg.Backend {
	case "s3":
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
				o.UsePathStyle = true
			}
		})
		return lpn.NewS3BlobStore(client, cfg.S3Bucket, cfg.S3Prefix), func() {}, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client: %w", err)
		}
		return lpn.NewGCSBlobStore(client.Bucket(cfg.GCSBucket), cfg.GCSPrefix), func() { _ = client.Close() }, nil
	default:
		return &lpn.LocalBlobStore{Root: cfg.LocalRoot}, func() {}, nil
	}
}

func getenvOr(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}
