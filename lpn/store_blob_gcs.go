package lpn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSBlobStore implements BlobStore on Google Cloud Storage. Versions are
// object generations; conditional writes use generation preconditions.
type GCSBlobStore struct {
	Bucket *storage.BucketHandle
	Prefix string
}

// NewGCSBlobStore wraps a bucket handle. The caller owns the storage.Client.
func NewGCSBlobStore(bucket *storage.BucketHandle, prefix string) *GCSBlobStore {
	return &GCSBlobStore{Bucket: bucket, Prefix: prefix}
}

func (g *GCSBlobStore) fullKey(key string) string {
	return g.Prefix + key
}

func gcsInfo(key string, attrs *storage.ObjectAttrs) *BlobObjectInfo {
	return &BlobObjectInfo{
		Key:       key,
		Version:   strconv.FormatInt(attrs.Generation, 10),
		UpdatedAt: attrs.Updated.UTC(),
		Size:      attrs.Size,
	}
}

func (g *GCSBlobStore) Head(ctx context.Context, key string) (*BlobObjectInfo, error) {
	attrs, err := g.Bucket.Object(g.fullKey(key)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}
	return gcsInfo(key, attrs), nil
}

func (g *GCSBlobStore) Get(ctx context.Context, key string) ([]byte, *BlobObjectInfo, error) {
	r, err := g.Bucket.Object(g.fullKey(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, nil, fmt.Errorf("open object %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, &BlobObjectInfo{
		Key:       key,
		Version:   strconv.FormatInt(r.Attrs.Generation, 10),
		UpdatedAt: r.Attrs.LastModified.UTC(),
		Size:      int64(len(data)),
	}, nil
}

func (g *GCSBlobStore) PutIfMatch(ctx context.Context, key string, data []byte, expectedVersion string) (*BlobObjectInfo, error) {
	obj := g.Bucket.Object(g.fullKey(key))
	switch expectedVersion {
	case "":
	case CreateOnlyVersion:
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	default:
		gen, err := strconv.ParseInt(expectedVersion, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: version %q is not a generation", ErrBlobVersionMismatch, key, expectedVersion)
		}
		obj = obj.If(storage.Conditions{GenerationMatch: gen})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = contentTypeFor(key)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, g.writeError(key, err)
	}
	if err := w.Close(); err != nil {
		return nil, g.writeError(key, err)
	}
	return gcsInfo(key, w.Attrs()), nil
}

func (g *GCSBlobStore) writeError(key string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %s", ErrBlobVersionMismatch, key)
	}
	return fmt.Errorf("write object %s: %w", key, err)
}

func (g *GCSBlobStore) Delete(ctx context.Context, key string) error {
	err := g.Bucket.Object(g.fullKey(key)).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return fmt.Errorf("delete object %s: %w", key, err)
}

func (g *GCSBlobStore) List(ctx context.Context, prefix string) ([]BlobObjectInfo, error) {
	items := make([]BlobObjectInfo, 0)
	it := g.Bucket.Objects(ctx, &storage.Query{Prefix: g.fullKey(prefix)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects for prefix %s: %w", prefix, err)
		}
		items = append(items, *gcsInfo(strings.TrimPrefix(attrs.Name, g.Prefix), attrs))
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Key < items[j].Key
	})
	return items, nil
}
