package lpn

import (
	"context"
	"mime"
	"path"
	"time"
)

// CreateOnlyVersion passed as the expected version writes only if the key is absent.
const CreateOnlyVersion = "*"

// BlobObjectInfo describes a blob object.
type BlobObjectInfo struct {
	Key       string
	Version   string
	UpdatedAt time.Time
	Size      int64
}

// BlobStore is the storage abstraction for index documents and archived manifests.
//
// PutIfMatch writes unconditionally when expectedVersion is empty, only when
// the key is absent for CreateOnlyVersion, and otherwise only when the current
// version equals expectedVersion. Conflicts return ErrBlobVersionMismatch.
// Get and Head return ErrBlobNotFound for missing keys. Writes replace the
// whole object; readers never see a partial document.
type BlobStore interface {
	Head(ctx context.Context, key string) (*BlobObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, *BlobObjectInfo, error)
	PutIfMatch(ctx context.Context, key string, data []byte, expectedVersion string) (*BlobObjectInfo, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]BlobObjectInfo, error)
}

// LatestVersions collapses listings that contain several entries for the same
// key (stores that keep old versions on overwrite) down to the most recently
// updated entry per key, preserving key order.
func LatestVersions(items []BlobObjectInfo) []BlobObjectInfo {
	latest := make(map[string]int, len(items))
	out := make([]BlobObjectInfo, 0, len(items))
	for _, item := range items {
		if i, ok := latest[item.Key]; ok {
			if item.UpdatedAt.After(out[i].UpdatedAt) {
				out[i] = item
			}
			continue
		}
		latest[item.Key] = len(out)
		out = append(out, item)
	}
	return out
}

func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
