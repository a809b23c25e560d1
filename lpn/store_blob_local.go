package lpn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LocalBlobStore implements BlobStore on a local directory. Versions are
// content hashes. Conditional writes are serialized within the process.
type LocalBlobStore struct {
	Root string

	mu sync.Mutex
}

func (l *LocalBlobStore) path(key string) string {
	return filepath.Join(l.Root, filepath.FromSlash(key))
}

func (l *LocalBlobStore) Get(ctx context.Context, key string) ([]byte, *BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	path := l.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrBlobNotFound, key)
		}
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return data, &BlobObjectInfo{
		Key:       key,
		Version:   contentSHA256(data),
		UpdatedAt: info.ModTime().UTC(),
		Size:      int64(len(data)),
	}, nil
}

func (l *LocalBlobStore) Head(ctx context.Context, key string) (*BlobObjectInfo, error) {
	_, info, err := l.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (l *LocalBlobStore) PutIfMatch(ctx context.Context, key string, data []byte, expectedVersion string) (*BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dest := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if expectedVersion != "" {
		current, err := l.Head(ctx, key)
		if err != nil && !errors.Is(err, ErrBlobNotFound) {
			return nil, err
		}
		switch {
		case expectedVersion == CreateOnlyVersion:
			if current != nil {
				return nil, fmt.Errorf("%w: %s already exists", ErrBlobVersionMismatch, key)
			}
		case current == nil || current.Version != expectedVersion:
			return nil, fmt.Errorf("%w: %s", ErrBlobVersionMismatch, key)
		}
	}

	if err := writeFileAtomic(dest, data); err != nil {
		return nil, fmt.Errorf("write %s: %w", dest, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, err
	}
	return &BlobObjectInfo{
		Key:       key,
		Version:   contentSHA256(data),
		UpdatedAt: info.ModTime().UTC(),
		Size:      info.Size(),
	}, nil
}

func (l *LocalBlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return nil
	}

	err := os.Remove(l.path(key))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (l *LocalBlobStore) List(ctx context.Context, prefix string) ([]BlobObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(l.Root); errors.Is(err, os.ErrNotExist) {
		return []BlobObjectInfo{}, nil
	} else if err != nil {
		return nil, err
	}

	items := make([]BlobObjectInfo, 0)
	err := filepath.WalkDir(l.Root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(l.Root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.Contains(key, ".tmp-") {
			return nil
		}
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		// mtime+size stands in for the content hash in listings
		items = append(items, BlobObjectInfo{
			Key:       key,
			Version:   fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()),
			UpdatedAt: info.ModTime().UTC(),
			Size:      info.Size(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []BlobObjectInfo{}, nil
		}
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Key < items[j].Key
	})

	return items, nil
}

func writeFileAtomic(dest string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp-%d", dest, time.Now().UnixNano())
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

func contentSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
