package lpn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// BlobMetaStore implements MetaStore on top of a BlobStore.
type BlobMetaStore struct {
	Store BlobStore
}

func (s *BlobMetaStore) GetMeta(ctx context.Context) (*MetaRevision, error) {
	data, info, err := s.Store.Get(ctx, MetaBlobKey())
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, ErrMetaNotFound
		}
		return nil, fmt.Errorf("read meta: %w", err)
	}

	var meta MetaDocument
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	return &MetaRevision{Meta: meta, Version: info.Version}, nil
}

func (s *BlobMetaStore) PutMetaIfMatch(ctx context.Context, meta MetaDocument, expectedVersion string) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode meta: %w", err)
	}
	info, err := s.Store.PutIfMatch(ctx, MetaBlobKey(), data, expectedVersion)
	if err != nil {
		return "", err
	}
	return info.Version, nil
}
