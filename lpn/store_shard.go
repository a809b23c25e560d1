package lpn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ShardRevision pairs a shard document with its version for CAS.
type ShardRevision struct {
	Doc     ShardDocument
	Version string
}

// ShardStore reads and conditionally writes shard documents.
type ShardStore interface {
	// GetShard returns ErrShardNotFound when the shard was never written and
	// an error wrapping ErrIndexUnavailable when it exists but cannot be read.
	GetShard(ctx context.Context, shard string) (*ShardRevision, error)

	// PutShardIfMatch writes doc. CreateOnlyVersion means "create if absent".
	PutShardIfMatch(ctx context.Context, doc ShardDocument, expectedVersion string) (string, error)

	// ListShards returns every materialized shard key, sorted.
	ListShards(ctx context.Context) ([]string, error)
}

// BlobShardStore implements ShardStore with one JSON blob per shard.
type BlobShardStore struct {
	Store BlobStore
}

func (s *BlobShardStore) GetShard(ctx context.Context, shard string) (*ShardRevision, error) {
	data, info, err := s.Store.Get(ctx, ShardBlobKey(shard))
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrShardNotFound, shard)
		}
		return nil, fmt.Errorf("%w: read shard %s: %w", ErrIndexUnavailable, shard, err)
	}

	var doc ShardDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode shard %s: %w", ErrIndexUnavailable, shard, err)
	}
	if doc.Index == nil {
		doc.Index = make(map[string]Record)
	}
	return &ShardRevision{Doc: doc, Version: info.Version}, nil
}

func (s *BlobShardStore) PutShardIfMatch(ctx context.Context, doc ShardDocument, expectedVersion string) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode shard %s: %w", doc.Shard, err)
	}
	info, err := s.Store.PutIfMatch(ctx, ShardBlobKey(doc.Shard), data, expectedVersion)
	if err != nil {
		return "", err
	}
	return info.Version, nil
}

func (s *BlobShardStore) ListShards(ctx context.Context) ([]string, error) {
	items, err := s.Store.List(ctx, shardKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list shards: %w", err)
	}
	shards := make([]string, 0, len(items))
	for _, item := range LatestVersions(items) {
		if shard, ok := shardFromBlobKey(item.Key); ok {
			shards = append(shards, shard)
		}
	}
	return sortedUnion(shards), nil
}
