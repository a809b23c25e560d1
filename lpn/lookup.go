package lpn

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LookupResult is the answer to a point lookup. Record is nil when not found.
type LookupResult struct {
	LPN      string
	Shard    string
	Found    bool
	Complete bool
	Record   *Record
}

// Lookup normalizes raw, fetches its shard and returns the stored record.
// An absent shard or identifier is a normal not-found result. A shard that
// exists but cannot be read returns an error wrapping ErrIndexUnavailable.
func (ix *Indexer) Lookup(ctx context.Context, raw string) (*LookupResult, error) {
	id := Normalize(raw)
	if id == "" {
		return nil, ErrMissingQuery
	}

	res := &LookupResult{
		LPN:      id,
		Shard:    ShardKeyFor(id),
		Complete: LooksLikeFullLPN(id),
	}

	rev, err := ix.Shards.GetShard(ctx, res.Shard)
	if err != nil {
		if errors.Is(err, ErrShardNotFound) {
			return res, nil
		}
		if !errors.Is(err, ErrIndexUnavailable) {
			err = fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
		}
		return nil, err
	}

	rec, ok := rev.Doc.Index[id]
	if !ok {
		return res, nil
	}
	res.Found = true
	res.Record = &rec
	return res, nil
}

// Stats is the meta document as reported to clients.
type Stats struct {
	Manifests     []string   `json:"manifests"`
	ManifestCount int        `json:"manifestCount"`
	TotalLpn      int        `json:"totalLpn"`
	Shards        int        `json:"shards"`
	UpdatedAt     *time.Time `json:"updatedAt"`
}

// Stats returns the current meta document; an empty index reports zeros.
func (ix *Indexer) Stats(ctx context.Context) (*Stats, error) {
	rev, err := ix.Meta.GetMeta(ctx)
	if err != nil {
		if errors.Is(err, ErrMetaNotFound) {
			return &Stats{Manifests: []string{}}, nil
		}
		return nil, err
	}

	meta := rev.Meta
	stats := &Stats{
		Manifests:     meta.Manifests,
		ManifestCount: len(meta.Manifests),
		TotalLpn:      meta.TotalLpn,
		Shards:        meta.Shards,
	}
	if stats.Manifests == nil {
		stats.Manifests = []string{}
	}
	if !meta.UpdatedAt.IsZero() {
		updated := meta.UpdatedAt
		stats.UpdatedAt = &updated
	}
	return stats, nil
}
