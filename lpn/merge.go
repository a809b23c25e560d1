package lpn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ShardMergeResult reports the outcome of merging one shard.
type ShardMergeResult struct {
	Shard     string
	UniqueNew int
	Count     int
}

// MergeResult reports a whole batch merge.
type MergeResult struct {
	Shards        []ShardMergeResult
	UniqueNewLpns int
	Meta          MetaDocument
}

// ShardKeys returns the merged shard keys in order.
func (r *MergeResult) ShardKeys() []string {
	keys := make([]string, 0, len(r.Shards))
	for _, s := range r.Shards {
		keys = append(keys, s.Shard)
	}
	return keys
}

// Merge persists a batch. Every touched shard is read, overlaid with the
// batch (batch wins per LPN) and written back under CAS; shards not in the
// batch are never read or written. Disjoint shards merge in parallel.
//
// The first failing shard cancels the rest and Merge returns its error
// without touching meta. Shards already written stay written.
func (ix *Indexer) Merge(ctx context.Context, batch *ShardBuilder) (*MergeResult, error) {
	touched := batch.Touched()
	results := make([]ShardMergeResult, len(touched))

	limit := ix.Policy.Parallelism
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, shard := range touched {
		g.Go(func() error {
			res, err := ix.mergeShard(gctx, shard, batch.Buffer(shard))
			if err != nil {
				return fmt.Errorf("merge shard %s: %w", shard, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Default().ErrorContext(ctx, "batch merge aborted before meta update",
			"touched_shards", len(touched),
			"error", err,
		)
		return nil, err
	}

	uniqueNew := 0
	for _, r := range results {
		uniqueNew += r.UniqueNew
	}

	meta, err := ix.mergeMeta(ctx, batch.Files(), touched, uniqueNew)
	if err != nil {
		return nil, fmt.Errorf("merge meta: %w", err)
	}

	return &MergeResult{Shards: results, UniqueNewLpns: uniqueNew, Meta: meta}, nil
}

func (ix *Indexer) mergeShard(ctx context.Context, shard string, buffer map[string]Record) (ShardMergeResult, error) {
	var result ShardMergeResult
	err := runWithMergeRetry(ctx, "merge_shard", shard, ix.Policy.MaxRetries, ix.RetryObserver, func() error {
		return ix.withWriteLease(ctx, shardLeaseKey(shard), func() error {
			existing := map[string]Record{}
			expected := CreateOnlyVersion

			rev, err := ix.Shards.GetShard(ctx, shard)
			switch {
			case err == nil:
				existing = rev.Doc.Index
				expected = rev.Version
			case errors.Is(err, ErrShardNotFound):
			default:
				return err
			}

			merged := make(map[string]Record, len(existing)+len(buffer))
			for id, rec := range existing {
				merged[id] = rec
			}
			uniqueNew := 0
			for id, rec := range buffer {
				if _, ok := existing[id]; !ok {
					uniqueNew++
				}
				merged[id] = rec
			}

			doc := ShardDocument{
				Shard:     shard,
				UpdatedAt: ix.now(),
				Count:     len(merged),
				Index:     merged,
			}
			if _, err := ix.Shards.PutShardIfMatch(ctx, doc, expected); err != nil {
				return err
			}
			result = ShardMergeResult{Shard: shard, UniqueNew: uniqueNew, Count: len(merged)}
			return nil
		})
	})
	return result, err
}

func (ix *Indexer) mergeMeta(ctx context.Context, files, touched []string, uniqueNew int) (MetaDocument, error) {
	return ix.updateMeta(ctx, "merge_meta", func(current MetaDocument) (MetaDocument, error) {
		shards := sortedUnion(current.ShardsList, touched)
		return MetaDocument{
			Manifests:  sortedUnion(current.Manifests, files),
			TotalLpn:   current.TotalLpn + uniqueNew,
			Shards:     len(shards),
			ShardsList: shards,
			UpdatedAt:  ix.now(),
		}, nil
	})
}

// updateMeta runs a CAS read-modify-write of the meta document. An absent
// meta is presented to fn as the zero document.
func (ix *Indexer) updateMeta(ctx context.Context, operation string, fn func(MetaDocument) (MetaDocument, error)) (MetaDocument, error) {
	var out MetaDocument
	err := runWithMergeRetry(ctx, operation, metaLeaseKey, ix.Policy.MaxRetries, ix.RetryObserver, func() error {
		return ix.withWriteLease(ctx, metaLeaseKey, func() error {
			current := MetaDocument{}
			expected := CreateOnlyVersion

			rev, err := ix.Meta.GetMeta(ctx)
			switch {
			case err == nil:
				current = rev.Meta
				expected = rev.Version
			case errors.Is(err, ErrMetaNotFound):
			default:
				return err
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			if _, err := ix.Meta.PutMetaIfMatch(ctx, next, expected); err != nil {
				return err
			}
			out = next
			return nil
		})
	})
	return out, err
}

// Reconcile recomputes totalLpn and the shard list from the shard documents
// themselves, repairing drift left by partially applied batches.
func (ix *Indexer) Reconcile(ctx context.Context) (MetaDocument, error) {
	shards, err := ix.Shards.ListShards(ctx)
	if err != nil {
		return MetaDocument{}, err
	}

	total := 0
	present := make([]string, 0, len(shards))
	for _, shard := range shards {
		rev, err := ix.Shards.GetShard(ctx, shard)
		if err != nil {
			if errors.Is(err, ErrShardNotFound) {
				continue
			}
			return MetaDocument{}, err
		}
		total += len(rev.Doc.Index)
		present = append(present, shard)
	}

	meta, err := ix.updateMeta(ctx, "reconcile_meta", func(current MetaDocument) (MetaDocument, error) {
		if current.TotalLpn != total || len(current.ShardsList) != len(present) {
			slog.Default().WarnContext(ctx, "meta drift corrected",
				"recorded_total_lpn", current.TotalLpn,
				"counted_total_lpn", total,
				"recorded_shards", len(current.ShardsList),
				"counted_shards", len(present),
			)
		}
		return MetaDocument{
			Manifests:  sortedUnion(current.Manifests),
			TotalLpn:   total,
			Shards:     len(present),
			ShardsList: present,
			UpdatedAt:  ix.now(),
		}, nil
	})
	if err != nil {
		return MetaDocument{}, fmt.Errorf("reconcile meta: %w", err)
	}
	return meta, nil
}
