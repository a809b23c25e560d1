package lpn

import "time"

// Indexer owns the sharded LPN index: it ingests manifests, merges them into
// shard and meta documents, and serves lookups.
type Indexer struct {
	BlobStore BlobStore
	Shards    ShardStore
	Meta      MetaStore
	Extractor Extractor

	WriteLeaseManager WriteLeaseManager
	WriteLeaseTTL     time.Duration
	RetryObserver     MergeRetryObserver
	Policy            IndexerPolicy

	now   func() time.Time
	newID func() string
}

// IndexerOption configures Indexer instances.
type IndexerOption func(*Indexer)

// WithMetaStore replaces the blob-backed meta store.
func WithMetaStore(store MetaStore) IndexerOption {
	return func(ix *Indexer) {
		ix.Meta = store
	}
}

// WithShardStore replaces the blob-backed shard store.
func WithShardStore(store ShardStore) IndexerOption {
	return func(ix *Indexer) {
		ix.Shards = store
	}
}

// WithWriteLeaseManager sets the lease manager used around document writes.
// nil falls back to an in-process manager.
func WithWriteLeaseManager(mgr WriteLeaseManager) IndexerOption {
	return func(ix *Indexer) {
		if mgr == nil {
			ix.WriteLeaseManager = NewInMemoryWriteLeaseManager()
			return
		}
		ix.WriteLeaseManager = mgr
	}
}

// WithIndexerPolicy sets merge retry, parallelism and archive behavior.
func WithIndexerPolicy(policy IndexerPolicy) IndexerOption {
	return func(ix *Indexer) {
		ix.Policy = normalizeIndexerPolicy(policy)
		ix.WriteLeaseTTL = ix.Policy.WriteLeaseTTL
	}
}

// WithNumericFields overrides the columns coerced from currency text to numbers.
func WithNumericFields(fields ...string) IndexerOption {
	return func(ix *Indexer) {
		ix.Extractor.NumericFields = fields
	}
}

// WithClock overrides the timestamp source for documents.
func WithClock(now func() time.Time) IndexerOption {
	return func(ix *Indexer) {
		if now != nil {
			ix.now = now
		}
	}
}

// NewIndexer creates an Indexer whose shard and meta documents live in bs.
func NewIndexer(bs BlobStore, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		BlobStore:         bs,
		WriteLeaseManager: NewInMemoryWriteLeaseManager(),
		WriteLeaseTTL:     defaultWriteLeaseTTL,
		Policy:            DefaultIndexerPolicy(),
		now:               func() time.Time { return time.Now().UTC() },
		newID:             newArchiveID,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ix)
		}
	}

	if ix.Shards == nil {
		ix.Shards = &BlobShardStore{Store: ix.BlobStore}
	}
	if ix.Meta == nil {
		ix.Meta = &BlobMetaStore{Store: ix.BlobStore}
	}
	return ix
}
