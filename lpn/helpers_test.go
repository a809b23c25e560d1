package lpn

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// faultyBlobStore wraps a BlobStore and injects errors into PutIfMatch for
// keys containing one of the configured substrings.
type faultyBlobStore struct {
	BlobStore

	mu sync.Mutex
	// failKeys fail every write with the mapped error.
	failKeys map[string]error
	// conflictOnce fails the first write per matching key with a version mismatch.
	conflictOnce map[string]bool
	puts         map[string]int
}

func newFaultyBlobStore(inner BlobStore) *faultyBlobStore {
	return &faultyBlobStore{
		BlobStore:    inner,
		failKeys:     map[string]error{},
		conflictOnce: map[string]bool{},
		puts:         map[string]int{},
	}
}

func (f *faultyBlobStore) PutIfMatch(ctx context.Context, key string, data []byte, expectedVersion string) (*BlobObjectInfo, error) {
	f.mu.Lock()
	f.puts[key]++
	for match, err := range f.failKeys {
		if strings.Contains(key, match) {
			f.mu.Unlock()
			return nil, err
		}
	}
	for match, pending := range f.conflictOnce {
		if pending && strings.Contains(key, match) {
			f.conflictOnce[match] = false
			f.mu.Unlock()
			return nil, ErrBlobVersionMismatch
		}
	}
	f.mu.Unlock()
	return f.BlobStore.PutIfMatch(ctx, key, data, expectedVersion)
}

func (f *faultyBlobStore) putCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts[key]
}

func fixedClock() func() time.Time {
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func newTestIndexer(t *testing.T, opts ...IndexerOption) (*Indexer, *LocalBlobStore) {
	t.Helper()
	store := &LocalBlobStore{Root: t.TempDir()}
	return NewIndexer(store, opts...), store
}

func rec(id string, row int, fields map[string]any) Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return Record{LPN: id, Sheet: "Sheet1", RowNumber: row, Fields: fields}
}

func batchOf(file string, recs ...Record) *ShardBuilder {
	b := NewShardBuilder()
	b.AddAll(file, recs)
	return b
}
