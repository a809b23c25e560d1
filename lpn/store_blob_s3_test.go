package lpn

import (
	"context"
	"testing"

	"github.com/mikills/lpnfinder/lpn/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobS3(t *testing.T) {
	t.Run("put_get_head", testBlobS3PutGetHead)
	t.Run("missing_key", testBlobS3MissingKey)
	t.Run("list_strips_prefix", testBlobS3List)
	t.Run("indexer_round_trip", testBlobS3IndexerRoundTrip)
}

func newTestS3BlobStore(t *testing.T, prefix string) *S3BlobStore {
	t.Helper()
	mock := testutil.StartMockS3(t, "lpnfinder-test")
	return NewS3BlobStore(mock.Client, mock.Bucket, prefix)
}

func testBlobS3PutGetHead(t *testing.T) {
	ctx := context.Background()
	store := newTestS3BlobStore(t, "")

	put, err := store.PutIfMatch(ctx, "index/meta.json", []byte(`{"totalLpn":1}`), "")
	require.NoError(t, err)
	require.NotEmpty(t, put.Version)

	data, info, err := store.Get(ctx, "index/meta.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalLpn":1}`, string(data))
	assert.Equal(t, put.Version, info.Version)

	head, err := store.Head(ctx, "index/meta.json")
	require.NoError(t, err)
	assert.Equal(t, put.Version, head.Version)
	assert.EqualValues(t, len(data), head.Size)

	require.NoError(t, store.Delete(ctx, "index/meta.json"))
	_, _, err = store.Get(ctx, "index/meta.json")
	require.ErrorIs(t, err, ErrBlobNotFound)
}

func testBlobS3MissingKey(t *testing.T) {
	ctx := context.Background()
	store := newTestS3BlobStore(t, "")

	_, _, err := store.Get(ctx, "index/shards/ZZ.json")
	require.ErrorIs(t, err, ErrBlobNotFound)

	_, err = store.Head(ctx, "index/shards/ZZ.json")
	require.ErrorIs(t, err, ErrBlobNotFound)
}

func testBlobS3List(t *testing.T) {
	ctx := context.Background()
	store := newTestS3BlobStore(t, "tenant-a/")

	for _, key := range []string{"index/shards/LP.json", "index/shards/AB.json", "index/meta.json"} {
		_, err := store.PutIfMatch(ctx, key, []byte("{}"), "")
		require.NoError(t, err)
	}

	items, err := store.List(ctx, "index/shards/")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "index/shards/AB.json", items[0].Key)
	assert.Equal(t, "index/shards/LP.json", items[1].Key)
}

func testBlobS3IndexerRoundTrip(t *testing.T) {
	ctx := context.Background()
	ix := NewIndexer(newTestS3BlobStore(t, "lpn/"))

	batch := NewShardBuilder()
	batch.AddAll("m.xlsx", []Record{
		{LPN: "LPN0000000001", Sheet: "Sheet1", RowNumber: 2, Fields: map[string]any{"Qty": 1.0}},
		{LPN: "AB00000001", Sheet: "Sheet1", RowNumber: 3, Fields: map[string]any{}},
	})
	_, err := ix.Merge(ctx, batch)
	require.NoError(t, err)

	res, err := ix.Lookup(ctx, "lpn0000000001")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "m.xlsx", res.Record.SourceFile)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalLpn)
	assert.Equal(t, 2, stats.Shards)
}
