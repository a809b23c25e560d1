package lpn

import (
	"context"
	"strings"
	"testing"

	"github.com/mikills/lpnfinder/lpn/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	t.Run("single_manifest", testUploadSingleManifest)
	t.Run("duplicate_across_files", testUploadDuplicateAcrossFiles)
	t.Run("skipped_sheets_reported", testUploadSkippedSheets)
	t.Run("csv_manifest", testUploadCSV)
	t.Run("no_files", testUploadNoFiles)
	t.Run("bad_file_fails_batch", testUploadBadFileFailsBatch)
	t.Run("archive_disabled", testUploadArchiveDisabled)
}

func manifest1(t *testing.T) []byte {
	return testutil.SingleSheetManifest(t,
		[]any{"LPN", "Description", "Unit Retail"},
		[]any{"LPN0000000001", "Widget", "$12.50"},
	)
}

func testUploadSingleManifest(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndexer(t, WithClock(fixedClock()))
	ix.newID = func() string { return "abcd1234" }

	summary, err := ix.Upload(ctx, []UploadFile{{Name: "manifest1.xlsx", Data: manifest1(t)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"manifest1.xlsx"}, summary.Files)
	assert.Equal(t, 1, summary.ParsedRows)
	assert.Equal(t, 1, summary.UniqueNewLpns)
	assert.Equal(t, []string{"LP"}, summary.ShardsUpdated)
	assert.Empty(t, summary.SkippedSheets)

	got, err := ix.Lookup(ctx, " lpn0000000001 ")
	require.NoError(t, err)
	require.True(t, got.Found)
	assert.True(t, got.Complete)
	assert.Equal(t, "LPN0000000001", got.LPN)
	assert.Equal(t, 12.5, got.Record.Fields["Unit Retail"])
	assert.Equal(t, "Widget", got.Record.Fields["Description"])
	assert.Equal(t, 2, got.Record.RowNumber)
	assert.Equal(t, "Sheet1", got.Record.Sheet)
	assert.Equal(t, "manifest1.xlsx", got.Record.SourceFile)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ManifestCount)
	assert.Equal(t, 1, stats.TotalLpn)
	assert.Equal(t, 1, stats.Shards)
	require.NotNil(t, stats.UpdatedAt)

	archived, err := ix.ArchivedManifests(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "manifests/1777627800000-abcd1234-manifest1.xlsx", archived[0].Key)
}

func testUploadDuplicateAcrossFiles(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndexer(t)

	first := testutil.SingleSheetManifest(t,
		[]any{"LPN", "Qty"},
		[]any{"LPN0000000001", 1},
		[]any{"LPN0000000002", 2},
	)
	second := testutil.SingleSheetManifest(t,
		[]any{"LPN", "Qty"},
		[]any{"lpn0000000001", 5},
	)

	summary, err := ix.Upload(ctx, []UploadFile{
		{Name: "first.xlsx", Data: first},
		{Name: "second.xlsx", Data: second},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ParsedRows)
	assert.Equal(t, 2, summary.UniqueNewLpns)

	got, err := ix.Lookup(ctx, "LPN0000000001")
	require.NoError(t, err)
	require.True(t, got.Found)
	assert.Equal(t, "second.xlsx", got.Record.SourceFile, "later files in a batch win")
	assert.Equal(t, 5.0, got.Record.Fields["Qty"])

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalLpn)
	assert.Equal(t, []string{"first.xlsx", "second.xlsx"}, stats.Manifests)
}

func testUploadSkippedSheets(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndexer(t)

	data := testutil.ManifestXLSX(t,
		testutil.SheetFixture{Name: "Cover", Rows: [][]any{{"Pallet summary"}, {"Total", 3}}},
		testutil.SheetFixture{Name: "Items", Rows: [][]any{{"LPN", "Qty"}, {"LPN0000000001", 1}}},
	)

	summary, err := ix.Upload(ctx, []UploadFile{{Name: "pallet.xlsx", Data: data}})
	require.NoError(t, err)
	assert.Equal(t, []SkippedSheet{{File: "pallet.xlsx", Sheet: "Cover"}}, summary.SkippedSheets)
	assert.Equal(t, 1, summary.ParsedRows)

	got, err := ix.Lookup(ctx, "LPN0000000001")
	require.NoError(t, err)
	require.True(t, got.Found)
	assert.Equal(t, "Items", got.Record.Sheet)
}

func testUploadCSV(t *testing.T) {
	ctx := context.Background()
	ix, _ := newTestIndexer(t)

	data := []byte("LPN,Ext. Retail\nAB0000000001,\"$2,400.00\"\n")
	summary, err := ix.Upload(ctx, []UploadFile{{Name: "truck.csv", Data: data}})
	require.NoError(t, err)
	assert.Equal(t, []string{"AB"}, summary.ShardsUpdated)

	got, err := ix.Lookup(ctx, "ab0000000001")
	require.NoError(t, err)
	require.True(t, got.Found)
	assert.False(t, got.Complete)
	assert.Equal(t, 2400.0, got.Record.Fields["Ext. Retail"])
	assert.Equal(t, "truck", got.Record.Sheet)
}

func testUploadNoFiles(t *testing.T) {
	ix, _ := newTestIndexer(t)
	_, err := ix.Upload(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoFiles)
	assert.True(t, IsInvalidInput(err))
}

func testUploadBadFileFailsBatch(t *testing.T) {
	ctx := context.Background()
	ix, store := newTestIndexer(t)

	_, err := ix.Upload(ctx, []UploadFile{
		{Name: "good.xlsx", Data: manifest1(t)},
		{Name: "notes.txt", Data: []byte("hello")},
	})
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	items, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, items, "nothing is written when a file is rejected")

	got, err := ix.Lookup(ctx, "LPN0000000001")
	require.NoError(t, err)
	assert.False(t, got.Found)
}

func testUploadArchiveDisabled(t *testing.T) {
	ctx := context.Background()
	policy := DefaultIndexerPolicy()
	policy.ArchiveManifests = false
	ix, store := newTestIndexer(t, WithIndexerPolicy(policy))

	_, err := ix.Upload(ctx, []UploadFile{{Name: "", Data: manifest1(t)}})
	require.NoError(t, err)

	items, err := store.List(ctx, "")
	require.NoError(t, err)
	for _, item := range items {
		assert.False(t, strings.HasPrefix(item.Key, "manifests/"), item.Key)
	}

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"uploaded.xlsx"}, stats.Manifests)
}
