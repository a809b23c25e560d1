package cmd

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/mikills/lpnfinder/lpn"
	"github.com/mikills/lpnfinder/lpn/testutil"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupS3RedisApp(t *testing.T) (string, *lpn.Indexer) {
	t.Helper()

	s3Mock := testutil.StartMockS3(t, "lpnfinder-integration")

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = redisClient.Close()
	})

	leaseMgr, err := lpn.NewRedisWriteLeaseManager(redisClient, "test:lease:")
	require.NoError(t, err)

	policy := lpn.DefaultIndexerPolicy()
	policy.MaxRetries = 20
	policy.WriteLeaseTTL = 3 * time.Second

	indexer := lpn.NewIndexer(
		lpn.NewS3BlobStore(s3Mock.Client, s3Mock.Bucket, "lpnfinder/"),
		lpn.WithWriteLeaseManager(leaseMgr),
		lpn.WithIndexerPolicy(policy),
	)

	app := NewApp(indexer, AppConfig{Address: "127.0.0.1:0"})
	require.NoError(t, app.Start())
	t.Cleanup(func() {
		_ = app.Stop(context.Background())
		_ = app.Wait()
	})

	require.NotEmpty(t, app.Address())
	return "http://" + app.Address(), indexer
}

func TestAppIndex(t *testing.T) {
	t.Run("s3_redis_upload_lookup_stats", testAppIndexS3Redis)
	t.Run("second_upload_overwrites", testAppIndexSecondUploadOverwrites)
	t.Run("concurrent_uploads_same_shard", testAppIndexConcurrentUploads)
	t.Run("reconcile", testAppIndexReconcile)
}

func testAppIndexS3Redis(t *testing.T) {
	base, indexer := setupS3RedisApp(t)

	manifest := testutil.SingleSheetManifest(t,
		[]any{"LPN", "Item Description", "Unit Retail"},
		[]any{"lpn0000000001", "Widget", "$12.50"},
	)
	resp := postUpload(t, base, uploadPart{name: "manifest1.xlsx", data: manifest})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	upload := decodeBody(t, resp)
	assert.Equal(t, true, upload["ok"])
	assert.Equal(t, []any{"manifest1.xlsx"}, upload["files"])
	assert.EqualValues(t, 1, upload["parsedRows"])
	assert.EqualValues(t, 1, upload["uniqueNewLpns"])
	assert.Equal(t, []any{"LP"}, upload["shardsUpdated"])

	status, lookup := getJSON(t, base+"/api/lookup?lpn=LPN0000000001")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, lookup["ok"])
	assert.Equal(t, true, lookup["found"])
	assert.Equal(t, "LPN0000000001", lookup["lpn"])
	assert.Equal(t, map[string]any{
		"LPN":              "LPN0000000001",
		"Item Description": "Widget",
		"Unit Retail":      12.5,
		"sheet":            "Sheet1",
		"rowNumber":        2.0,
		"__sourceFile":     "manifest1.xlsx",
	}, lookup["record"])

	status, stats := getJSON(t, base+"/api/stats")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, stats["ok"])
	assert.EqualValues(t, 1, stats["manifestCount"])
	assert.EqualValues(t, 1, stats["totalLpn"])
	assert.EqualValues(t, 1, stats["shards"])
	assert.Equal(t, []any{"manifest1.xlsx"}, stats["manifests"])
	assert.NotEmpty(t, stats["updatedAt"])

	archived, err := indexer.ArchivedManifests(context.Background())
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Contains(t, archived[0].Key, "-manifest1.xlsx")
}

func testAppIndexSecondUploadOverwrites(t *testing.T) {
	base, _ := setupS3RedisApp(t)

	first := testutil.SingleSheetManifest(t,
		[]any{"LPN", "Qty"},
		[]any{"LPN0000000001", 1},
		[]any{"AB0000000001", 4},
	)
	second := testutil.SingleSheetManifest(t,
		[]any{"LPN", "Qty"},
		[]any{"LPN0000000001", 9},
	)

	resp := postUpload(t, base, uploadPart{name: "first.xlsx", data: first})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postUpload(t, base, uploadPart{name: "second.xlsx", data: second})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody(t, resp)
	assert.EqualValues(t, 0, out["uniqueNewLpns"])

	_, lookup := getJSON(t, base+"/api/lookup?lpn=lpn0000000001")
	record := lookup["record"].(map[string]any)
	assert.EqualValues(t, 9, record["Qty"])
	assert.Equal(t, "second.xlsx", record["__sourceFile"])

	_, untouched := getJSON(t, base+"/api/lookup?lpn=AB0000000001")
	assert.Equal(t, true, untouched["found"])
	assert.Equal(t, false, untouched["complete"])

	_, stats := getJSON(t, base+"/api/stats")
	assert.EqualValues(t, 2, stats["manifestCount"])
	assert.EqualValues(t, 2, stats["totalLpn"])
	assert.EqualValues(t, 2, stats["shards"])
}

func testAppIndexConcurrentUploads(t *testing.T) {
	base, _ := setupS3RedisApp(t)

	ids := []string{"LPN0000000011", "LPN0000000012", "LPN0000000013", "LPN0000000014"}
	var wg sync.WaitGroup
	statuses := make([]int, len(ids))
	type pending struct {
		body        []byte
		contentType string
	}
	reqs := make([]pending, len(ids))
	for i, id := range ids {
		data := testutil.SingleSheetManifest(t, []any{"LPN", "Qty"}, []any{id, i + 1})
		body, contentType := multipartBody(t, uploadFormField, uploadPart{name: "pod.xlsx", data: data})
		reqs[i] = pending{body: body.Bytes(), contentType: contentType}
	}

	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(base+"/api/upload", reqs[i].contentType, bytes.NewReader(reqs[i].body))
			if err != nil {
				return
			}
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	for i, status := range statuses {
		require.Equal(t, http.StatusOK, status, ids[i])
	}
	for _, id := range ids {
		_, lookup := getJSON(t, base+"/api/lookup?lpn="+id)
		assert.Equal(t, true, lookup["found"], id)
	}
	_, stats := getJSON(t, base+"/api/stats")
	assert.EqualValues(t, len(ids), stats["totalLpn"])
	assert.EqualValues(t, 1, stats["manifestCount"], "same file name is one manifest entry")
}

func testAppIndexReconcile(t *testing.T) {
	base, indexer := setupS3RedisApp(t)
	ctx := context.Background()

	resp := postUpload(t, base, uploadPart{
		name: "m.csv",
		data: []byte("LPN,Qty\nLPN0000000001,1\nZZ00000001,2\n"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	rev, err := indexer.Meta.GetMeta(ctx)
	require.NoError(t, err)
	drifted := rev.Meta
	drifted.TotalLpn = 100
	_, err = indexer.Meta.PutMetaIfMatch(ctx, drifted, "")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, base+"/api/reconcile", nil)
	require.NoError(t, err)
	rresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rresp.StatusCode)
	out := decodeBody(t, rresp)
	assert.EqualValues(t, 2, out["totalLpn"])
	assert.Equal(t, []any{"LP", "ZZ"}, out["shardsList"])

	_, stats := getJSON(t, base+"/api/stats")
	assert.EqualValues(t, 2, stats["totalLpn"])
}
