package lpn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const defaultUploadName = "uploaded.xlsx"

// UploadFile is one manifest in an upload batch.
type UploadFile struct {
	Name string
	Data []byte
}

// SkippedSheet names a sheet that had no LPN header row.
type SkippedSheet struct {
	File  string `json:"file"`
	Sheet string `json:"sheet"`
}

// UploadSummary is what an upload reports back to the caller.
type UploadSummary struct {
	Files         []string       `json:"files"`
	ParsedRows    int            `json:"parsedRows"`
	UniqueNewLpns int            `json:"uniqueNewLpns"`
	ShardsUpdated []string       `json:"shardsUpdated"`
	SkippedSheets []SkippedSheet `json:"skippedSheets"`
}

// Upload parses every file, buffers the records by shard and merges the batch
// into the index. A file that cannot be parsed fails the whole batch before
// anything is written, archive copies included.
func (ix *Indexer) Upload(ctx context.Context, files []UploadFile) (*UploadSummary, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	batch := NewShardBuilder()
	summary := &UploadSummary{
		Files:         make([]string, 0, len(files)),
		SkippedSheets: []SkippedSheet{},
	}

	for _, f := range files {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			name = defaultUploadName
		}
		summary.Files = append(summary.Files, name)

		wb, err := ReadWorkbook(name, f.Data)
		if err != nil {
			return nil, err
		}

		batch.AddFile(name)
		for _, sheet := range wb.Sheets {
			recs, ok := ix.Extractor.Extract(sheet.Name, sheet.Rows)
			if !ok {
				slog.Default().WarnContext(ctx, "sheet skipped: no LPN header row",
					"file", name,
					"sheet", sheet.Name,
					"rows", len(sheet.Rows),
				)
				summary.SkippedSheets = append(summary.SkippedSheets, SkippedSheet{File: name, Sheet: sheet.Name})
				continue
			}
			batch.AddAll(name, recs)
		}
	}

	if ix.Policy.ArchiveManifests {
		for i, f := range files {
			ix.archiveManifest(ctx, summary.Files[i], f.Data)
		}
	}

	result, err := ix.Merge(ctx, batch)
	if err != nil {
		return nil, err
	}

	summary.ParsedRows = batch.Parsed()
	summary.UniqueNewLpns = result.UniqueNewLpns
	summary.ShardsUpdated = result.ShardKeys()

	slog.Default().InfoContext(ctx, "upload merged",
		"files", len(summary.Files),
		"parsed_rows", summary.ParsedRows,
		"unique_new_lpns", summary.UniqueNewLpns,
		"shards_updated", len(summary.ShardsUpdated),
		"skipped_sheets", len(summary.SkippedSheets),
	)
	return summary, nil
}

// archiveManifest keeps the raw upload next to the index. It is a
// convenience copy; failures are logged and do not fail the upload.
func (ix *Indexer) archiveManifest(ctx context.Context, name string, data []byte) {
	key := manifestArchiveKey(ix.now(), ix.newID(), name)
	if _, err := ix.BlobStore.PutIfMatch(ctx, key, data, ""); err != nil {
		slog.Default().WarnContext(ctx, "manifest archive failed", "file", name, "key", key, "error", err)
	}
}

func newArchiveID() string {
	return uuid.New().String()[:8]
}

// ArchivedManifests lists raw uploads kept under the manifests/ prefix.
func (ix *Indexer) ArchivedManifests(ctx context.Context) ([]BlobObjectInfo, error) {
	items, err := ix.BlobStore.List(ctx, manifestKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list archived manifests: %w", err)
	}
	return LatestVersions(items), nil
}
