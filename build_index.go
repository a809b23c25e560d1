package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mikills/lpnfinder/lpn"
)

var manifestExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xltx": true,
	".csv":  true,
}

// collectManifests reads every manifest file directly under dir, sorted by
// name. Office lock files ("~$...") are ignored.
func collectManifests(dir string) ([]lpn.UploadFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read manifest dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		if !manifestExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	files := make([]lpn.UploadFile, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", name, err)
		}
		files = append(files, lpn.UploadFile{Name: name, Data: data})
	}
	return files, nil
}

// runBuildIndex indexes a directory of manifests as one batch and writes the
// upload summary to out as JSON.
func runBuildIndex(ctx context.Context, logger *slog.Logger, indexer *lpn.Indexer, dir string, out io.Writer) error {
	files, err := collectManifests(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w in %s", lpn.ErrNoFiles, dir)
	}
	logger.Info("building index", "dir", dir, "files", len(files))

	summary, err := indexer.Upload(ctx, files)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
