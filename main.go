package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	appcmd "github.com/mikills/lpnfinder/cmd"
	"github.com/mikills/lpnfinder/lpn"
)

func main() {
	logFormat := getenvDefault("LPNFINDER_LOG_FORMAT", "text")
	logger := newLogger(logFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	indexer, closeBackends, err := newIndexerFromEnv(ctx, logger, os.Getenv)
	if err != nil {
		logger.Error("configure indexer", "error", err)
		os.Exit(1)
	}
	defer closeBackends()

	if len(os.Args) > 1 && os.Args[1] == "build-index" {
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: lpnfinder build-index <dir>")
			os.Exit(2)
		}
		if err := runBuildIndex(ctx, logger, indexer, os.Args[2], os.Stdout); err != nil {
			logger.Error("build index", "dir", os.Args[2], "error", err)
			closeBackends()
			os.Exit(1)
		}
		return
	}

	addr := getenvDefault("LPNFINDER_HTTP_ADDR", "127.0.0.1:8080")
	maxUpload := getenvInt64Default(logger, "LPNFINDER_MAX_UPLOAD_BYTES", 64<<20)

	appCfg := appcmd.AppConfig{
		Address:           addr,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxUploadBytes:    maxUpload,
		Logger:            logger,
	}
	app := appcmd.NewApp(indexer, appCfg)

	if err := app.Start(); err != nil {
		logger.Error("start app", "error", err)
		os.Exit(1)
	}
	logger.Info("lpnfinder listening", "address", app.Address())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
		defer cancel()
		if err := app.Stop(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := app.Wait(); err != nil {
		logger.Error("app exited with error", "error", err)
		closeBackends()
		os.Exit(1)
	}
}

func newLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func getenvDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt64Default(logger *slog.Logger, key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("invalid integer env var", "key", key, "value", v, "error", err)
		os.Exit(1)
	}
	return n
}

func parseIndexerPolicyFromEnv(getenv func(string) string) (lpn.IndexerPolicy, error) {
	policy := lpn.DefaultIndexerPolicy()

	// setInt parses an int env var that must be at least min.
	setInt := func(key string, dest *int, min int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < min {
			return fmt.Errorf("%s must be an integer >= %d", key, min)
		}
		*dest = n
		return nil
	}

	setBool := func(key string, dest *bool) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s must be a boolean", key)
		}
		*dest = b
		return nil
	}

	setDuration := func(key string, dest *time.Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
		*dest = d
		return nil
	}

	for _, call := range []error{
		setInt("LPNFINDER_MERGE_MAX_RETRIES", &policy.MaxRetries, 0),
		setInt("LPNFINDER_MERGE_PARALLELISM", &policy.Parallelism, 1),
		setBool("LPNFINDER_ARCHIVE_MANIFESTS", &policy.ArchiveManifests),
		setDuration("LPNFINDER_LEASE_TTL", &policy.WriteLeaseTTL),
	} {
		if call != nil {
			return lpn.IndexerPolicy{}, call
		}
	}

	const maxParallelism = 64
	if policy.Parallelism > maxParallelism {
		return lpn.IndexerPolicy{}, fmt.Errorf("LPNFINDER_MERGE_PARALLELISM must be <= %d", maxParallelism)
	}
	return policy, nil
}
