package lpn

import (
	"context"
	"errors"
	"time"
)

// MergeRetryStats describes how one document's read-merge-write cycle went.
type MergeRetryStats struct {
	Operation       string
	Key             string
	Attempts        int
	ConflictCount   int
	TotalRetryDelay time.Duration
	Success         bool
}

// MergeRetryObserver is notified once per document write cycle.
type MergeRetryObserver interface {
	ObserveMergeRetry(stats MergeRetryStats)
}

// MergeRetryObserverFunc adapts a function to MergeRetryObserver.
type MergeRetryObserverFunc func(stats MergeRetryStats)

// ObserveMergeRetry calls f(stats).
func (f MergeRetryObserverFunc) ObserveMergeRetry(stats MergeRetryStats) {
	if f != nil {
		f(stats)
	}
}

// WithMergeRetryObserver sets an observer for merge retry events.
func WithMergeRetryObserver(observer MergeRetryObserver) IndexerOption {
	return func(ix *Indexer) {
		ix.RetryObserver = observer
	}
}

func isWriteConflict(err error) bool {
	return errors.Is(err, ErrBlobVersionMismatch) || errors.Is(err, ErrWriteLeaseConflict)
}

// runWithMergeRetry re-runs op while it fails with a write conflict, up to
// maxRetries times, sleeping attempt² × 10ms between tries.
func runWithMergeRetry(ctx context.Context, operation, key string, maxRetries int, observer MergeRetryObserver, op func() error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	stats := MergeRetryStats{Operation: operation, Key: key}
	for {
		stats.Attempts++
		err := op()
		if err == nil {
			stats.Success = true
			notifyMergeRetryObserver(observer, stats)
			return nil
		}
		if !isWriteConflict(err) {
			notifyMergeRetryObserver(observer, stats)
			return err
		}

		stats.ConflictCount++
		if stats.ConflictCount > maxRetries {
			notifyMergeRetryObserver(observer, stats)
			return err
		}

		attempt := stats.ConflictCount
		backoff := time.Duration(attempt*attempt) * 10 * time.Millisecond
		stats.TotalRetryDelay += backoff

		if err := sleepWithContext(ctx, backoff); err != nil {
			notifyMergeRetryObserver(observer, stats)
			return err
		}
	}
}

func notifyMergeRetryObserver(observer MergeRetryObserver, stats MergeRetryStats) {
	if observer == nil {
		return
	}
	observer.ObserveMergeRetry(stats)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
