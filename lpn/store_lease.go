// store_lease.go defines the WriteLeaseManager interface and the indexer's
// lease helpers.
//
// Every shard merge and meta update acquires a lease on its document key
// ("shard:AB", "meta") before the read-merge-write cycle. The lease makes CAS
// conflicts rare across pods; PutIfMatch on the document remains the
// correctness guard. Lease conflicts are retried like version conflicts.

package lpn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const defaultWriteLeaseTTL = 30 * time.Second

var errInvalidLeaseKey = errors.New("invalid lease key")

// WriteLease represents a held write lock on one document key. The Token
// lets the manager verify ownership on Renew and Release.
type WriteLease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// WriteLeaseManager coordinates writers of a document key.
// Acquire returns ErrWriteLeaseConflict when the lease is already held.
// Renew returns ErrWriteLeaseConflict if the lease expired or changed owner.
// Release is best-effort and must not be skipped on error paths.
type WriteLeaseManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*WriteLease, error)
	Renew(ctx context.Context, lease *WriteLease, ttl time.Duration) (*WriteLease, error)
	Release(ctx context.Context, lease *WriteLease) error
}

const (
	shardLeasePrefix = "shard:"
	metaLeaseKey     = "meta"
)

func shardLeaseKey(shard string) string { return shardLeasePrefix + shard }

// leaseDocument resolves a lease key to the blob path of the document it
// guards. Only "meta" and "shard:<key>" are valid lease keys.
func leaseDocument(key string) (string, error) {
	switch {
	case key == metaLeaseKey:
		return MetaBlobKey(), nil
	case strings.HasPrefix(key, shardLeasePrefix) && len(key) > len(shardLeasePrefix):
		return ShardBlobKey(strings.TrimPrefix(key, shardLeasePrefix)), nil
	default:
		return "", fmt.Errorf("%w: %q", errInvalidLeaseKey, key)
	}
}

// leaseToken names the guarded document so a stuck lease can be traced to
// the blob it blocks.
func leaseToken(document, nonce string) string {
	return document + "#" + nonce
}

// withWriteLease runs fn while holding the lease for key. A conflict is
// returned wrapped so the retry loop backs off and tries again.
func (ix *Indexer) withWriteLease(ctx context.Context, key string, fn func() error) error {
	mgr := ix.WriteLeaseManager
	if mgr == nil {
		return fn()
	}
	ttl := ix.WriteLeaseTTL
	if ttl <= 0 {
		ttl = defaultWriteLeaseTTL
	}

	lease, err := mgr.Acquire(ctx, key, ttl)
	if err != nil {
		if errors.Is(err, ErrWriteLeaseConflict) {
			slog.Default().WarnContext(ctx, "write lease acquisition conflict", "lease_key", key, "reason", "lease_conflict", "ttl", ttl.String())
		} else {
			slog.Default().ErrorContext(ctx, "write lease acquisition failed", "lease_key", key, "reason", "lease_acquire_failed", "error", err)
		}
		return fmt.Errorf("acquire write lease %s: %w", key, err)
	}
	defer func() {
		if err := mgr.Release(context.Background(), lease); err != nil {
			slog.Default().WarnContext(ctx, "write lease release failed", "lease_key", key, "error", err)
		}
	}()
	return fn()
}
