package lpn

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type heldLease struct {
	token   string
	expires time.Time
}

// InMemoryWriteLeaseManager serializes shard and meta writers inside one
// process. It is what tests and single-instance deployments use; several
// instances sharing a bucket need RedisWriteLeaseManager.
type InMemoryWriteLeaseManager struct {
	mu     sync.Mutex
	held   map[string]heldLease
	issued uint64
}

func NewInMemoryWriteLeaseManager() *InMemoryWriteLeaseManager {
	return &InMemoryWriteLeaseManager{held: map[string]heldLease{}}
}

func (m *InMemoryWriteLeaseManager) Acquire(ctx context.Context, key string, ttl time.Duration) (*WriteLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	document, err := leaseDocument(key)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultWriteLeaseTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.dropExpiredLocked(now)
	if _, busy := m.held[key]; busy {
		return nil, ErrWriteLeaseConflict
	}

	m.issued++
	lease := &WriteLease{
		Key:       key,
		Token:     leaseToken(document, strconv.FormatUint(m.issued, 10)),
		ExpiresAt: now.Add(ttl),
	}
	m.held[key] = heldLease{token: lease.Token, expires: lease.ExpiresAt}
	return lease, nil
}

func (m *InMemoryWriteLeaseManager) Renew(ctx context.Context, lease *WriteLease, ttl time.Duration) (*WriteLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lease == nil || lease.Token == "" {
		return nil, fmt.Errorf("valid lease is required")
	}
	if _, err := leaseDocument(lease.Key); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultWriteLeaseTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	cur, ok := m.held[lease.Key]
	if !ok || cur.token != lease.Token || !now.Before(cur.expires) {
		return nil, ErrWriteLeaseConflict
	}
	cur.expires = now.Add(ttl)
	m.held[lease.Key] = cur
	return &WriteLease{Key: lease.Key, Token: lease.Token, ExpiresAt: cur.expires}, nil
}

// Release ignores ctx: a cancelled upload must still free its shard.
func (m *InMemoryWriteLeaseManager) Release(_ context.Context, lease *WriteLease) error {
	if lease == nil || lease.Token == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.held[lease.Key]; ok && cur.token == lease.Token {
		delete(m.held, lease.Key)
	}
	return nil
}

func (m *InMemoryWriteLeaseManager) dropExpiredLocked(now time.Time) {
	for key, l := range m.held {
		if !now.Before(l.expires) {
			delete(m.held, key)
		}
	}
}
