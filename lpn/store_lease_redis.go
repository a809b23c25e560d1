package lpn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisLeasePrefix = "lpnfinder:lease:"

// RedisWriteLeaseManager coordinates per-document write leases via Redis, for
// deployments where several instances accept uploads against one bucket.
//
// Acquire uses SET NX PX. Renew and Release run token-checked Lua scripts so
// one writer cannot extend or free another writer's lease.
type RedisWriteLeaseManager struct {
	Client redis.UniversalClient
	Prefix string
}

// NewRedisWriteLeaseManager creates a Redis-backed lease manager. An empty
// prefix selects the default namespace.
func NewRedisWriteLeaseManager(client redis.UniversalClient, prefix string) (*RedisWriteLeaseManager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisLeasePrefix
	}
	return &RedisWriteLeaseManager{Client: client, Prefix: prefix}, nil
}

func (m *RedisWriteLeaseManager) Acquire(ctx context.Context, key string, ttl time.Duration) (*WriteLease, error) {
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

	nonce, err := randomToken()
	if err != nil {
		return nil, err
	}
	token := leaseToken(document, nonce)

	now := time.Now().UTC()
	ok, err := m.Client.SetNX(ctx, m.key(key), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, ErrWriteLeaseConflict
	}

	return &WriteLease{Key: key, Token: token, ExpiresAt: now.Add(ttl)}, nil
}

func (m *RedisWriteLeaseManager) Renew(ctx context.Context, lease *WriteLease, ttl time.Duration) (*WriteLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lease == nil || strings.TrimSpace(lease.Key) == "" || strings.TrimSpace(lease.Token) == "" {
		return nil, fmt.Errorf("valid lease is required")
	}
	if ttl <= 0 {
		ttl = defaultWriteLeaseTTL
	}

	now := time.Now().UTC()
	res, err := renewLeaseScript.Run(ctx, m.Client, []string{m.key(lease.Key)}, lease.Token, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, err
	}
	if res != 1 {
		return nil, ErrWriteLeaseConflict
	}

	return &WriteLease{Key: lease.Key, Token: lease.Token, ExpiresAt: now.Add(ttl)}, nil
}

// Release deletes the lease only if the token still owns it. It uses its own
// short timeout instead of the caller's context.
func (m *RedisWriteLeaseManager) Release(_ context.Context, lease *WriteLease) error {
	if lease == nil || strings.TrimSpace(lease.Key) == "" || strings.TrimSpace(lease.Token) == "" {
		return nil
	}

	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := releaseLeaseScript.Run(releaseCtx, m.Client, []string{m.key(lease.Key)}, lease.Token).Int()
	return err
}

func (m *RedisWriteLeaseManager) key(key string) string {
	return m.Prefix + key
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

var renewLeaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

var releaseLeaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)
