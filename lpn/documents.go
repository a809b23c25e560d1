package lpn

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	shardKeyPrefix    = "index/shards/"
	metaKey           = "index/meta.json"
	manifestKeyPrefix = "manifests/"
)

// ShardDocument is the persisted index for one shard key.
type ShardDocument struct {
	Shard     string            `json:"shard"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Count     int               `json:"count"`
	Index     map[string]Record `json:"index"`
}

// MetaDocument summarizes the whole index without scanning shards.
type MetaDocument struct {
	Manifests  []string  `json:"manifests" bson:"manifests"`
	TotalLpn   int       `json:"totalLpn" bson:"totalLpn"`
	Shards     int       `json:"shards" bson:"shards"`
	ShardsList []string  `json:"shardsList" bson:"shardsList"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ShardBlobKey is the blob path of a shard document. The shard key is
// path-escaped so keys such as "./" or "A/" stay a single path segment.
func ShardBlobKey(shard string) string {
	return shardKeyPrefix + url.PathEscape(shard) + ".json"
}

// shardFromBlobKey reverses ShardBlobKey.
func shardFromBlobKey(key string) (string, bool) {
	if !strings.HasPrefix(key, shardKeyPrefix) || !strings.HasSuffix(key, ".json") {
		return "", false
	}
	segment := strings.TrimSuffix(strings.TrimPrefix(key, shardKeyPrefix), ".json")
	if segment == "" || strings.Contains(segment, "/") {
		return "", false
	}
	shard, err := url.PathUnescape(segment)
	if err != nil || shard == "" {
		return "", false
	}
	return shard, true
}

// MetaBlobKey is the blob path of the meta document.
func MetaBlobKey() string {
	return metaKey
}

func manifestArchiveKey(now time.Time, id, name string) string {
	base := strings.ReplaceAll(strings.TrimSpace(name), "/", "_")
	return fmt.Sprintf("%s%d-%s-%s", manifestKeyPrefix, now.UnixMilli(), id, base)
}

// sortedUnion merges string sets, dropping blanks and duplicates.
func sortedUnion(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, s := range list {
			if s == "" {
				continue
			}
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
