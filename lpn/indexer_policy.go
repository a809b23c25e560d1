package lpn

import "time"

// IndexerPolicy holds the merge and upload tuning knobs.
type IndexerPolicy struct {
	MaxRetries       int           `json:"max_retries"`
	Parallelism      int           `json:"parallelism"`
	ArchiveManifests bool          `json:"archive_manifests"`
	WriteLeaseTTL    time.Duration `json:"write_lease_ttl"`
}

// DefaultIndexerPolicy returns single-instance defaults.
func DefaultIndexerPolicy() IndexerPolicy {
	return IndexerPolicy{
		MaxRetries:       8,
		Parallelism:      4,
		ArchiveManifests: true,
		WriteLeaseTTL:    defaultWriteLeaseTTL,
	}
}

// normalizeIndexerPolicy fills non-positive Parallelism and WriteLeaseTTL and
// negative MaxRetries from the defaults. ArchiveManifests is taken as given.
func normalizeIndexerPolicy(policy IndexerPolicy) IndexerPolicy {
	defaults := DefaultIndexerPolicy()

	if policy.MaxRetries >= 0 {
		defaults.MaxRetries = policy.MaxRetries
	}
	if policy.Parallelism > 0 {
		defaults.Parallelism = policy.Parallelism
	}
	if policy.WriteLeaseTTL > 0 {
		defaults.WriteLeaseTTL = policy.WriteLeaseTTL
	}
	defaults.ArchiveManifests = policy.ArchiveManifests

	return defaults
}
