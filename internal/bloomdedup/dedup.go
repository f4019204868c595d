// Package bloomdedup implements the global dedup gate shared across a
// discovery run's community jobs: a Bloom filter probe backed by a precise
// set for true-membership confirmation, sharded by the first byte of the
// canonical id to reduce write contention across concurrently-running
// community workers.
package bloomdedup

import (
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
)

const shardCount = 256

// Set is a sharded Bloom+exact dedup gate. Admit is the only mutating
// operation and is safe for concurrent use from many community workers.
type Set struct {
	shards     [shardCount]*shard
	duplicates atomic.Int64
}

type shard struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

// New builds a Set sized so each of the 256 shards gets an even fraction
// of capacity at the requested false-positive rate.
func New(capacity uint, fpr float64) *Set {
	if capacity == 0 {
		capacity = 1_000_000
	}
	if fpr <= 0 {
		fpr = 0.001
	}
	perShard := capacity / shardCount
	if perShard == 0 {
		perShard = 1
	}

	s := &Set{}
	for i := range s.shards {
		s.shards[i] = &shard{
			filter: bloom.NewWithEstimates(perShard, fpr),
			exact:  make(map[string]struct{}),
		}
	}
	return s
}

func (s *Set) shardFor(id string) *shard {
	if len(id) == 0 {
		return s.shards[0]
	}
	return s.shards[id[0]]
}

// Admit probes the canonical id; if it's a probable duplicate, it confirms
// against the exact set and reports (duplicate=true), leaving the filter
// and exact set unchanged and only bumping the duplicate counter. On a
// miss it inserts into both structures and reports
// duplicate=false, admitting the id.
func (s *Set) Admit(canonicalID string) (duplicate bool) {
	sh := s.shardFor(canonicalID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.filter.TestString(canonicalID) {
		if _, ok := sh.exact[canonicalID]; ok {
			s.duplicates.Add(1)
			return true
		}
		// Bloom false positive: not actually present, fall through to admit.
	}

	sh.filter.AddString(canonicalID)
	sh.exact[canonicalID] = struct{}{}
	return false
}

// Forget releases canonicalID from the exact set so a future Admit of the
// same id is no longer treated as a duplicate. The Bloom filter itself
// retains its bits (a standard filter supports no removal), but that's
// harmless: Admit already falls through to a fresh admit whenever the
// exact set misses, treating the stale positive as if it were a false
// positive. Used by the Delta Engine to release invalidated loop ids so a
// later rediscovery of the same cycle isn't silently suppressed.
func (s *Set) Forget(canonicalID string) {
	sh := s.shardFor(canonicalID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.exact, canonicalID)
}

// Duplicates returns the count of Admit calls that found a true duplicate,
// used to populate DiscoveryMetadata.DuplicatesSuppressed.
func (s *Set) Duplicates() int64 {
	return s.duplicates.Load()
}

// Count returns the number of admitted (exact, not estimated) ids across
// all shards, used for discovery metadata.
func (s *Set) Count() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.exact)
		sh.mu.Unlock()
	}
	return total
}
