// Package tenant implements the process-wide tenant registry, the only
// process-wide singleton in the engine. It lazily creates a per-tenant
// Graph Store and loop cache on first access and evicts inactive tenants
// via an LRU once their idle TTL elapses.
package tenant

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rawblock/tradeloop-engine/internal/delta"
	"github.com/rawblock/tradeloop-engine/internal/graphstore"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Tenant bundles everything scoped to one tenant: its Graph Store, its
// delta engine, and its last-touched timestamp for idle tracking.
type Tenant struct {
	ID          string
	Store       *graphstore.Store
	Delta       *delta.Engine
	events      chan models.DeltaEvent
	lastTouched atomic.Int64 // unix nanoseconds
}

func (t *Tenant) touch() { t.lastTouched.Store(time.Now().UnixNano()) }

func (t *Tenant) idleSince() time.Time { return time.Unix(0, t.lastTouched.Load()) }

// Registry is the process-wide singleton. It is safe for concurrent use;
// different tenants never share state beyond the registry's own bookkeeping
// lock.
type Registry struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, *Tenant]
	idleTTL  time.Duration
	onEvict  func(*Tenant)
}

// New creates a registry capped at maxTenants resident at once (beyond
// which the least-recently-touched tenant is evicted) with idleTTL as the
// additional wall-clock cutoff. onEvict, if non-nil, is invoked
// synchronously so a caller can flush the evicted tenant's persistence
// collaborator.
func New(maxTenants int, idleTTL time.Duration, onEvict func(*Tenant)) *Registry {
	if maxTenants <= 0 {
		maxTenants = 10000
	}
	r := &Registry{idleTTL: idleTTL, onEvict: onEvict}
	cache, _ := lru.NewWithEvict[string, *Tenant](maxTenants, func(_ string, t *Tenant) {
		if r.onEvict != nil {
			r.onEvict(t)
		}
	})
	r.cache = cache
	return r
}

// Get returns the tenant's state, lazily creating it on first access.
func (r *Registry) Get(tenantID string) *Tenant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.cache.Get(tenantID); ok {
		t.touch()
		return t
	}

	events := make(chan models.DeltaEvent, 1024)
	t := &Tenant{
		ID:     tenantID,
		Store:  graphstore.New(tenantID, events),
		events: events,
	}
	t.Delta = delta.New(t.Store, events)
	t.touch()
	go t.Delta.Run()

	r.cache.Add(tenantID, t)
	r.evictIdleLocked()
	return t
}

// evictIdleLocked removes every tenant idle beyond idleTTL. Must be called
// with mu held.
func (r *Registry) evictIdleLocked() {
	if r.idleTTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-r.idleTTL)
	for _, key := range r.cache.Keys() {
		t, ok := r.cache.Peek(key)
		if !ok {
			continue
		}
		if t.idleSince().Before(cutoff) {
			r.cache.Remove(key)
		}
	}
}

// Drain evicts every tenant, invoking onEvict for each. cmd/discoveryd does
// not call it, so process shutdown does not drain tenants.
func (r *Registry) Drain() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.cache.Keys() {
		r.cache.Remove(key)
	}
}

// Len reports the number of resident tenants.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}
