// Package loopcache implements the per-tenant loop cache: a copy-on-write
// map from canonical id to TradeLoop, referenced atomically so readers
// (loops_for_wallet, active_loops) never block on a concurrent mutation.
// Mutations build a new immutable map and swap the pointer in.
package loopcache

import (
	"sync/atomic"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Cache is safe for concurrent use. Mutating methods serialize with an
// internal lock around the read-copy-write cycle (distinct from the
// RWMutex discipline used by graphstore.Store since writers here are rare
// and always cheap: one discovery or one delta batch at a time per
// tenant), but all reads go through an atomic.Pointer load and never block.
type Cache struct {
	ptr atomic.Pointer[map[string]*models.TradeLoop]
}

// New returns an empty cache.
func New() *Cache {
	c := &Cache{}
	empty := make(map[string]*models.TradeLoop)
	c.ptr.Store(&empty)
	return c
}

// Snapshot returns the current map. Callers must treat it as read-only;
// every mutation replaces the pointer rather than editing in place.
func (c *Cache) Snapshot() map[string]*models.TradeLoop {
	return *c.ptr.Load()
}

// Get returns a single loop by canonical id.
func (c *Cache) Get(id string) (*models.TradeLoop, bool) {
	m := c.Snapshot()
	l, ok := m[id]
	return l, ok
}

// Merge adds newly discovered loops (already deduplicated upstream by the
// Bloom+exact gate) into the cache, returning the ones that were actually
// new. A loop already present with the same canonical id and still
// non-terminal is left untouched, not overwritten, since it may have
// progressed further along its lifecycle than a freshly rediscovered one.
// An existing entry in a terminal state (cancelled, expired, completed) is
// replaced: its trade is done, and a fresh discovery of the same cycle is a
// new loop, not a continuation of the dead one.
func (c *Cache) Merge(loops []*models.TradeLoop) []*models.TradeLoop {
	if len(loops) == 0 {
		return nil
	}
	old := c.Snapshot()
	next := make(map[string]*models.TradeLoop, len(old)+len(loops))
	for k, v := range old {
		next[k] = v
	}
	var added []*models.TradeLoop
	for _, l := range loops {
		if existing, exists := next[l.CanonicalID]; exists && !existing.Status.IsTerminal() {
			continue
		}
		next[l.CanonicalID] = l
		added = append(added, l)
	}
	c.ptr.Store(&next)
	return added
}

// InvalidateByWallets cancels every non-terminal loop whose participant
// set intersects affected, transitioning it straight to cancelled.
// Returns the loops that were invalidated.
func (c *Cache) InvalidateByWallets(affected map[models.WalletID]bool) []*models.TradeLoop {
	old := c.Snapshot()
	next := make(map[string]*models.TradeLoop, len(old))
	var removed []*models.TradeLoop
	for id, l := range old {
		if !l.Status.IsTerminal() && intersects(l, affected) {
			cancelled := *l
			cancelled.Status = models.StatusCancelled
			next[id] = &cancelled
			removed = append(removed, &cancelled)
			continue
		}
		next[id] = l
	}
	c.ptr.Store(&next)
	return removed
}

func intersects(l *models.TradeLoop, affected map[models.WalletID]bool) bool {
	for _, s := range l.Steps {
		if affected[s.From] {
			return true
		}
	}
	return false
}

// SetStatus performs a lifecycle transition, failing with
// ErrInvalidLifecycleTransition if the move isn't legal from the loop's
// current state.
func (c *Cache) SetStatus(id string, next models.LoopStatus) (*models.TradeLoop, error) {
	old := c.Snapshot()
	loop, ok := old[id]
	if !ok {
		return nil, models.ErrUnknownLoop
	}
	if !models.CanTransition(loop.Status, next) {
		return nil, models.ErrInvalidLifecycleTransition
	}

	updated := *loop
	updated.Status = next

	nextMap := make(map[string]*models.TradeLoop, len(old))
	for k, v := range old {
		nextMap[k] = v
	}
	nextMap[id] = &updated
	c.ptr.Store(&nextMap)
	return &updated, nil
}

// ForWallet returns every loop in which wallet participates.
func (c *Cache) ForWallet(w models.WalletID) []*models.TradeLoop {
	m := c.Snapshot()
	out := make([]*models.TradeLoop, 0)
	for _, l := range m {
		if l.Involves(w) {
			out = append(out, l)
		}
	}
	return out
}

// Active returns every non-terminal loop.
func (c *Cache) Active() []*models.TradeLoop {
	m := c.Snapshot()
	out := make([]*models.TradeLoop, 0)
	for _, l := range m {
		if !l.Status.IsTerminal() {
			out = append(out, l)
		}
	}
	return out
}

// ExpireStale transitions every non-terminal loop past its ExpiresAt to
// StatusExpired.
func (c *Cache) ExpireStale(now func() int64) []*models.TradeLoop {
	old := c.Snapshot()
	next := make(map[string]*models.TradeLoop, len(old))
	var expired []*models.TradeLoop
	nowUnix := now()
	for id, l := range old {
		if !l.Status.IsTerminal() && l.ExpiresAt.Unix() <= nowUnix {
			e := *l
			e.Status = models.StatusExpired
			next[id] = &e
			expired = append(expired, &e)
			continue
		}
		next[id] = l
	}
	if len(expired) > 0 {
		c.ptr.Store(&next)
	}
	return expired
}
