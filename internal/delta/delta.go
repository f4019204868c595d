// Package delta implements incremental discovery: consuming DeltaEvents,
// debouncing bursts, computing the affected wallet set, invalidating
// overlapping cached loops, and rerunning discovery on only the impacted
// subgraph.
package delta

import (
	"context"
	"sync"
	"time"

	"github.com/rawblock/tradeloop-engine/internal/bloomdedup"
	"github.com/rawblock/tradeloop-engine/internal/graphstore"
	"github.com/rawblock/tradeloop-engine/internal/loopcache"
	"github.com/rawblock/tradeloop-engine/internal/pipeline"
	"github.com/rawblock/tradeloop-engine/internal/scoring"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// DebounceWindow is the default coalescing window for bursts of events.
const DebounceWindow = 50 * time.Millisecond

// ReachRadius is the default hop count for the affected-wallet-set BFS.
const ReachRadius = 2

// Engine is the per-tenant Delta Engine. It owns no state a reader needs
// directly: callers interact with the tenant's Store and Cache; Engine
// only drives their evolution in response to events.
type Engine struct {
	store *graphstore.Store
	loops *loopcache.Cache
	in    <-chan models.DeltaEvent
	dedup *bloomdedup.Set

	debounce    time.Duration
	reachRadius int
	opts        models.DiscoveryOpts
	weights     scoring.Weights

	subsMu sync.RWMutex
	subs   []chan models.LoopsChanged
}

// New creates an Engine for store, consuming events from in. The algorithm
// knobs used for the incremental recompute are fixed here (max depth 10,
// community size 500, 10000 cycles per SCC, a 5s timeout, 4 workers) and
// are not taken from the process-wide discovery defaults.
func New(store *graphstore.Store, in <-chan models.DeltaEvent) *Engine {
	return &Engine{
		store:       store,
		loops:       loopcache.New(),
		in:          in,
		dedup:       bloomdedup.New(1_000_000, 0.001),
		debounce:    DebounceWindow,
		reachRadius: ReachRadius,
		opts: models.DiscoveryOpts{
			MaxDepth:         10,
			MaxResults:       1000,
			TimeoutMS:        5000,
			MaxCommunitySize: 500,
			MaxCyclesPerSCC:  10000,
			ParallelWorkers:  4,
		},
		weights: scoring.DefaultWeights,
	}
}

// Cache exposes the tenant's loop cache for read APIs (loops_for_wallet,
// active_loops) and for the orchestrator's full-discovery merge.
func (e *Engine) Cache() *loopcache.Cache { return e.loops }

// Dedup exposes the shared Bloom+exact gate so a full discovery run and
// incremental recompute agree on what counts as a duplicate within one
// tenant.
func (e *Engine) Dedup() *bloomdedup.Set { return e.dedup }

// Subscribe registers a channel to receive LoopsChanged events. The
// returned channel is buffered; a slow subscriber drops events rather than
// blocking the engine.
func (e *Engine) Subscribe() <-chan models.LoopsChanged {
	ch := make(chan models.LoopsChanged, 32)
	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()
	return ch
}

func (e *Engine) publish(event models.LoopsChanged) {
	if len(event.Added) == 0 && len(event.Removed) == 0 {
		return
	}
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Run consumes events until in is closed, debouncing bursts into batches
// and processing each batch in the order events were received.
func (e *Engine) Run() {
	var batch []models.DeltaEvent
	var timer *time.Timer

	flush := func() {
		if len(batch) == 0 {
			return
		}
		pending := batch
		batch = nil
		e.ProcessBatch(context.Background(), pending)
	}

	for {
		if timer == nil {
			ev, ok := <-e.in
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			timer = time.NewTimer(e.debounce)
			continue
		}

		select {
		case ev, ok := <-e.in:
			if !ok {
				timer.Stop()
				flush()
				return
			}
			batch = append(batch, ev)
		case <-timer.C:
			timer = nil
			flush()
		}
	}
}

// ProcessBatch runs one round of incremental maintenance for a coalesced
// batch of events: affected-set computation, cache invalidation, scoped
// rerun, and publication. It is also called synchronously by the Ingest
// API (internal/orchestrator) for immediate per-call feedback, so it must
// be safe to call concurrently with Run's own background processing —
// invalidation and merge are both idempotent (loopcache entries are
// replaced with equal values; Merge no-ops on canonical ids already present
// in a non-terminal state), so duplicate processing of the same event is
// harmless.
func (e *Engine) ProcessBatch(ctx context.Context, events []models.DeltaEvent) models.LoopsChanged {
	if len(events) == 0 {
		return models.LoopsChanged{}
	}

	snap := e.store.Snapshot()
	wantGraph := snap.BuildWantGraph()

	seeds := make([]models.WalletID, 0, len(events))
	seen := make(map[models.WalletID]bool)
	for _, ev := range events {
		if !seen[ev.Wallet] {
			seen[ev.Wallet] = true
			seeds = append(seeds, ev.Wallet)
		}
	}

	affected := wantGraph.Neighbors(seeds, e.reachRadius)

	removed := e.loops.InvalidateByWallets(affected)
	for _, l := range removed {
		e.dedup.Forget(l.CanonicalID)
	}

	boundary := wantGraph.Neighbors(seeds, e.reachRadius+1)
	filter := make([]models.WalletID, 0, len(boundary))
	for w := range boundary {
		filter = append(filter, w)
	}

	newLoops, _ := pipeline.Run(ctx, snap, wantGraph, filter, e.dedup, e.opts, e.weights)
	added := e.loops.Merge(newLoops)

	result := models.LoopsChanged{TenantID: events[0].TenantID, Added: added, Removed: removed}
	e.publish(result)
	return result
}
