// Package cycles implements C5, the bounded-depth cycle enumerator: a
// Johnson-style stack-based DFS per community, item selection per edge,
// canonicalization, and Bloom-backed deduplication, emitting scored
// TradeLoops.
package cycles

import (
	"context"
	"sort"
	"time"

	"github.com/rawblock/tradeloop-engine/internal/bloomdedup"
	"github.com/rawblock/tradeloop-engine/internal/canon"
	"github.com/rawblock/tradeloop-engine/internal/graphstore"
	"github.com/rawblock/tradeloop-engine/internal/scoring"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Options bounds a single community's enumeration.
type Options struct {
	MaxDepth        int
	MaxCycles       int
	Budget          time.Duration
	EnableBundling  bool
	BundleLimit     int // cap on items per step when bundling is enabled
	Weights         scoring.Weights
	MinQualityScore float64
}

// Result is one community's enumeration outcome.
type Result struct {
	Loops     []*models.TradeLoop
	Truncated bool
	TimedOut  bool
}

// Enumerate runs the bounded DFS over community (a subset of snap's
// wallets), emitting cycles through dedup before scoring. ctx carries the
// discovery request's deadline; dedup is the run-wide shared gate so
// cross-community duplicates (possible when cross-community bridging is
// on) are also caught.
func Enumerate(ctx context.Context, snap *graphstore.Snapshot, wg *graphstore.WantGraph, community []models.WalletID, dedup *bloomdedup.Set, opts Options) Result {
	e := &enumerator{
		ctx:       ctx,
		snap:      snap,
		adj:       restrictAdjacency(wg, community),
		members:   community,
		dedup:     dedup,
		opts:      opts,
		blocked:   make(map[models.WalletID]bool),
		blockMap:  make(map[models.WalletID]map[models.WalletID]bool),
		onStack:   make(map[models.WalletID]bool),
		deadline:  time.Now().Add(opts.Budget),
	}

	sorted := append([]models.WalletID(nil), community...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, s := range sorted {
		if e.timedOut || len(e.result.Loops) >= opts.MaxCycles {
			break
		}
		e.resetBlocking()
		e.stack = e.stack[:0]
		e.start = s
		e.dfs(s)
	}

	e.result.TimedOut = e.timedOut
	if len(e.result.Loops) >= opts.MaxCycles {
		e.result.Truncated = true
	}
	return e.result
}

// restrictAdjacency filters wg's adjacency down to edges whose endpoints
// are both in community, and whose source is >= target is NOT required
// here (the `successors with id >= s` restriction happens per-DFS-root in
// dfs, not globally, since every wallet is itself a possible start).
func restrictAdjacency(wg *graphstore.WantGraph, community []models.WalletID) map[models.WalletID][]models.WalletID {
	in := make(map[models.WalletID]bool, len(community))
	for _, m := range community {
		in[m] = true
	}
	out := make(map[models.WalletID][]models.WalletID, len(community))
	for _, u := range community {
		for _, v := range wg.Adj[u] {
			if in[v] {
				out[u] = append(out[u], v)
			}
		}
	}
	return out
}

type enumerator struct {
	ctx     context.Context
	snap    *graphstore.Snapshot
	adj     map[models.WalletID][]models.WalletID
	members []models.WalletID
	dedup   *bloomdedup.Set
	opts    Options

	start    models.WalletID
	stack    []models.WalletID
	onStack  map[models.WalletID]bool
	blocked  map[models.WalletID]bool
	blockMap map[models.WalletID]map[models.WalletID]bool

	deadline time.Time
	timedOut bool

	result Result
}

func (e *enumerator) resetBlocking() {
	for k := range e.blocked {
		delete(e.blocked, k)
	}
	for k := range e.blockMap {
		delete(e.blockMap, k)
	}
}

// dfs is the Johnson-style blocked-node search rooted at e.start, only
// exploring successors with id >= e.start to avoid re-enumerating
// rotations of the same cycle from a different starting wallet.
func (e *enumerator) dfs(v models.WalletID) bool {
	if e.checkBudget() {
		return false
	}

	foundCycle := false
	e.stack = append(e.stack, v)
	e.onStack[v] = true
	e.blocked[v] = true

	for _, w := range e.adj[v] {
		if e.checkBudget() || len(e.result.Loops) >= e.opts.MaxCycles {
			break
		}
		if w < e.start {
			continue
		}
		if w == e.start {
			if len(e.stack) >= 2 {
				e.emit(append([]models.WalletID(nil), e.stack...))
				foundCycle = true
			}
			continue
		}
		if len(e.stack) >= e.opts.MaxDepth {
			continue
		}
		if e.blocked[w] {
			continue
		}
		if e.dfs(w) {
			foundCycle = true
		}
	}

	if foundCycle {
		e.unblock(v)
	} else {
		for _, w := range e.adj[v] {
			if w < e.start {
				continue
			}
			e.addBlockEdge(w, v)
		}
	}

	e.stack = e.stack[:len(e.stack)-1]
	e.onStack[v] = false
	return foundCycle
}

func (e *enumerator) unblock(v models.WalletID) {
	delete(e.blocked, v)
	for w := range e.blockMap[v] {
		if e.blocked[w] {
			e.unblock(w)
		}
	}
	delete(e.blockMap, v)
}

func (e *enumerator) addBlockEdge(w, v models.WalletID) {
	set, ok := e.blockMap[w]
	if !ok {
		set = make(map[models.WalletID]bool)
		e.blockMap[w] = set
	}
	set[v] = true
}

func (e *enumerator) checkBudget() bool {
	if e.timedOut {
		return true
	}
	select {
	case <-e.ctx.Done():
		e.timedOut = true
		return true
	default:
	}
	if time.Now().After(e.deadline) {
		e.timedOut = true
		return true
	}
	return false
}

// emit assembles the closed cycle walk into a TradeLoop, selects items per
// edge, canonicalizes, dedups, scores, and appends to the result.
//
// walk[i] -> walk[i+1] is a want-graph edge: walk[i] wants an item owned by
// walk[i+1]. The item therefore flows the other way, so the trade steps are
// built against the reverse of the walk (from=walk[i+1], to=walk[i]).
func (e *enumerator) emit(walk []models.WalletID) {
	k := len(walk)
	rev := make([]models.WalletID, k)
	for i, w := range walk {
		rev[k-1-i] = w
	}
	steps := make([]models.TradeStep, k)
	for i := 0; i < k; i++ {
		from := rev[i]
		to := rev[(i+1)%k]
		items := selectItems(e.snap, from, to, e.opts.EnableBundling, e.opts.BundleLimit)
		if len(items) == 0 {
			// No realizable item selection on this edge (can happen if the
			// want-graph edge exists but the specific item intersection
			// emptied between snapshot and DFS — defensive, not expected).
			return
		}
		steps[i] = models.TradeStep{From: from, To: to, Items: items}
	}

	id := canon.Canonicalize(steps)
	if e.dedup.Admit(id) {
		return
	}

	edgeCtxs := make([]scoring.EdgeContext, k)
	for i, s := range steps {
		edgeCtxs[i] = buildEdgeContext(e.snap, s)
	}
	breakdown := scoring.Compute(k, e.opts.MaxDepth, edgeCtxs)
	quality := scoring.Composite(breakdown, e.opts.Weights)
	if quality < e.opts.MinQualityScore {
		return
	}

	now := time.Now()
	loop := &models.TradeLoop{
		CanonicalID:    id,
		Steps:          steps,
		Participants:   k,
		QualityScore:   quality,
		ScoreBreakdown: breakdown,
		Status:         models.StatusPending,
		DiscoveredAt:   now,
		ExpiresAt:      now.Add(24 * time.Hour),
	}
	loop.AuditHash = AuditHash(loop)

	e.result.Loops = append(e.result.Loops, loop)
}

// selectItems implements the edge item-selection policy: by default it
// picks the single smallest-id item in owned(from) ∩ wanted(to); bundling
// mode selects up to bundleLimit items from that intersection.
func selectItems(snap *graphstore.Snapshot, from, to models.WalletID, bundling bool, bundleLimit int) []models.ItemID {
	candidates := snap.ItemsWantedBy(to, from) // items `to` wants that `from` owns
	if len(candidates) == 0 {
		return nil
	}
	if !bundling {
		return candidates[:1]
	}
	if bundleLimit <= 0 || bundleLimit > len(candidates) {
		bundleLimit = len(candidates)
	}
	return candidates[:bundleLimit]
}

func buildEdgeContext(snap *graphstore.Snapshot, s models.TradeStep) scoring.EdgeContext {
	ctx := scoring.EdgeContext{
		Items:      s.Items,
		Values:     make([]float64, len(s.Items)),
		ValueKnown: make([]bool, len(s.Items)),
		WantCounts: make([]int, len(s.Items)),
	}
	for i, item := range s.Items {
		if it, ok := snap.Items[item]; ok {
			ctx.Values[i] = it.EstimatedValue
			ctx.ValueKnown[i] = it.ValueKnown
		}
		ctx.WantCounts[i] = len(snap.Wants[item])
	}
	return ctx
}
