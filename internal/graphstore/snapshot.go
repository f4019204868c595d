package graphstore

import (
	"sort"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Snapshot is an immutable, point-in-time view of a tenant's graph. It is
// cheap to take because it deep-copies only the (typically small) wallet
// and item records, not any derived adjacency — callers build whatever
// adjacency they need from the copied maps, which can then be read
// lock-free by any number of goroutines.
type Snapshot struct {
	Seq     uint64
	Wallets map[models.WalletID]*models.Wallet
	Items   map[models.ItemID]*models.Item
	// Wants mirrors the store's inverse index at snapshot time.
	Wants map[models.ItemID]map[models.WalletID]struct{}
}

// Snapshot takes a consistent, deep-copied view of the store suitable for
// read-only traversal by cycle discovery. The copy is made under the read
// lock, so writers wait while it is taken. Discovery never mutates a
// Snapshot, so once taken it needs no further synchronization.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Seq:     s.seq,
		Wallets: make(map[models.WalletID]*models.Wallet, len(s.wallets)),
		Items:   make(map[models.ItemID]*models.Item, len(s.items)),
		Wants:   make(map[models.ItemID]map[models.WalletID]struct{}, len(s.wants)),
	}
	for id, w := range s.wallets {
		snap.Wallets[id] = w.Clone()
	}
	for id, it := range s.items {
		cp := *it
		snap.Items[id] = &cp
	}
	for item, set := range s.wants {
		cp := make(map[models.WalletID]struct{}, len(set))
		for w := range set {
			cp[w] = struct{}{}
		}
		snap.Wants[item] = cp
	}
	return snap
}

// WantGraph is the directed adjacency u -> v iff u wants an item owned by
// v, excluding any edge a wallet has rejected (either by item or by peer).
// This is the graph C3 decomposes into SCCs.
type WantGraph struct {
	// Adj[u] is the sorted, deduplicated list of wallets u has a live want
	// edge into.
	Adj map[models.WalletID][]models.WalletID
	// Wallets is every wallet id present in the snapshot, including
	// isolated ones with no edges, sorted for deterministic iteration.
	Wallets []models.WalletID
}

// BuildWantGraph derives the directed want-graph from the snapshot,
// suppressing edges that cross a stated rejection before emission.
func (snap *Snapshot) BuildWantGraph() *WantGraph {
	adjSet := make(map[models.WalletID]map[models.WalletID]struct{}, len(snap.Wallets))
	for id := range snap.Wallets {
		adjSet[id] = make(map[models.WalletID]struct{})
	}

	for item, item2 := range snap.Items {
		owner := item2.Owner
		wanters, ok := snap.Wants[item]
		if !ok {
			continue
		}
		for u := range wanters {
			if u == owner {
				continue
			}
			uw, ok := snap.Wallets[u]
			if !ok {
				continue
			}
			if _, rejectedItem := uw.RejectedItems[item]; rejectedItem {
				continue
			}
			if _, rejectedPeer := uw.RejectedPeers[owner]; rejectedPeer {
				continue
			}
			if ow, ok := snap.Wallets[owner]; ok {
				if _, rejectedBack := ow.RejectedPeers[u]; rejectedBack {
					continue
				}
			}
			if _, ok := adjSet[u]; !ok {
				adjSet[u] = make(map[models.WalletID]struct{})
			}
			adjSet[u][owner] = struct{}{}
		}
	}

	wg := &WantGraph{Adj: make(map[models.WalletID][]models.WalletID, len(adjSet))}
	for u, set := range adjSet {
		list := make([]models.WalletID, 0, len(set))
		for v := range set {
			list = append(list, v)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		wg.Adj[u] = list
	}

	wg.Wallets = make([]models.WalletID, 0, len(snap.Wallets))
	for id := range snap.Wallets {
		wg.Wallets = append(wg.Wallets, id)
	}
	sort.Slice(wg.Wallets, func(i, j int) bool { return wg.Wallets[i] < wg.Wallets[j] })

	return wg
}

// Induced returns the subgraph of wg restricted to members: only wallets in
// members are kept, and only edges with both endpoints in members survive.
// Used by the Delta Engine to run SCC decomposition on the affected-set-
// plus-one-hop boundary instead of the whole tenant graph.
func (wg *WantGraph) Induced(members []models.WalletID) *WantGraph {
	in := make(map[models.WalletID]bool, len(members))
	for _, m := range members {
		in[m] = true
	}
	out := &WantGraph{Adj: make(map[models.WalletID][]models.WalletID, len(members))}
	for _, u := range members {
		for _, v := range wg.Adj[u] {
			if in[v] {
				out.Adj[u] = append(out.Adj[u], v)
			}
		}
	}
	out.Wallets = append([]models.WalletID(nil), members...)
	sort.Slice(out.Wallets, func(i, j int) bool { return out.Wallets[i] < out.Wallets[j] })
	return out
}

// Neighbors returns the wallets reachable from seeds within radius hops,
// following edges in either direction (want-graph direction is not
// meaningful for "blast radius" purposes: a want edge in either direction
// can make a loop through a changed wallet realizable or not). Used by the
// Delta Engine to compute the affected wallet set.
func (wg *WantGraph) Neighbors(seeds []models.WalletID, radius int) map[models.WalletID]bool {
	reverse := make(map[models.WalletID][]models.WalletID)
	for u, vs := range wg.Adj {
		for _, v := range vs {
			reverse[v] = append(reverse[v], u)
		}
	}

	visited := make(map[models.WalletID]bool, len(seeds))
	frontier := make([]models.WalletID, 0, len(seeds))
	for _, s := range seeds {
		if !visited[s] {
			visited[s] = true
			frontier = append(frontier, s)
		}
	}

	for hop := 0; hop < radius && len(frontier) > 0; hop++ {
		var next []models.WalletID
		for _, u := range frontier {
			for _, v := range wg.Adj[u] {
				if !visited[v] {
					visited[v] = true
					next = append(next, v)
				}
			}
			for _, v := range reverse[u] {
				if !visited[v] {
					visited[v] = true
					next = append(next, v)
				}
			}
		}
		frontier = next
	}

	return visited
}

// ItemsWantedBy returns the items wallet u wants that owner currently owns
// — the candidate set for an edge u -> owner.
func (snap *Snapshot) ItemsWantedBy(u, owner models.WalletID) []models.ItemID {
	uw, ok := snap.Wallets[u]
	if !ok {
		return nil
	}
	ow, ok := snap.Wallets[owner]
	if !ok {
		return nil
	}
	out := make([]models.ItemID, 0)
	for item := range ow.Owned {
		if _, wants := uw.Wanted[item]; wants {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
