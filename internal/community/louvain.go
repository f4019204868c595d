// Package community implements C4, the community partitioner: splitting an
// SCC above max_community_size into smaller communities via Louvain-style
// modularity-maximizing agglomeration, so C5's enumeration cost per
// community stays bounded.
package community

import (
	"sort"

	"github.com/rawblock/tradeloop-engine/internal/graphstore"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// ID identifies a community within a single Partition call.
type ID int

// Result is the output of Partition: which wallets landed in which
// community, plus the bridge nodes eligible for cross-community promotion.
type Result struct {
	Communities map[ID][]models.WalletID
	// Bridges lists wallets with want-edges reaching into two or more
	// distinct communities — candidates for cross-community cycle
	// promotion.
	Bridges []models.WalletID
}

// weightedGraph is the undirected projection of the want-graph restricted
// to members: edge weight is the number of directed want-edges between u
// and v in either direction, which is what Louvain's modularity objective
// operates on.
type weightedGraph struct {
	members []models.WalletID
	index   map[models.WalletID]int
	neigh   []map[int]float64 // neigh[i][j] = edge weight between member i and j
	degree  []float64
	total   float64 // sum of all edge weights (each undirected edge counted once per endpoint, so 2*m)
}

func buildWeightedGraph(members []models.WalletID, wg *graphstore.WantGraph) *weightedGraph {
	g := &weightedGraph{
		members: members,
		index:   make(map[models.WalletID]int, len(members)),
		neigh:   make([]map[int]float64, len(members)),
		degree:  make([]float64, len(members)),
	}
	for i, m := range members {
		g.index[m] = i
		g.neigh[i] = make(map[int]float64)
	}
	inSet := func(w models.WalletID) (int, bool) {
		i, ok := g.index[w]
		return i, ok
	}
	addEdge := func(i, j int, w float64) {
		g.neigh[i][j] += w
		g.neigh[j][i] += w
		g.degree[i] += w
		g.degree[j] += w
		g.total += 2 * w
	}
	for _, u := range members {
		ui, _ := inSet(u)
		for _, v := range wg.Adj[u] {
			vi, ok := inSet(v)
			if !ok || vi == ui {
				continue
			}
			// Every directed edge adds 1 to the pair's undirected weight, so
			// a reciprocal pair weighs 2 and a one-way pair weighs 1.
			addEdge(ui, vi, 1)
		}
	}
	return g
}

// Partition splits members into communities. If len(members) is already at
// or below maxCommunitySize, the whole set is a single community: below the
// threshold there's no benefit to subdividing it.
func Partition(members []models.WalletID, wg *graphstore.WantGraph, maxCommunitySize int) Result {
	if len(members) <= maxCommunitySize || maxCommunitySize <= 0 {
		return Result{Communities: map[ID][]models.WalletID{0: members}}
	}

	groups := louvainSplit(members, wg, maxCommunitySize)

	communities := make(map[ID][]models.WalletID, len(groups))
	for i, g := range groups {
		sort.Slice(g, func(a, b int) bool { return g[a] < g[b] })
		communities[ID(i)] = g
	}

	return Result{Communities: communities, Bridges: findBridges(communities, wg)}
}

// louvainSplit recursively applies one level of Louvain local-moving to
// members, then subdivides any resulting group still over the size cap.
// Recursion is bounded by halving-ish group sizes in practice and a hard
// depth cap to guarantee termination on pathological (near-clique) graphs.
func louvainSplit(members []models.WalletID, wg *graphstore.WantGraph, maxSize int) [][]models.WalletID {
	return louvainSplitDepth(members, wg, maxSize, 0)
}

const maxLouvainDepth = 8

func louvainSplitDepth(members []models.WalletID, wg *graphstore.WantGraph, maxSize, depth int) [][]models.WalletID {
	if len(members) <= maxSize || depth >= maxLouvainDepth {
		return chunk(members, maxSize)
	}

	// Connected components (undirected) never need to share a Louvain pass:
	// modularity gain between them is always zero, so splitting on
	// connectivity first is free quality and shrinks the problem Louvain
	// has to solve.
	if comps := connectedComponents(members, wg); len(comps) > 1 {
		var out [][]models.WalletID
		for _, comp := range comps {
			out = append(out, louvainSplitDepth(comp, wg, maxSize, depth+1)...)
		}
		return out
	}

	g := buildWeightedGraph(members, wg)
	labels := oneLevelLouvain(g)

	byLabel := make(map[int][]models.WalletID)
	for i, m := range members {
		byLabel[labels[i]] = append(byLabel[labels[i]], m)
	}

	if len(byLabel) <= 1 {
		// No modularity-improving split found; fall back to a deterministic
		// chunk so large, effectively-clique-like communities still
		// terminate within maxCommunitySize.
		return chunk(members, maxSize)
	}

	var out [][]models.WalletID
	for _, grp := range byLabel {
		if len(grp) > maxSize {
			out = append(out, louvainSplitDepth(grp, wg, maxSize, depth+1)...)
		} else {
			out = append(out, grp)
		}
	}
	return out
}

// chunk is the deterministic fallback splitter: sorted members sliced into
// maxSize-sized groups. Used when Louvain's local-moving phase cannot find
// any modularity-improving partition (e.g. a near-uniform clique), so
// Partition always terminates with every community at or below the cap.
func chunk(members []models.WalletID, maxSize int) [][]models.WalletID {
	sorted := append([]models.WalletID(nil), members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if maxSize <= 0 {
		return [][]models.WalletID{sorted}
	}
	var out [][]models.WalletID
	for i := 0; i < len(sorted); i += maxSize {
		end := i + maxSize
		if end > len(sorted) {
			end = len(sorted)
		}
		out = append(out, sorted[i:end])
	}
	return out
}

// oneLevelLouvain runs a single pass of the Louvain local-moving phase:
// each node starts in its own community, then nodes repeatedly move to the
// neighboring community that most increases modularity, until no move
// improves it. Returns a label per member index.
func oneLevelLouvain(g *weightedGraph) []int {
	n := len(g.members)
	label := make([]int, n)
	commDegree := make([]float64, n) // sum of degrees of nodes currently in community i
	for i := range label {
		label[i] = i
		commDegree[i] = g.degree[i]
	}

	if g.total == 0 {
		return label
	}

	improved := true
	for pass := 0; improved && pass < 50; pass++ {
		improved = false
		for i := 0; i < n; i++ {
			currentLabel := label[i]

			// Remove i from its current community for gain accounting.
			commDegree[currentLabel] -= g.degree[i]

			// Tally edge weight from i into each neighboring community.
			weightToComm := make(map[int]float64)
			for j, w := range g.neigh[i] {
				weightToComm[label[j]] += w
			}

			bestLabel := currentLabel
			bestGain := modularityGain(weightToComm[currentLabel], g.degree[i], commDegree[currentLabel], g.total)

			for comm, wTo := range weightToComm {
				if comm == currentLabel {
					continue
				}
				gain := modularityGain(wTo, g.degree[i], commDegree[comm], g.total)
				if gain > bestGain {
					bestGain = gain
					bestLabel = comm
				}
			}

			label[i] = bestLabel
			commDegree[bestLabel] += g.degree[i]
			if bestLabel != currentLabel {
				improved = true
			}
		}
	}

	return label
}

// modularityGain computes the (unnormalized) gain in modularity from
// placing a node of degree kI, with wIn edge-weight into the target
// community, into a community with existing total degree sigmaTot
// (excluding the node itself). total is the 2m normalization constant.
func modularityGain(wIn, kI, sigmaTot, total float64) float64 {
	if total == 0 {
		return 0
	}
	return wIn - (sigmaTot*kI)/total
}

// connectedComponents groups members by undirected reachability over the
// want-graph, using union-find rather than a BFS/DFS frontier since all
// that's needed is group membership, not traversal order.
func connectedComponents(members []models.WalletID, wg *graphstore.WantGraph) [][]models.WalletID {
	uf := newUnionFind(members)
	memberSet := make(map[models.WalletID]bool, len(members))
	for _, m := range members {
		memberSet[m] = true
	}
	for _, u := range members {
		for _, v := range wg.Adj[u] {
			if memberSet[v] {
				uf.union(u, v)
			}
		}
	}
	groups := uf.groups()
	out := make([][]models.WalletID, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	return out
}

// findBridges identifies wallets with outbound want-edges reaching two or
// more distinct communities; they are candidates for cross-community cycle
// promotion when cross-community discovery is enabled.
func findBridges(communities map[ID][]models.WalletID, wg *graphstore.WantGraph) []models.WalletID {
	commOf := make(map[models.WalletID]ID)
	for id, members := range communities {
		for _, m := range members {
			commOf[m] = id
		}
	}

	var bridges []models.WalletID
	for u, cu := range commOf {
		seen := map[ID]bool{cu: true}
		for _, v := range wg.Adj[u] {
			if cv, ok := commOf[v]; ok {
				seen[cv] = true
			}
		}
		if len(seen) >= 2 {
			bridges = append(bridges, u)
		}
	}
	sort.Slice(bridges, func(i, j int) bool { return bridges[i] < bridges[j] })
	return bridges
}
