package community

import "github.com/rawblock/tradeloop-engine/pkg/models"

// unionFind is a union-by-rank, path-compressed Union-Find over wallet ids.
// connectedComponents uses it to group members into undirected connected
// components before any Louvain pass runs.
type unionFind struct {
	parent map[models.WalletID]models.WalletID
	rank   map[models.WalletID]int
	size   map[models.WalletID]int
}

func newUnionFind(members []models.WalletID) *unionFind {
	uf := &unionFind{
		parent: make(map[models.WalletID]models.WalletID, len(members)),
		rank:   make(map[models.WalletID]int, len(members)),
		size:   make(map[models.WalletID]int, len(members)),
	}
	for _, m := range members {
		uf.parent[m] = m
		uf.rank[m] = 0
		uf.size[m] = 1
	}
	return uf
}

func (uf *unionFind) find(x models.WalletID) models.WalletID {
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x])
	}
	return uf.parent[x]
}

// union merges the groups containing a and b, returning true if a merge
// actually occurred (they were previously distinct).
func (uf *unionFind) union(a, b models.WalletID) bool {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return false
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
	return true
}

// groups returns the current partition as root -> members.
func (uf *unionFind) groups() map[models.WalletID][]models.WalletID {
	out := make(map[models.WalletID][]models.WalletID)
	for m := range uf.parent {
		r := uf.find(m)
		out[r] = append(out[r], m)
	}
	return out
}
