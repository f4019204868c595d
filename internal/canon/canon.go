// Package canon implements C2, the cycle canonicalizer: a deterministic,
// collision-free key for a trade loop independent of which wallet the
// enumeration algorithm happened to start from, and independent of
// direction.
package canon

import (
	"strings"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// edgeKey renders one step as "from>to:item1,item2" with items sorted, so
// two steps with the same endpoints but a differently-ordered item slice
// still produce identical keys.
func edgeKey(from, to models.WalletID, items []models.ItemID) string {
	sorted := make([]string, len(items))
	for i, it := range items {
		sorted[i] = string(it)
	}
	// items are already sorted by the caller (graphstore.ItemsWantedBy /
	// cycles item selection); sort defensively in case a future caller
	// doesn't guarantee it.
	sortStrings(sorted)
	var b strings.Builder
	b.WriteString(string(from))
	b.WriteByte('>')
	b.WriteString(string(to))
	b.WriteByte(':')
	b.WriteString(strings.Join(sorted, ","))
	return b.String()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// sequenceKey joins a sequence of edge keys with '|'.
func sequenceKey(edges []string) string {
	return strings.Join(edges, "|")
}

// Canonicalize returns the canonical id of a cycle expressed as an ordered
// list of steps: the lexicographically smallest string over all 2k
// rotations of the cycle and its reverse. The item list on each edge is
// folded into the key so that two cycles with identical wallet sequences
// but different item assignments canonicalize distinctly.
//
// Pure, total, O(k^2) in the naive form used here — acceptable because k
// is bounded by max_depth (<=15).
func Canonicalize(steps []models.TradeStep) string {
	k := len(steps)
	if k == 0 {
		return ""
	}

	forwardEdges := make([]string, k)
	for i, s := range steps {
		forwardEdges[i] = edgeKey(s.From, s.To, s.Items)
	}

	reverseSteps := make([]models.TradeStep, k)
	for i, s := range steps {
		// Reversing the cycle flips every edge's direction and walks the
		// step list backwards.
		reverseSteps[k-1-i] = models.TradeStep{From: s.To, To: s.From, Items: s.Items}
	}
	reverseEdges := make([]string, k)
	for i, s := range reverseSteps {
		reverseEdges[i] = edgeKey(s.From, s.To, s.Items)
	}

	best := ""
	for _, edges := range [][]string{forwardEdges, reverseEdges} {
		for rot := 0; rot < k; rot++ {
			rotated := make([]string, k)
			for i := 0; i < k; i++ {
				rotated[i] = edges[(rot+i)%k]
			}
			candidate := sequenceKey(rotated)
			if best == "" || candidate < best {
				best = candidate
			}
		}
	}
	return best
}
