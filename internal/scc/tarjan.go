// Package scc implements C3, Tarjan's strongly-connected-components
// algorithm over the directed want-graph, with a bounded wall-clock
// execution budget.
package scc

import (
	"time"

	"github.com/rawblock/tradeloop-engine/internal/graphstore"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Result is the outcome of a Find call.
type Result struct {
	// Components holds every non-trivial SCC (size >= 2, or a singleton
	// with a self-loop); singletons without a self-loop are discarded
	// since no cycle can form from them.
	Components [][]models.WalletID
	TimedOut   bool
}

type tarjanState struct {
	adj      map[models.WalletID][]models.WalletID
	index    map[models.WalletID]int
	lowlink  map[models.WalletID]int
	onStack  map[models.WalletID]bool
	stack    []models.WalletID
	counter  int
	result   [][]models.WalletID
	deadline time.Time
	timedOut bool
}

// Find runs Tarjan's algorithm over wg, bounded by budget wall-clock time.
// On expiry it returns the SCCs discovered so far plus TimedOut=true; this
// never corrupts partial state because each SCC is only appended once
// fully popped off the stack.
func Find(wg *graphstore.WantGraph, budget time.Duration) Result {
	st := &tarjanState{
		adj:      wg.Adj,
		index:    make(map[models.WalletID]int),
		lowlink:  make(map[models.WalletID]int),
		onStack:  make(map[models.WalletID]bool),
		deadline: time.Now().Add(budget),
	}

	for _, v := range wg.Wallets {
		if st.timedOut {
			break
		}
		if _, visited := st.index[v]; !visited {
			st.strongconnect(v)
		}
	}

	return Result{Components: st.result, TimedOut: st.timedOut}
}

// strongconnect is the classic recursive Tarjan visit, rewritten with an
// explicit work stack would be more allocation-friendly for very deep
// graphs, but want-graphs bounded by max_depth-scale communities keep
// recursion depth modest in practice; the recursive form matches the
// textbook algorithm most directly and is easiest to audit for
// correctness.
func (st *tarjanState) strongconnect(v models.WalletID) {
	if st.timedOut || time.Now().After(st.deadline) {
		st.timedOut = true
		return
	}

	st.index[v] = st.counter
	st.lowlink[v] = st.counter
	st.counter++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	for _, w := range st.adj[v] {
		if st.timedOut {
			return
		}
		if _, visited := st.index[w]; !visited {
			st.strongconnect(w)
			if st.timedOut {
				return
			}
			if st.lowlink[w] < st.lowlink[v] {
				st.lowlink[v] = st.lowlink[w]
			}
		} else if st.onStack[w] {
			if st.index[w] < st.lowlink[v] {
				st.lowlink[v] = st.index[w]
			}
		}
	}

	if st.lowlink[v] != st.index[v] {
		return
	}

	// v is a root node; pop the stack to form its SCC.
	var component []models.WalletID
	for {
		n := len(st.stack) - 1
		w := st.stack[n]
		st.stack = st.stack[:n]
		st.onStack[w] = false
		component = append(component, w)
		if w == v {
			break
		}
	}

	if len(component) >= 2 || hasSelfLoop(st.adj, component[0]) {
		st.result = append(st.result, component)
	}
}

func hasSelfLoop(adj map[models.WalletID][]models.WalletID, v models.WalletID) bool {
	for _, w := range adj[v] {
		if w == v {
			return true
		}
	}
	return false
}
