// Package pipeline wires SCC decomposition, community partitioning, and
// cycle enumeration into a single "decompose, partition, enumerate"
// sequence, parameterized by an optional wallet filter so it can serve
// both a full discovery (filter = nil, the whole tenant graph) and the
// Delta Engine's incremental recompute (filter = affected wallet set plus
// boundary).
package pipeline

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/tradeloop-engine/internal/bloomdedup"
	"github.com/rawblock/tradeloop-engine/internal/community"
	"github.com/rawblock/tradeloop-engine/internal/cycles"
	"github.com/rawblock/tradeloop-engine/internal/graphstore"
	"github.com/rawblock/tradeloop-engine/internal/scc"
	"github.com/rawblock/tradeloop-engine/internal/scoring"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

type job struct {
	members []models.WalletID
}

// Run decomposes the (optionally filtered) want-graph into SCCs,
// partitions large ones into communities, enumerates cycles in each
// community in parallel, and returns every loop that cleared dedup and the
// min-quality floor, plus run metadata.
func Run(ctx context.Context, snap *graphstore.Snapshot, wg *graphstore.WantGraph, filter []models.WalletID, dedup *bloomdedup.Set, opts models.DiscoveryOpts, weights scoring.Weights) ([]*models.TradeLoop, models.DiscoveryMetadata) {
	meta := models.DiscoveryMetadata{PhaseTimingsMS: make(map[string]int64)}
	dupBefore := dedup.Duplicates()

	target := wg
	if filter != nil {
		target = wg.Induced(filter)
	}

	sccStart := time.Now()
	sccBudget := time.Duration(opts.TimeoutMS) * time.Millisecond / 2
	if sccBudget <= 0 {
		sccBudget = 5 * time.Second
	}
	sccResult := scc.Find(target, sccBudget)
	meta.PhaseTimingsMS["scc"] = time.Since(sccStart).Milliseconds()
	meta.SCCsProcessed = len(sccResult.Components)
	meta.TimedOut = sccResult.TimedOut

	var jobs []job
	for _, comp := range sccResult.Components {
		if opts.MaxCommunitySize > 0 && len(comp) > opts.MaxCommunitySize {
			part := community.Partition(comp, target, opts.MaxCommunitySize)
			for _, members := range part.Communities {
				jobs = append(jobs, job{members: members})
			}
			if opts.EnableCrossCommunity && len(part.Bridges) >= 2 {
				jobs = append(jobs, job{members: part.Bridges})
			}
		} else {
			jobs = append(jobs, job{members: comp})
		}
	}
	meta.CommunitiesProcessed = len(jobs)

	workers := opts.ParallelWorkers
	if workers <= 0 {
		workers = 4
	}

	cyclesStart := time.Now()
	deadline := time.Now().Add(time.Duration(opts.TimeoutMS) * time.Millisecond)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var (
		mu        sync.Mutex
		allLoops  []*models.TradeLoop
		truncated bool
		timedOut  bool
		partial   bool
	)

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(workers)

	for _, j := range jobs {
		j := j
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					// A failed community job is logged and skipped; partial
					// results are still returned rather than failing the
					// whole run.
					log.Printf("community job failed, skipping it: %v", r)
					mu.Lock()
					partial = true
					mu.Unlock()
				}
			}()

			remaining := time.Until(deadline)
			if remaining <= 0 {
				mu.Lock()
				timedOut = true
				mu.Unlock()
				return nil
			}

			res := cycles.Enumerate(gctx, snap, target, j.members, dedup, cycles.Options{
				MaxDepth:        opts.MaxDepth,
				MaxCycles:       capOrDefault(opts.MaxCyclesPerSCC),
				Budget:          remaining,
				EnableBundling:  opts.EnableBundling,
				BundleLimit:     5,
				Weights:         weights,
				MinQualityScore: opts.MinQualityScore,
			})

			mu.Lock()
			allLoops = append(allLoops, res.Loops...)
			if res.Truncated {
				truncated = true
			}
			if res.TimedOut {
				timedOut = true
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	meta.PhaseTimingsMS["cycles"] = time.Since(cyclesStart).Milliseconds()
	meta.LoopsFound = len(allLoops)
	meta.Truncated = meta.Truncated || truncated
	meta.TimedOut = meta.TimedOut || timedOut
	meta.Partial = partial
	meta.DuplicatesSuppressed = int(dedup.Duplicates() - dupBefore)

	sort.Slice(allLoops, func(i, j int) bool {
		if allLoops[i].QualityScore != allLoops[j].QualityScore {
			return allLoops[i].QualityScore > allLoops[j].QualityScore
		}
		return allLoops[i].CanonicalID < allLoops[j].CanonicalID
	})

	if opts.MaxResults > 0 && len(allLoops) > opts.MaxResults {
		allLoops = allLoops[:opts.MaxResults]
	}

	return allLoops, meta
}

func capOrDefault(v int) int {
	if v <= 0 {
		return 10000
	}
	return v
}
