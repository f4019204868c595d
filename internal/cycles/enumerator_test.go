package cycles

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/tradeloop-engine/internal/bloomdedup"
	"github.com/rawblock/tradeloop-engine/internal/graphstore"
	"github.com/rawblock/tradeloop-engine/internal/scoring"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// threeWalletRing builds a snapshot where alice owns item-a and wants
// item-b, bob owns item-b and wants item-c, carol owns item-c and wants
// item-a: a single closed 3-cycle.
func threeWalletRing(t *testing.T) (*graphstore.Snapshot, *graphstore.WantGraph) {
	t.Helper()
	store := graphstore.New("t1", nil)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(store.AddOwned("alice", "item-a"))
	must(store.AddOwned("bob", "item-b"))
	must(store.AddOwned("carol", "item-c"))
	must(store.AddWant("alice", "item-b"))
	must(store.AddWant("bob", "item-c"))
	must(store.AddWant("carol", "item-a"))

	snap := store.Snapshot()
	return snap, snap.BuildWantGraph()
}

func defaultOptions() Options {
	return Options{
		MaxDepth:        5,
		MaxCycles:       100,
		Budget:          time.Second,
		Weights:         scoring.DefaultWeights,
		MinQualityScore: 0,
	}
}

func TestEnumerate_FindsTheSingleThreeCycle(t *testing.T) {
	snap, wg := threeWalletRing(t)
	dedup := bloomdedup.New(1000, 0.01)

	result := Enumerate(context.Background(), snap, wg, wg.Wallets, dedup, defaultOptions())

	if len(result.Loops) != 1 {
		t.Fatalf("expected exactly 1 cycle, got %d: %+v", len(result.Loops), result.Loops)
	}
	if result.Loops[0].Participants != 3 {
		t.Errorf("expected a 3-party loop, got %d", result.Loops[0].Participants)
	}
	if result.TimedOut {
		t.Error("did not expect the bounded search to time out on a tiny graph")
	}
}

func TestEnumerate_DedupSuppressesTheSameCycleAcrossCalls(t *testing.T) {
	snap, wg := threeWalletRing(t)
	dedup := bloomdedup.New(1000, 0.01)

	first := Enumerate(context.Background(), snap, wg, wg.Wallets, dedup, defaultOptions())
	second := Enumerate(context.Background(), snap, wg, wg.Wallets, dedup, defaultOptions())

	if len(first.Loops) != 1 {
		t.Fatalf("expected the first enumeration to find the cycle, got %d", len(first.Loops))
	}
	if len(second.Loops) != 0 {
		t.Errorf("expected the shared dedup gate to suppress a rediscovery of the same cycle, got %d", len(second.Loops))
	}
}

func TestEnumerate_MaxDepthBelowCycleLengthFindsNothing(t *testing.T) {
	snap, wg := threeWalletRing(t)
	dedup := bloomdedup.New(1000, 0.01)
	opts := defaultOptions()
	opts.MaxDepth = 2

	result := Enumerate(context.Background(), snap, wg, wg.Wallets, dedup, opts)
	if len(result.Loops) != 0 {
		t.Errorf("expected no cycles when MaxDepth is below the only cycle's length, got %d", len(result.Loops))
	}
}

func TestEnumerate_MaxCyclesTruncates(t *testing.T) {
	snap, wg := threeWalletRing(t)
	dedup := bloomdedup.New(1000, 0.01)
	opts := defaultOptions()
	opts.MaxCycles = 0

	result := Enumerate(context.Background(), snap, wg, wg.Wallets, dedup, opts)
	if len(result.Loops) != 0 {
		t.Errorf("expected zero loops when MaxCycles is 0, got %d", len(result.Loops))
	}
	if !result.Truncated {
		t.Error("expected Truncated to be set when the community hits MaxCycles immediately")
	}
}

func TestEnumerate_MinQualityScoreFiltersLowQualityLoops(t *testing.T) {
	snap, wg := threeWalletRing(t)
	dedup := bloomdedup.New(1000, 0.01)
	opts := defaultOptions()
	opts.MinQualityScore = 1.1 // above the achievable maximum of 1.0

	result := Enumerate(context.Background(), snap, wg, wg.Wallets, dedup, opts)
	if len(result.Loops) != 0 {
		t.Errorf("expected an unreachable quality floor to filter out every loop, got %d", len(result.Loops))
	}
}

func TestEnumerate_CancelledContextTimesOut(t *testing.T) {
	snap, wg := threeWalletRing(t)
	dedup := bloomdedup.New(1000, 0.01)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Enumerate(ctx, snap, wg, wg.Wallets, dedup, defaultOptions())
	if !result.TimedOut {
		t.Error("expected enumeration against an already-cancelled context to report TimedOut")
	}
}

func TestEnumerate_NoEdgesFindsNothing(t *testing.T) {
	store := graphstore.New("t1", nil)
	_ = store.AddOwned("alice", "item-a")
	snap := store.Snapshot()
	wg := snap.BuildWantGraph()
	dedup := bloomdedup.New(1000, 0.01)

	result := Enumerate(context.Background(), snap, wg, wg.Wallets, dedup, defaultOptions())
	if len(result.Loops) != 0 {
		t.Errorf("expected no cycles in a graph with no want edges, got %d", len(result.Loops))
	}
}
