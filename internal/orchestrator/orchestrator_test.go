package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/tradeloop-engine/internal/tenant"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func newTestOrchestrator() *Orchestrator {
	registry := tenant.New(10, time.Hour, nil)
	return New(registry, models.DiscoveryOpts{})
}

func seedThreeCycle(t *testing.T, o *Orchestrator, tenantID string) {
	t.Helper()
	ctx := context.Background()
	must := func(_ []*models.TradeLoop, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(o.AddNFT(ctx, tenantID, "alice", "item-a"))
	must(o.AddNFT(ctx, tenantID, "bob", "item-b"))
	must(o.AddNFT(ctx, tenantID, "carol", "item-c"))
	must(o.AddWant(ctx, tenantID, "alice", "item-b"))
	must(o.AddWant(ctx, tenantID, "bob", "item-c"))
	must(o.AddWant(ctx, tenantID, "carol", "item-a"))
}

func TestDiscover_FindsASeededThreeCycle(t *testing.T) {
	o := newTestOrchestrator()
	seedThreeCycle(t, o, "t1")

	result, err := o.Discover(context.Background(), "t1", models.DiscoveryOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Loops) != 1 {
		t.Fatalf("expected exactly 1 discovered loop, got %d", len(result.Loops))
	}
	if result.Metadata.RunID == "" {
		t.Error("expected Discover to stamp a non-empty RunID")
	}
}

func TestDiscover_MergesNewLoopsIntoTheLoopCache(t *testing.T) {
	o := newTestOrchestrator()
	seedThreeCycle(t, o, "t1")

	if _, err := o.Discover(context.Background(), "t1", models.DiscoveryOpts{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active := o.ActiveLoops("t1")
	if len(active) != 1 {
		t.Errorf("expected the discovered loop to be merged into the active cache, got %d", len(active))
	}
}

func TestLoopsForWallet_ReturnsOnlyThatWalletsLoops(t *testing.T) {
	o := newTestOrchestrator()
	seedThreeCycle(t, o, "t1")
	if _, err := o.Discover(context.Background(), "t1", models.DiscoveryOpts{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loops := o.LoopsForWallet("t1", "alice")
	if len(loops) != 1 {
		t.Errorf("expected alice to participate in exactly 1 loop, got %d", len(loops))
	}
	loops = o.LoopsForWallet("t1", "ghost")
	if len(loops) != 0 {
		t.Errorf("expected an uninvolved wallet to have 0 loops, got %d", len(loops))
	}
}

func TestAddNFT_OwnershipConflictReturnsError(t *testing.T) {
	o := newTestOrchestrator()
	ctx := context.Background()
	if _, err := o.AddNFT(ctx, "t1", "alice", "item-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := o.AddNFT(ctx, "t1", "bob", "item-a"); err == nil {
		t.Error("expected assigning an already-owned item to a different wallet to fail")
	}
}

func TestRemoveNFT_InvalidatesDependentLoop(t *testing.T) {
	o := newTestOrchestrator()
	ctx := context.Background()
	seedThreeCycle(t, o, "t1")

	if len(o.ActiveLoops("t1")) == 0 {
		t.Fatal("expected the seeded cycle to already be active before testing removal")
	}

	removed, err := o.RemoveNFT(ctx, "t1", "bob", "item-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(removed) == 0 {
		t.Error("expected removing an item mid-loop to report it as removed")
	}
	if len(o.ActiveLoops("t1")) != 0 {
		t.Error("expected no active loops remain once the only cycle's item was removed")
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	o := newTestOrchestrator()
	ctx := context.Background()
	if _, err := o.AddNFT(ctx, "t1", "alice", "item-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := o.AddNFT(ctx, "t2", "alice", "item-a"); err != nil {
		t.Errorf("expected the same wallet/item pair to be independently valid under a different tenant, got %v", err)
	}
}

func TestMarkApproved_ThenCancelFollowsLifecycleRules(t *testing.T) {
	o := newTestOrchestrator()
	seedThreeCycle(t, o, "t1")
	result, err := o.Discover(context.Background(), "t1", models.DiscoveryOpts{})
	if err != nil || len(result.Loops) != 1 {
		t.Fatalf("setup failed: loops=%d err=%v", len(result.Loops), err)
	}
	id := result.Loops[0].CanonicalID

	if _, err := o.MarkCompleted("t1", id); err == nil {
		t.Error("expected pending -> completed to be rejected directly")
	}
	if _, err := o.MarkApproved("t1", id); err != nil {
		t.Fatalf("unexpected error approving: %v", err)
	}
	if _, err := o.Cancel("t1", id, "buyer withdrew"); err != nil {
		t.Fatalf("unexpected error cancelling an approved loop: %v", err)
	}
}

func TestFillDefaults_ConfiguredDefaultsOverrideHardcodedFloor(t *testing.T) {
	opts := fillDefaults(models.DiscoveryOpts{}, models.DiscoveryOpts{MaxDepth: 7, MaxResults: 42})
	if opts.MaxDepth != 7 {
		t.Errorf("expected configured default MaxDepth 7, got %d", opts.MaxDepth)
	}
	if opts.MaxResults != 42 {
		t.Errorf("expected configured default MaxResults 42, got %d", opts.MaxResults)
	}
	if opts.TimeoutMS != 30000 {
		t.Errorf("expected hardcoded floor 30000 for an unconfigured field, got %d", opts.TimeoutMS)
	}
}

func TestFillDefaults_PerCallValueTakesPrecedenceOverDefaults(t *testing.T) {
	opts := fillDefaults(models.DiscoveryOpts{MaxDepth: 3}, models.DiscoveryOpts{MaxDepth: 7})
	if opts.MaxDepth != 3 {
		t.Errorf("expected the explicit per-call value to win, got %d", opts.MaxDepth)
	}
}

func TestFillDefaults_ClampsMaxDepthCeiling(t *testing.T) {
	opts := fillDefaults(models.DiscoveryOpts{MaxDepth: 100}, models.DiscoveryOpts{})
	if opts.MaxDepth != 15 {
		t.Errorf("expected MaxDepth to clamp to 15, got %d", opts.MaxDepth)
	}
}
