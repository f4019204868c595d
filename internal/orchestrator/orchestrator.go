// Package orchestrator implements the engine's Discovery, Ingest, and
// Lifecycle APIs. It drives a full discover() through internal/pipeline
// and mutates the Graph Store on behalf of the Ingest API, delegating
// incremental recompute to the tenant's Delta Engine for immediate
// per-call feedback.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/tradeloop-engine/internal/bloomdedup"
	"github.com/rawblock/tradeloop-engine/internal/pipeline"
	"github.com/rawblock/tradeloop-engine/internal/scoring"
	"github.com/rawblock/tradeloop-engine/internal/tenant"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Orchestrator is a thin façade over the tenant registry exposing the
// engine's external API surface. It holds no per-tenant state of its own.
type Orchestrator struct {
	registry *tenant.Registry
	weights  scoring.Weights
	defaults models.DiscoveryOpts
}

// New wraps registry with default scoring weights and the process-wide
// DiscoveryOpts defaults (from config). A per-call opts field left at its
// zero value falls back to defaults; defaults left at zero value fall back
// to fillDefaults' own hardcoded floor. Overriding weights per discover()
// call is not currently exposed — see DESIGN.md.
func New(registry *tenant.Registry, defaults models.DiscoveryOpts) *Orchestrator {
	return &Orchestrator{registry: registry, weights: scoring.DefaultWeights, defaults: defaults}
}

// DiscoveryResult bundles the ranked loops and run metadata returned by a
// discover() call.
type DiscoveryResult struct {
	Loops    []*models.TradeLoop
	Metadata models.DiscoveryMetadata
}

// fillDefaults fills any zero-valued field of opts first from d (the
// process-wide configured defaults), then from a hardcoded floor so a
// discover() call is always well-formed even against a zero-value
// Orchestrator (e.g. in tests).
func fillDefaults(opts, d models.DiscoveryOpts) models.DiscoveryOpts {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = d.MaxDepth
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 10
	}
	if opts.MaxDepth > 15 {
		opts.MaxDepth = 15
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = d.MaxResults
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 1000
	}
	if opts.TimeoutMS <= 0 {
		opts.TimeoutMS = d.TimeoutMS
	}
	if opts.TimeoutMS <= 0 {
		opts.TimeoutMS = 30000
	}
	if opts.MaxCommunitySize <= 0 {
		opts.MaxCommunitySize = d.MaxCommunitySize
	}
	if opts.MaxCommunitySize <= 0 {
		opts.MaxCommunitySize = 500
	}
	if opts.MaxCyclesPerSCC <= 0 {
		opts.MaxCyclesPerSCC = d.MaxCyclesPerSCC
	}
	if opts.MaxCyclesPerSCC <= 0 {
		opts.MaxCyclesPerSCC = 10000
	}
	if opts.BloomCapacity == 0 {
		opts.BloomCapacity = d.BloomCapacity
	}
	if opts.BloomCapacity == 0 {
		opts.BloomCapacity = 1_000_000
	}
	if opts.BloomFPR <= 0 {
		opts.BloomFPR = d.BloomFPR
	}
	if opts.BloomFPR <= 0 {
		opts.BloomFPR = 0.001
	}
	if opts.ParallelWorkers <= 0 {
		opts.ParallelWorkers = d.ParallelWorkers
	}
	if opts.ParallelWorkers <= 0 {
		opts.ParallelWorkers = runtime.NumCPU()
	}
	return opts
}

// Discover runs a full discovery for tenantID: snapshot -> want-graph ->
// SCC -> community -> cycle enumeration -> dedup -> score -> rank -> trim.
// Newly found loops are merged into the tenant's loop cache so
// loops_for_wallet and active_loops reflect them immediately.
func (o *Orchestrator) Discover(ctx context.Context, tenantID string, opts models.DiscoveryOpts) (DiscoveryResult, error) {
	opts = fillDefaults(opts, o.defaults)
	t := o.registry.Get(tenantID)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(opts.TimeoutMS)*time.Millisecond)
	defer cancel()

	snap := t.Store.Snapshot()
	wantGraph := snap.BuildWantGraph()

	// A fresh discovery uses its own Bloom+exact gate sized per the
	// request's opts, separate from the Delta Engine's long-lived
	// tenant-wide gate.
	dedup := bloomdedup.New(opts.BloomCapacity, opts.BloomFPR)

	loops, meta := pipeline.Run(ctx, snap, wantGraph, nil, dedup, opts, o.weights)
	meta.RunID = uuid.New().String()

	t.Delta.Cache().Merge(loops)

	return DiscoveryResult{Loops: loops, Metadata: meta}, nil
}

// LoopsForWallet returns every loop in the tenant's cache involving
// walletID.
func (o *Orchestrator) LoopsForWallet(tenantID string, walletID models.WalletID) []*models.TradeLoop {
	t := o.registry.Get(tenantID)
	return t.Delta.Cache().ForWallet(walletID)
}

// ActiveLoops returns every non-terminal loop in the tenant's cache.
func (o *Orchestrator) ActiveLoops(tenantID string) []*models.TradeLoop {
	t := o.registry.Get(tenantID)
	return t.Delta.Cache().Active()
}

// --- Ingest API ---

// AddNFT assigns item to wallet's ownership and synchronously recomputes
// the affected neighborhood, returning any newly enabled loops.
func (o *Orchestrator) AddNFT(ctx context.Context, tenantID string, walletID models.WalletID, itemID models.ItemID) ([]*models.TradeLoop, error) {
	t := o.registry.Get(tenantID)
	if err := t.Store.AddOwned(walletID, itemID); err != nil {
		return nil, fmt.Errorf("add_nft: %w", err)
	}
	result := t.Delta.ProcessBatch(ctx, []models.DeltaEvent{{Kind: models.DeltaNFTAdded, TenantID: tenantID, Wallet: walletID, Item: itemID}})
	return result.Added, nil
}

// RemoveNFT removes item from wallet's ownership, invalidating any loop
// that depended on it.
func (o *Orchestrator) RemoveNFT(ctx context.Context, tenantID string, walletID models.WalletID, itemID models.ItemID) ([]*models.TradeLoop, error) {
	t := o.registry.Get(tenantID)
	if err := t.Store.RemoveOwned(walletID, itemID); err != nil {
		return nil, fmt.Errorf("remove_nft: %w", err)
	}
	result := t.Delta.ProcessBatch(ctx, []models.DeltaEvent{{Kind: models.DeltaNFTRemoved, TenantID: tenantID, Wallet: walletID, Item: itemID}})
	return result.Removed, nil
}

// AddWant records wallet's desire for item and returns any newly enabled
// loops.
func (o *Orchestrator) AddWant(ctx context.Context, tenantID string, walletID models.WalletID, itemID models.ItemID) ([]*models.TradeLoop, error) {
	t := o.registry.Get(tenantID)
	if err := t.Store.AddWant(walletID, itemID); err != nil {
		return nil, fmt.Errorf("add_want: %w", err)
	}
	result := t.Delta.ProcessBatch(ctx, []models.DeltaEvent{{Kind: models.DeltaWantAdded, TenantID: tenantID, Wallet: walletID, Item: itemID}})
	return result.Added, nil
}

// RemoveWant withdraws wallet's desire for item, invalidating any loop
// that depended on it.
func (o *Orchestrator) RemoveWant(ctx context.Context, tenantID string, walletID models.WalletID, itemID models.ItemID) ([]*models.TradeLoop, error) {
	t := o.registry.Get(tenantID)
	if err := t.Store.RemoveWant(walletID, itemID); err != nil {
		return nil, fmt.Errorf("remove_want: %w", err)
	}
	result := t.Delta.ProcessBatch(ctx, []models.DeltaEvent{{Kind: models.DeltaWantRemoved, TenantID: tenantID, Wallet: walletID, Item: itemID}})
	return result.Removed, nil
}

// AddRejection records a rejection and invalidates any cached loop that
// now crosses it (rejections suppress future enumeration but an already
// cached loop built before the rejection must also be dropped).
func (o *Orchestrator) AddRejection(ctx context.Context, tenantID string, walletID models.WalletID, kind models.RejectionKind, target string) error {
	t := o.registry.Get(tenantID)
	if err := t.Store.Reject(walletID, kind, target); err != nil {
		return err
	}
	t.Delta.ProcessBatch(ctx, []models.DeltaEvent{{Kind: models.DeltaWantRemoved, TenantID: tenantID, Wallet: walletID}})
	return nil
}

// --- Lifecycle API ---

func (o *Orchestrator) transition(tenantID, loopID string, next models.LoopStatus) (*models.TradeLoop, error) {
	t := o.registry.Get(tenantID)
	return t.Delta.Cache().SetStatus(loopID, next)
}

func (o *Orchestrator) MarkApproved(tenantID, loopID string) (*models.TradeLoop, error) {
	return o.transition(tenantID, loopID, models.StatusApproved)
}

func (o *Orchestrator) MarkExecuting(tenantID, loopID string) (*models.TradeLoop, error) {
	return o.transition(tenantID, loopID, models.StatusExecuting)
}

func (o *Orchestrator) MarkCompleted(tenantID, loopID string) (*models.TradeLoop, error) {
	return o.transition(tenantID, loopID, models.StatusCompleted)
}

func (o *Orchestrator) Cancel(tenantID, loopID, reason string) (*models.TradeLoop, error) {
	_ = reason // reason is not recorded: TradeLoop has no field for it and nothing logs it
	return o.transition(tenantID, loopID, models.StatusCancelled)
}
