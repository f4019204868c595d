package models

import "time"

// WalletID is the opaque tenant-scoped identifier a caller uses to refer to
// a wallet. The graph store and the want-graph key wallets by WalletID
// directly; no compact integer ids are assigned.
type WalletID string

// ItemID is the opaque tenant-scoped identifier for a uniquely-owned asset.
type ItemID string

// CollectionID groups items for display/grouping purposes. It plays no role
// in discovery.
type CollectionID string

// RejectionKind distinguishes the two things a wallet can reject: a
// specific item it refuses to receive, or a peer it refuses to trade with.
type RejectionKind int

const (
	RejectItem RejectionKind = iota
	RejectPeer
)

// Wallet is a participant holding items and stating desires. Owned and
// wanted are kept disjoint by convention: an item present in Owned is
// normalized out of Wanted on write (see graphstore.Store.AddOwned).
type Wallet struct {
	ID            WalletID
	Owned         map[ItemID]struct{}
	Wanted        map[ItemID]struct{}
	RejectedItems map[ItemID]struct{}
	RejectedPeers map[WalletID]struct{}
	LastUpdated   time.Time
}

// NewWallet returns an empty wallet record, ready for mutation.
func NewWallet(id WalletID) *Wallet {
	return &Wallet{
		ID:            id,
		Owned:         make(map[ItemID]struct{}),
		Wanted:        make(map[ItemID]struct{}),
		RejectedItems: make(map[ItemID]struct{}),
		RejectedPeers: make(map[WalletID]struct{}),
	}
}

// Clone returns a deep copy of w, used when handing out a read-only
// snapshot so a concurrent writer can never observe readers' mutations.
func (w *Wallet) Clone() *Wallet {
	c := &Wallet{
		ID:            w.ID,
		Owned:         make(map[ItemID]struct{}, len(w.Owned)),
		Wanted:        make(map[ItemID]struct{}, len(w.Wanted)),
		RejectedItems: make(map[ItemID]struct{}, len(w.RejectedItems)),
		RejectedPeers: make(map[WalletID]struct{}, len(w.RejectedPeers)),
		LastUpdated:   w.LastUpdated,
	}
	for k := range w.Owned {
		c.Owned[k] = struct{}{}
	}
	for k := range w.Wanted {
		c.Wanted[k] = struct{}{}
	}
	for k := range w.RejectedItems {
		c.RejectedItems[k] = struct{}{}
	}
	for k := range w.RejectedPeers {
		c.RejectedPeers[k] = struct{}{}
	}
	return c
}

// ValueProvenance flags whether an item's estimated value came from a
// pricing oracle or a heuristic fallback. scoring.Compute uses the same
// type on ScoreBreakdown to flag when it fell back to the heuristic; it
// decides that from Item.ValueKnown and does not read Item.Provenance.
type ValueProvenance int

const (
	ValueUnknown ValueProvenance = iota
	ValueOracle
	ValueHeuristic
)

// Item is a uniquely-owned asset. Owner is authoritative; the graph store
// is the only writer of Owner and enforces single ownership (invariant I1).
type Item struct {
	ID             ItemID
	Owner          WalletID
	Collection     CollectionID
	EstimatedValue float64
	ValueKnown     bool
	Provenance     ValueProvenance
}
