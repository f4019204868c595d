// Package graphstore implements the per-tenant Graph Store: the
// authoritative maps of wallets, item ownership, and wants, supporting any
// number of concurrent readers with serialized writers via a sync.RWMutex
// so snapshot readers never block each other.
package graphstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Store owns all wallet and item records for one tenant. It is the
// exclusive writer of every field spec.md assigns to the Graph Store;
// discovery components only ever read a Snapshot.
type Store struct {
	mu sync.RWMutex

	wallets map[models.WalletID]*models.Wallet
	items   map[models.ItemID]*models.Item
	// wants is the inverse index: wants[item] = set of wallets desiring it.
	// Kept strictly consistent with every wallet's Wanted set (invariant I2).
	wants map[models.ItemID]map[models.WalletID]struct{}

	seq uint64

	// events, if non-nil, receives a DeltaEvent for every mutation. The
	// Delta Engine (internal/delta) is the intended subscriber.
	events chan<- models.DeltaEvent

	tenantID string
}

// New creates an empty Store for tenantID. events may be nil if nobody is
// subscribed to deltas (e.g. a scratch store used only for tests).
func New(tenantID string, events chan<- models.DeltaEvent) *Store {
	return &Store{
		wallets:  make(map[models.WalletID]*models.Wallet),
		items:    make(map[models.ItemID]*models.Item),
		wants:    make(map[models.ItemID]map[models.WalletID]struct{}),
		events:   events,
		tenantID: tenantID,
	}
}

// nextSeq must be called with mu held for writing.
func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *Store) emit(kind models.DeltaKind, wallet models.WalletID, itemOrPeer models.ItemID, seq uint64) {
	if s.events == nil {
		return
	}
	s.events <- models.DeltaEvent{
		Seq:      seq,
		Kind:     kind,
		TenantID: s.tenantID,
		Wallet:   wallet,
		Item:     itemOrPeer,
	}
}

// UpsertWallet is idempotent: it creates an empty record if absent, and is
// a no-op otherwise.
func (s *Store) UpsertWallet(id models.WalletID) *models.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertWalletLocked(id)
}

func (s *Store) upsertWalletLocked(id models.WalletID) *models.Wallet {
	w, ok := s.wallets[id]
	if !ok {
		w = models.NewWallet(id)
		s.wallets[id] = w
	}
	return w
}

// GetWallet returns the wallet record or models.ErrUnknownWallet.
func (s *Store) GetWallet(id models.WalletID) (*models.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownWallet, id)
	}
	return w, nil
}

// AddOwned assigns item to wallet. Fails with ErrOwnershipConflict if the
// item is currently owned by a different wallet (invariant I1). Adding an
// item a wallet already owns is idempotent.
func (s *Store) AddOwned(wallet models.WalletID, item models.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.items[item]
	if exists && existing.Owner != "" && existing.Owner != wallet {
		return fmt.Errorf("%w: item %s already owned by %s", models.ErrOwnershipConflict, item, existing.Owner)
	}

	w := s.upsertWalletLocked(wallet)
	w.Owned[item] = struct{}{}
	w.LastUpdated = time.Now()

	if !exists {
		s.items[item] = &models.Item{ID: item, Owner: wallet}
	} else {
		existing.Owner = wallet
	}

	// I3: a wallet cannot both own and want the same item. Normalize by
	// dropping it from wanted, on both sides of the inverse index.
	s.removeWantLocked(wallet, item)

	s.emit(models.DeltaNFTAdded, wallet, item, s.nextSeq())
	return nil
}

// RemoveOwned removes item from wallet's owned set and deletes the item's
// record. A no-op if wallet does not currently own item; fails with
// ErrUnknownWallet if wallet is not known.
func (s *Store) RemoveOwned(wallet models.WalletID, item models.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[wallet]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownWallet, wallet)
	}
	if _, owns := w.Owned[item]; !owns {
		return nil
	}

	delete(w.Owned, item)
	w.LastUpdated = time.Now()
	delete(s.items, item)

	s.emit(models.DeltaNFTRemoved, wallet, item, s.nextSeq())
	return nil
}

// AddWant records that wallet desires item, updating both sides of the
// inverse index atomically with respect to readers (the whole operation
// happens under the single write lock). Fails silently into a no-op if
// wallet already owns item: wanting what you own is normalized away
// rather than rejected.
func (s *Store) AddWant(wallet models.WalletID, item models.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.upsertWalletLocked(wallet)
	if _, owns := w.Owned[item]; owns {
		return nil
	}

	w.Wanted[item] = struct{}{}
	w.LastUpdated = time.Now()

	set, ok := s.wants[item]
	if !ok {
		set = make(map[models.WalletID]struct{})
		s.wants[item] = set
	}
	set[wallet] = struct{}{}

	s.emit(models.DeltaWantAdded, wallet, item, s.nextSeq())
	return nil
}

// RemoveWant is idempotent.
func (s *Store) RemoveWant(wallet models.WalletID, item models.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[wallet]; !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownWallet, wallet)
	}
	s.removeWantLocked(wallet, item)
	s.emit(models.DeltaWantRemoved, wallet, item, s.nextSeq())
	return nil
}

// removeWantLocked must be called with mu held for writing.
func (s *Store) removeWantLocked(wallet models.WalletID, item models.ItemID) {
	w, ok := s.wallets[wallet]
	if !ok {
		return
	}
	delete(w.Wanted, item)
	if set, ok := s.wants[item]; ok {
		delete(set, wallet)
		if len(set) == 0 {
			delete(s.wants, item)
		}
	}
}

// Reject adds target to wallet's rejection set. kind selects whether
// target is interpreted as an ItemID or a WalletID.
func (s *Store) Reject(wallet models.WalletID, kind models.RejectionKind, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.upsertWalletLocked(wallet)
	switch kind {
	case models.RejectItem:
		w.RejectedItems[models.ItemID(target)] = struct{}{}
	case models.RejectPeer:
		w.RejectedPeers[models.WalletID(target)] = struct{}{}
	}
	w.LastUpdated = time.Now()
	return nil
}

// Seq returns the current write sequence number, used by callers that need
// to correlate a snapshot with the deltas that produced it.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// WalletCount returns the number of known wallets.
func (s *Store) WalletCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wallets)
}
