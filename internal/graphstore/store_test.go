package graphstore

import (
	"errors"
	"testing"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func TestAddOwned_ConflictingOwnerRejected(t *testing.T) {
	s := New("t1", nil)
	if err := s.AddOwned("alice", "item1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.AddOwned("bob", "item1")
	if !errors.Is(err, models.ErrOwnershipConflict) {
		t.Errorf("expected ErrOwnershipConflict, got %v", err)
	}
}

func TestAddOwned_IdempotentForSameOwner(t *testing.T) {
	s := New("t1", nil)
	if err := s.AddOwned("alice", "item1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddOwned("alice", "item1"); err != nil {
		t.Errorf("re-adding the same owner should be a no-op, got error: %v", err)
	}
}

func TestAddOwned_RemovesConflictingWant(t *testing.T) {
	// Invariant I3: a wallet cannot both own and want the same item.
	s := New("t1", nil)
	if err := s.AddWant("alice", "item1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddOwned("alice", "item1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, err := s.GetWallet("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, wants := w.Wanted["item1"]; wants {
		t.Error("expected owning an item to clear any prior want for the same item")
	}
}

func TestAddWant_NoOpWhenAlreadyOwned(t *testing.T) {
	s := New("t1", nil)
	if err := s.AddOwned("alice", "item1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddWant("alice", "item1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, _ := s.GetWallet("alice")
	if _, wants := w.Wanted["item1"]; wants {
		t.Error("wanting an item you already own should remain a no-op")
	}
}

func TestGetWallet_UnknownReturnsSentinelError(t *testing.T) {
	s := New("t1", nil)
	_, err := s.GetWallet("ghost")
	if !errors.Is(err, models.ErrUnknownWallet) {
		t.Errorf("expected ErrUnknownWallet, got %v", err)
	}
}

func TestRemoveOwned_ClearsItemRecord(t *testing.T) {
	s := New("t1", nil)
	_ = s.AddOwned("alice", "item1")
	if err := s.RemoveOwned("alice", "item1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := s.Snapshot()
	if _, exists := snap.Items["item1"]; exists {
		t.Error("expected item record to be removed after RemoveOwned")
	}
}

func TestBuildWantGraph_ExcludesRejectedItemEdge(t *testing.T) {
	s := New("t1", nil)
	_ = s.AddOwned("bob", "item1")
	_ = s.AddWant("alice", "item1")
	_ = s.Reject("alice", models.RejectItem, "item1")

	wg := s.Snapshot().BuildWantGraph()
	for _, v := range wg.Adj["alice"] {
		if v == "bob" {
			t.Error("expected the want-graph to exclude an edge the wallet rejected by item")
		}
	}
}

func TestBuildWantGraph_ExcludesRejectedPeerEdge(t *testing.T) {
	s := New("t1", nil)
	_ = s.AddOwned("bob", "item1")
	_ = s.AddWant("alice", "item1")
	_ = s.Reject("alice", models.RejectPeer, "bob")

	wg := s.Snapshot().BuildWantGraph()
	for _, v := range wg.Adj["alice"] {
		if v == "bob" {
			t.Error("expected the want-graph to exclude an edge the wallet rejected by peer")
		}
	}
}

func TestBuildWantGraph_FormsEdgeFromWantToOwner(t *testing.T) {
	s := New("t1", nil)
	_ = s.AddOwned("bob", "item1")
	_ = s.AddWant("alice", "item1")

	wg := s.Snapshot().BuildWantGraph()
	found := false
	for _, v := range wg.Adj["alice"] {
		if v == "bob" {
			found = true
		}
	}
	if !found {
		t.Error("expected an edge alice -> bob since alice wants bob's item")
	}
}

func TestNeighbors_RespectsRadius(t *testing.T) {
	wg := &WantGraph{Adj: map[models.WalletID][]models.WalletID{
		"A": {"B"},
		"B": {"C"},
		"C": {"D"},
	}, Wallets: []models.WalletID{"A", "B", "C", "D"}}

	one := wg.Neighbors([]models.WalletID{"A"}, 1)
	if !one["A"] || !one["B"] || one["C"] || one["D"] {
		t.Errorf("expected radius-1 neighbors {A,B}, got %v", one)
	}

	two := wg.Neighbors([]models.WalletID{"A"}, 2)
	if !two["C"] || two["D"] {
		t.Errorf("expected radius-2 neighbors to include C but not D, got %v", two)
	}
}

func TestInduced_DropsEdgesLeavingMemberSet(t *testing.T) {
	wg := &WantGraph{Adj: map[models.WalletID][]models.WalletID{
		"A": {"B", "C"},
		"B": {"A"},
	}}
	sub := wg.Induced([]models.WalletID{"A", "B"})
	for _, v := range sub.Adj["A"] {
		if v == "C" {
			t.Error("expected Induced to drop edges to wallets outside the member set")
		}
	}
}
