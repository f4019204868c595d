package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenant1.snap")

	wallets := map[models.WalletID]*models.Wallet{
		"alice": {
			ID:            "alice",
			Owned:         map[models.ItemID]struct{}{"item1": {}},
			Wanted:        map[models.ItemID]struct{}{"item2": {}},
			RejectedItems: map[models.ItemID]struct{}{"item3": {}},
			RejectedPeers: map[models.WalletID]struct{}{"bob": {}},
		},
		"bob": {
			ID:            "bob",
			Owned:         map[models.ItemID]struct{}{"item2": {}},
			Wanted:        map[models.ItemID]struct{}{},
			RejectedItems: map[models.ItemID]struct{}{},
			RejectedPeers: map[models.WalletID]struct{}{},
		},
	}
	items := map[models.ItemID]*models.Item{
		"item1": {ID: "item1", Owner: "alice", EstimatedValue: 10, ValueKnown: true, Provenance: models.ValueOracle},
		"item2": {ID: "item2", Owner: "bob"},
	}

	if err := WriteSnapshot(path, "tenant1", wallets, items); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}

	if got.TenantID != "tenant1" {
		t.Errorf("expected tenant id 'tenant1', got %q", got.TenantID)
	}
	if len(got.Wallets) != 2 || len(got.Items) != 2 {
		t.Fatalf("expected 2 wallets and 2 items, got %d wallets, %d items", len(got.Wallets), len(got.Items))
	}

	alice, ok := got.Wallets["alice"]
	if !ok {
		t.Fatal("expected wallet 'alice' to round-trip")
	}
	if _, owns := alice.Owned["item1"]; !owns {
		t.Error("expected alice.Owned to contain item1 after round-trip")
	}
	if _, wants := alice.Wanted["item2"]; !wants {
		t.Error("expected alice.Wanted to contain item2 after round-trip")
	}
	if _, rejected := alice.RejectedPeers["bob"]; !rejected {
		t.Error("expected alice.RejectedPeers to contain bob after round-trip")
	}

	item1, ok := got.Items["item1"]
	if !ok || item1.EstimatedValue != 10 || !item1.ValueKnown || item1.Provenance != models.ValueOracle {
		t.Errorf("item1 did not round-trip correctly: %+v", item1)
	}
}

func TestReadSnapshot_BadMagicIsSnapshotInconsistency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.snap")
	if err := WriteSnapshot(path, "t", nil, nil); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	// Corrupt the first byte of the magic number.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed reading back test fixture: %v", err)
	}
	data[0] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed rewriting corrupted fixture: %v", err)
	}

	_, err = ReadSnapshot(path)
	if !errors.Is(err, models.ErrSnapshotInconsistency) {
		t.Errorf("expected ErrSnapshotInconsistency for a corrupted magic number, got %v", err)
	}
}
