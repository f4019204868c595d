package tenant

import (
	"sync"
	"testing"
	"time"
)

func TestGet_ReturnsSameTenantOnRepeatedAccess(t *testing.T) {
	r := New(10, time.Hour, nil)
	a := r.Get("t1")
	b := r.Get("t1")
	if a != b {
		t.Error("expected repeated Get calls for the same tenant id to return the same instance")
	}
}

func TestGet_DistinctTenantsAreIsolated(t *testing.T) {
	r := New(10, time.Hour, nil)
	a := r.Get("t1")
	b := r.Get("t2")
	if a == b {
		t.Fatal("expected distinct tenant ids to get distinct Tenant instances")
	}
	_ = a.Store.AddOwned("alice", "item1")
	if _, err := b.Store.GetWallet("alice"); err == nil {
		t.Error("expected tenant t2's store to be unaffected by a mutation on tenant t1")
	}
}

func TestNew_CapacityEvictionInvokesOnEvict(t *testing.T) {
	var mu sync.Mutex
	evicted := make(map[string]bool)
	r := New(1, time.Hour, func(tn *Tenant) {
		mu.Lock()
		evicted[tn.ID] = true
		mu.Unlock()
	})

	r.Get("t1")
	r.Get("t2") // exceeds capacity of 1, should evict t1

	mu.Lock()
	defer mu.Unlock()
	if !evicted["t1"] {
		t.Error("expected t1 to be evicted once capacity was exceeded")
	}
}

func TestDrain_EvictsEveryTenant(t *testing.T) {
	var mu sync.Mutex
	count := 0
	r := New(10, time.Hour, func(*Tenant) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	r.Get("t1")
	r.Get("t2")
	r.Drain()

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("expected Drain to evict 2 tenants, got %d", count)
	}
	if r.Len() != 0 {
		t.Errorf("expected registry to be empty after Drain, got %d resident", r.Len())
	}
}
