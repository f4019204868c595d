package canon

import (
	"testing"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func steps(pairs ...string) []models.TradeStep {
	// each pair is "from>to", one item named "item-<from><to>"
	out := make([]models.TradeStep, len(pairs))
	for i, p := range pairs {
		from, to := models.WalletID(p[:1]), models.WalletID(p[2:3])
		out[i] = models.TradeStep{From: from, To: to, Items: []models.ItemID{models.ItemID("item-" + p[:1] + p[2:3])}}
	}
	return out
}

func TestCanonicalize_RotationInvariant(t *testing.T) {
	cycle := steps("A>B", "B>C", "C>A")
	rotated := steps("B>C", "C>A", "A>B")

	if got, want := Canonicalize(cycle), Canonicalize(rotated); got != want {
		t.Errorf("rotation changed canonical id: %q != %q", got, want)
	}
}

func TestCanonicalize_ReversalInvariant(t *testing.T) {
	cycle := steps("A>B", "B>C", "C>A")
	// The reverse walks the same edges backwards, each edge keeping the item
	// it carried in the forward direction.
	reversed := []models.TradeStep{
		{From: "A", To: "C", Items: []models.ItemID{"item-CA"}},
		{From: "C", To: "B", Items: []models.ItemID{"item-BC"}},
		{From: "B", To: "A", Items: []models.ItemID{"item-AB"}},
	}

	if got, want := Canonicalize(cycle), Canonicalize(reversed); got != want {
		t.Errorf("reversal changed canonical id: %q != %q", got, want)
	}
}

func TestCanonicalize_DistinctCyclesDiffer(t *testing.T) {
	a := Canonicalize(steps("A>B", "B>C", "C>A"))
	b := Canonicalize(steps("A>B", "B>D", "D>A"))
	if a == b {
		t.Errorf("distinct cycles produced the same canonical id: %q", a)
	}
}

func TestCanonicalize_ItemOrderWithinEdgeDoesNotMatter(t *testing.T) {
	s1 := []models.TradeStep{
		{From: "A", To: "B", Items: []models.ItemID{"x", "y"}},
		{From: "B", To: "A", Items: []models.ItemID{"z"}},
	}
	s2 := []models.TradeStep{
		{From: "A", To: "B", Items: []models.ItemID{"y", "x"}},
		{From: "B", To: "A", Items: []models.ItemID{"z"}},
	}
	if got, want := Canonicalize(s1), Canonicalize(s2); got != want {
		t.Errorf("item order within an edge changed canonical id: %q != %q", got, want)
	}
}

func TestCanonicalize_DifferentItemsOnSameEdgesDiffer(t *testing.T) {
	s1 := []models.TradeStep{{From: "A", To: "B", Items: []models.ItemID{"x"}}}
	s2 := []models.TradeStep{{From: "A", To: "B", Items: []models.ItemID{"w"}}}
	if Canonicalize(s1) == Canonicalize(s2) {
		t.Error("different item assignments on identical wallet edges canonicalized the same")
	}
}

func TestCanonicalize_Empty(t *testing.T) {
	if got := Canonicalize(nil); got != "" {
		t.Errorf("expected empty canonical id for empty cycle, got %q", got)
	}
}
