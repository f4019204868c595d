package scoring

import (
	"math"
	"testing"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func approxEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCompute_TwoPartyLoopIsTriviallyFair(t *testing.T) {
	edges := []EdgeContext{
		{Items: []models.ItemID{"x"}, Values: []float64{10}, ValueKnown: []bool{true}, WantCounts: []int{1}},
		{Items: []models.ItemID{"y"}, Values: []float64{100}, ValueKnown: []bool{true}, WantCounts: []int{1}},
	}
	b := Compute(2, 10, edges)
	if b.FairnessScore != 1.0 || b.ValueEfficiencyScore != 1.0 {
		t.Errorf("expected a 2-party loop to skip fairness/value-efficiency penalties, got %+v", b)
	}
}

func TestCompute_MissingValueFallsBackToHeuristic(t *testing.T) {
	edges := []EdgeContext{
		{Items: []models.ItemID{"x"}, Values: []float64{10}, ValueKnown: []bool{true}, WantCounts: []int{1}},
		{Items: []models.ItemID{"y"}, ValueKnown: []bool{false}, WantCounts: []int{1}},
		{Items: []models.ItemID{"z"}, Values: []float64{5}, ValueKnown: []bool{true}, WantCounts: []int{1}},
	}
	b := Compute(3, 10, edges)
	if b.ValueProvenance != models.ValueHeuristic {
		t.Errorf("expected ValueHeuristic provenance when any item's value is unknown, got %v", b.ValueProvenance)
	}
	if b.FairnessScore != 1.0 {
		t.Errorf("expected equal-weight fairness fallback score of 1.0, got %f", b.FairnessScore)
	}
	if b.ValueEfficiencyScore != 1.0 {
		t.Errorf("expected value-efficiency to fall back to 1.0, got %f", b.ValueEfficiencyScore)
	}
}

func TestCompute_PerfectlyBalancedLoopScoresHighFairness(t *testing.T) {
	edges := []EdgeContext{
		{Items: []models.ItemID{"x"}, Values: []float64{10}, ValueKnown: []bool{true}, WantCounts: []int{1}},
		{Items: []models.ItemID{"y"}, Values: []float64{10}, ValueKnown: []bool{true}, WantCounts: []int{1}},
		{Items: []models.ItemID{"z"}, Values: []float64{10}, ValueKnown: []bool{true}, WantCounts: []int{1}},
	}
	b := Compute(3, 10, edges)
	if !approxEqual(b.FairnessScore, 1.0) {
		t.Errorf("expected fairness score of 1.0 for zero dispersion, got %f", b.FairnessScore)
	}
	if !approxEqual(b.ValueEfficiencyScore, 1.0) {
		t.Errorf("expected value-efficiency score of 1.0 for zero dispersion, got %f", b.ValueEfficiencyScore)
	}
}

func TestCompute_LopsidedLoopScoresLowerFairness(t *testing.T) {
	edges := []EdgeContext{
		{Items: []models.ItemID{"x"}, Values: []float64{1}, ValueKnown: []bool{true}, WantCounts: []int{1}},
		{Items: []models.ItemID{"y"}, Values: []float64{1000}, ValueKnown: []bool{true}, WantCounts: []int{1}},
		{Items: []models.ItemID{"z"}, Values: []float64{1}, ValueKnown: []bool{true}, WantCounts: []int{1}},
	}
	b := Compute(3, 10, edges)
	if b.FairnessScore >= 0.9 {
		t.Errorf("expected a heavily lopsided loop to score well below 0.9 fairness, got %f", b.FairnessScore)
	}
}

func TestLengthScore_PrefersShorterCycles(t *testing.T) {
	short := lengthScore(3, 10)
	long := lengthScore(9, 10)
	if short <= long {
		t.Errorf("expected shorter cycle to score higher: lengthScore(3,10)=%f <= lengthScore(9,10)=%f", short, long)
	}
}

func TestLengthScore_NeverNegative(t *testing.T) {
	if s := lengthScore(20, 5); s != 0 {
		t.Errorf("expected lengthScore to clamp at 0 for k far beyond maxDepth, got %f", s)
	}
}

func TestComposite_ClampsToUnitInterval(t *testing.T) {
	b := models.ScoreBreakdown{LengthScore: 2, FairnessScore: 2, DemandScore: 2, ValueEfficiencyScore: 2}
	if got := Composite(b, DefaultWeights); got != 1.0 {
		t.Errorf("expected Composite to clamp to 1.0, got %f", got)
	}
}

func TestDemandScore_ZeroWantsIsZero(t *testing.T) {
	edges := []EdgeContext{{Items: []models.ItemID{"x"}, WantCounts: []int{0}}}
	if s := demandScore(edges); s != 0 {
		t.Errorf("expected demandScore 0 for zero want-count, got %f", s)
	}
}

func TestDemandScore_MonotonicInWantCount(t *testing.T) {
	low := demandScore([]EdgeContext{{WantCounts: []int{1}}})
	high := demandScore([]EdgeContext{{WantCounts: []int{50}}})
	if high <= low {
		t.Errorf("expected demandScore to increase with want-count: low=%f high=%f", low, high)
	}
}
