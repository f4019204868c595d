// Package scoring computes the composite quality score for a candidate
// trade loop: a weighted composite over several independent signal
// components, each retained for diagnostics rather than collapsed
// straight to a single number.
package scoring

import (
	"math"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// Weights are the coefficients of the composite score over length,
// fairness, demand, and value-efficiency. cycles.Enumerate and pipeline.Run
// take them as a parameter; the orchestrator and the Delta Engine both pass
// DefaultWeights, and no configuration option or DiscoveryOpts field sets
// them.
type Weights struct {
	Length          float64
	Fairness        float64
	Demand          float64
	ValueEfficiency float64
}

// DefaultWeights gives length and fairness equal top billing, with demand
// and value-efficiency as secondary tiebreakers.
var DefaultWeights = Weights{Length: 0.30, Fairness: 0.30, Demand: 0.20, ValueEfficiency: 0.20}

// EdgeContext carries the per-step facts scoring needs: the items traded
// on that step, their values (if known), and how many distinct wallets
// want each item (for the demand component).
type EdgeContext struct {
	Items       []models.ItemID
	Values      []float64 // parallel to Items; 0 if ValueKnown[i] is false
	ValueKnown  []bool
	WantCounts  []int // parallel to Items; aggregate want-count per item
}

// Compute returns the score breakdown for a loop of length k with the
// given per-edge contexts, using maxDepth as the normalization bound for
// the length component. Call Composite on the result to get the final
// weighted quality score.
func Compute(k, maxDepth int, edges []EdgeContext) models.ScoreBreakdown {
	length := lengthScore(k, maxDepth)
	demand := demandScore(edges)

	// Two-party cycles are trivially balanced by definition of a single
	// direct swap: fairness and value-efficiency penalties are skipped.
	if k == 2 {
		return models.ScoreBreakdown{
			LengthScore:          length,
			FairnessScore:        1.0,
			DemandScore:          demand,
			ValueEfficiencyScore: 1.0,
			ValueProvenance:      models.ValueOracle,
		}
	}

	fairness, provenance := fairnessScore(edges)
	valueEff, hasValueEff := valueEfficiencyScore(edges)
	if !hasValueEff {
		valueEff = 1.0
		provenance = models.ValueHeuristic
	}

	return models.ScoreBreakdown{
		LengthScore:          length,
		FairnessScore:        fairness,
		DemandScore:          demand,
		ValueEfficiencyScore: valueEff,
		ValueProvenance:      provenance,
	}
}

// Composite applies w to a breakdown's components and clamps the result to
// [0,1], producing the final TradeLoop.QualityScore.
func Composite(b models.ScoreBreakdown, w Weights) float64 {
	v := w.Length*b.LengthScore + w.Fairness*b.FairnessScore + w.Demand*b.DemandScore + w.ValueEfficiency*b.ValueEfficiencyScore
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// lengthScore prefers shorter cycles: 1 - (k-2)/max_depth.
func lengthScore(k, maxDepth int) float64 {
	if maxDepth <= 2 {
		return 1.0
	}
	s := 1.0 - float64(k-2)/float64(maxDepth)
	if s < 0 {
		return 0
	}
	return s
}

// fairnessScore penalizes dispersion in per-step traded value using the
// coefficient of variation (CV = stddev/mean). Within +/-10% CV the
// penalty is linear; above 10% it is doubled. Never negative.
func fairnessScore(edges []EdgeContext) (float64, models.ValueProvenance) {
	values := make([]float64, 0, len(edges))
	allKnown := true
	for _, e := range edges {
		stepValue := 0.0
		known := len(e.Items) > 0
		for i := range e.Items {
			if i < len(e.ValueKnown) && e.ValueKnown[i] {
				stepValue += e.Values[i]
			} else {
				known = false
			}
		}
		if !known {
			allKnown = false
		}
		values = append(values, stepValue)
	}

	provenance := models.ValueOracle
	if !allKnown || len(values) == 0 {
		// Missing estimated_value fallback: equal-weight fairness, where
		// every item counts as one unit so the CV runs over per-step item
		// counts, flagged heuristic provenance.
		for i, e := range edges {
			values[i] = float64(len(e.Items))
		}
		provenance = models.ValueHeuristic
	}

	cv := coefficientOfVariation(values)
	penalty := cv
	if cv > 0.10 {
		penalty = cv * 2
	}
	score := 1.0 - penalty
	if score < 0 {
		score = 0
	}
	return score, provenance
}

func coefficientOfVariation(values []float64) float64 {
	n := float64(len(values))
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= n
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= n
	return math.Sqrt(variance) / mean
}

// demandScore is a logarithmic function of aggregate want-counts of
// traded items, normalized into [0,1] via a saturating log curve.
func demandScore(edges []EdgeContext) float64 {
	total := 0
	count := 0
	for _, e := range edges {
		for _, c := range e.WantCounts {
			total += c
			count++
		}
	}
	if count == 0 {
		return 0
	}
	avg := float64(total) / float64(count)
	// log1p keeps demandScore(0) == 0 and saturates slowly as average
	// demand grows; divide by log1p(32) so an average of 32 wanters per
	// item maps to 1.0, and clamp01 caps higher averages at 1.0.
	return clamp01(math.Log1p(avg) / math.Log1p(32))
}

// valueEfficiencyScore is 1 - mean_edge_value_diff/mean_edge_value, where
// mean_edge_value_diff is the mean absolute deviation of per-step traded
// value from the overall mean. Returns hasValue=false when any edge lacks
// a fully-priced item set, leaving the caller to apply its own fallback.
func valueEfficiencyScore(edges []EdgeContext) (float64, bool) {
	values := make([]float64, 0, len(edges))
	for _, e := range edges {
		stepValue := 0.0
		for i := range e.Items {
			if i >= len(e.ValueKnown) || !e.ValueKnown[i] {
				return 0, false
			}
			stepValue += e.Values[i]
		}
		values = append(values, stepValue)
	}
	if len(values) == 0 {
		return 0, false
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean == 0 {
		return 1.0, true
	}
	diff := 0.0
	for _, v := range values {
		diff += math.Abs(v - mean)
	}
	diff /= float64(len(values))
	return clamp01(1.0 - diff/mean), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
