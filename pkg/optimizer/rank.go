package optimizer

import (
	"math"
	"sort"

	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

// RankScenarios deduplicates, sorts and applies the hit-profitability rule.
// The input slice is not modified.
func RankScenarios(scenarios []types.TransferScenario, hitCost int) []types.TransferScenario {
	ranked := DedupeScenarios(scenarios)
	sortByAdjustedGain(ranked)
	ranked = FilterUnprofitableHits(ranked, hitCost)
	sortByAdjustedGain(ranked)
	return ranked
}

// DedupeScenarios keeps the first scenario for every (transfer count,
// adjusted gain rounded to two decimals) pair.
func DedupeScenarios(scenarios []types.TransferScenario) []types.TransferScenario {
	type key struct {
		n   int
		adj float64
	}
	seen := make(map[key]bool, len(scenarios))
	unique := make([]types.TransferScenario, 0, len(scenarios))
	for _, sc := range scenarios {
		k := key{sc.NumTransfers, math.Round(sc.NetEVGainAdjusted*100) / 100}
		if seen[k] {
			continue
		}
		seen[k] = true
		unique = append(unique, sc)
	}
	return unique
}

// BestZeroHitGain is the best adjusted gain among scenarios without hits,
// or 0 when there are none.
func BestZeroHitGain(scenarios []types.TransferScenario) float64 {
	best, found := 0.0, false
	for _, sc := range scenarios {
		if sc.PenaltyHits == 0 && (!found || sc.NetEVGainAdjusted > best) {
			best, found = sc.NetEVGainAdjusted, true
		}
	}
	return best
}

// FilterUnprofitableHits drops scenarios that take hits without beating
// the best free option by at least one hit's cost. Kept hit scenarios get
// a HitReason.
func FilterUnprofitableHits(scenarios []types.TransferScenario, hitCost int) []types.TransferScenario {
	best := BestZeroHitGain(scenarios)
	kept := make([]types.TransferScenario, 0, len(scenarios))
	for _, sc := range scenarios {
		if sc.PenaltyHits > 0 {
			if sc.NetEVGainAdjusted < best+float64(hitCost) {
				continue
			}
			reason := hitReason(sc, best)
			sc.HitReason = &reason
		}
		kept = append(kept, sc)
	}
	return kept
}

func sortByAdjustedGain(scenarios []types.TransferScenario) {
	sort.SliceStable(scenarios, func(i, j int) bool {
		return scenarios[i].NetEVGainAdjusted > scenarios[j].NetEVGainAdjusted
	})
}
