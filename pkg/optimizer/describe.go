package optimizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

// pairTransfers matches departures to arrivals within each position, most
// expensive first on both sides.
func pairTransfers(out, in []types.Player) []types.TransferPair {
	byPrice := func(players []types.Player, pos types.Position) []types.Player {
		var group []types.Player
		for _, pl := range players {
			if pl.Position == pos {
				group = append(group, pl)
			}
		}
		sort.SliceStable(group, func(i, j int) bool {
			if !group[i].Price.Equal(group[j].Price) {
				return group[i].Price.GreaterThan(group[j].Price)
			}
			return group[i].ID < group[j].ID
		})
		return group
	}

	pairs := make([]types.TransferPair, 0, len(out))
	for _, pos := range types.AllPositions {
		outs, ins := byPrice(out, pos), byPrice(in, pos)
		for i := 0; i < len(outs) && i < len(ins); i++ {
			pairs = append(pairs, types.TransferPair{Out: outs[i], In: ins[i]})
		}
	}
	return pairs
}

func describeScenario(sc types.TransferScenario, numForced int) string {
	var head string
	switch sc.Strategy {
	case types.StrategyFixForced:
		head = fmt.Sprintf("Replace %d forced exit%s", numForced, plural(numForced))
	case types.StrategyFixPlusUpgrade:
		upgrades := sc.NumTransfers - numForced
		head = fmt.Sprintf("Replace %d forced exit%s plus %d upgrade%s", numForced, plural(numForced), upgrades, plural(upgrades))
	default:
		head = fmt.Sprintf("%d transfer%s", sc.NumTransfers, plural(sc.NumTransfers))
	}

	swaps := make([]string, len(sc.Transfers))
	for i, pair := range sc.Transfers {
		swaps[i] = fmt.Sprintf("%s → %s (%s)", pair.Out.DisplayName(), pair.In.DisplayName(), pair.In.Position)
	}
	desc := fmt.Sprintf("%s: %s. Net EV %+.2f", head, strings.Join(swaps, ", "), sc.NetEVGainAdjusted)
	if sc.TransferPenalty > 0 {
		desc += fmt.Sprintf(" after -%d hit penalty", sc.TransferPenalty)
	}
	return desc
}

func (p Policy) priorityFor(sc types.TransferScenario) types.Priority {
	switch {
	case sc.Strategy == types.StrategyFixForced:
		return types.PriorityUrgent
	case sc.Strategy == types.StrategyFixPlusUpgrade:
		return types.PriorityHigh
	case sc.NetEVGainAdjusted >= p.HighPriorityGain:
		return types.PriorityHigh
	case sc.NetEVGainAdjusted >= p.MediumPriorityGain:
		return types.PriorityMedium
	}
	return types.PriorityLow
}

func hitReason(sc types.TransferScenario, bestZeroHit float64) string {
	return fmt.Sprintf("%d hit%s (-%d) still nets %+.2f, %.2f above the best free option (%+.2f)",
		sc.PenaltyHits, plural(sc.PenaltyHits), sc.TransferPenalty,
		sc.NetEVGainAdjusted, sc.NetEVGainAdjusted-bestZeroHit, bestZeroHit)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
