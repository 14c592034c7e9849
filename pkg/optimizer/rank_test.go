package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/fpl-transfers/pkg/types"
)

func scenario(n, hits int, adj float64, strategy types.Strategy) types.TransferScenario {
	return types.TransferScenario{
		NumTransfers:      n,
		PenaltyHits:       hits,
		TransferPenalty:   hits * 4,
		NetEVGain:         adj + float64(hits*4),
		NetEVGainAdjusted: adj,
		Strategy:          strategy,
	}
}

func TestRankScenarios_HitFilter(t *testing.T) {
	free := scenario(1, 0, 1.0, types.StrategyOptimize)
	hit := scenario(2, 1, 2.0, types.StrategyOptimize)

	ranked := RankScenarios([]types.TransferScenario{hit, free}, 4)

	require.Len(t, ranked, 1)
	assert.Equal(t, 1, ranked[0].NumTransfers)
	assert.Nil(t, ranked[0].HitReason)
}

func TestRankScenarios_ProfitableHitKept(t *testing.T) {
	free := scenario(1, 0, 1.0, types.StrategyOptimize)
	hit := scenario(2, 1, 5.0, types.StrategyOptimize)

	ranked := RankScenarios([]types.TransferScenario{free, hit}, 4)

	require.Len(t, ranked, 2)
	assert.Equal(t, 2, ranked[0].NumTransfers, "sorted by adjusted gain")
	require.NotNil(t, ranked[0].HitReason)
	assert.Contains(t, *ranked[0].HitReason, "1 hit (-4)")
	assert.Nil(t, ranked[1].HitReason)
}

func TestRankScenarios_NoZeroHitBaseline(t *testing.T) {
	// Without a free option the baseline is 0, so a hit must return its cost.
	ranked := RankScenarios([]types.TransferScenario{
		scenario(2, 1, 3.9, types.StrategyFixForced),
		scenario(3, 2, 4.0, types.StrategyFixPlusUpgrade),
	}, 4)

	require.Len(t, ranked, 1)
	assert.Equal(t, 3, ranked[0].NumTransfers)
}

func TestRankScenarios_OrderAndDedupe(t *testing.T) {
	input := []types.TransferScenario{
		scenario(1, 0, 1.004, types.StrategyFixForced),
		scenario(1, 0, 1.001, types.StrategyOptimize),
		scenario(2, 0, 3.0, types.StrategyOptimize),
		scenario(2, 0, 0.5, types.StrategyOptimize),
		scenario(3, 0, 3.0, types.StrategyOptimize),
	}

	ranked := RankScenarios(input, 4)

	require.Len(t, ranked, 4)
	assert.Equal(t, types.StrategyFixForced, ranked[2].Strategy, "first of the duplicate pair survives")
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].NetEVGainAdjusted, ranked[i].NetEVGainAdjusted)
	}
	// equal gains keep generation order
	assert.Equal(t, 2, ranked[0].NumTransfers)
	assert.Equal(t, 3, ranked[1].NumTransfers)
	assert.Len(t, input, 5, "input must not change")
}

func TestBestZeroHitGain(t *testing.T) {
	assert.Equal(t, 0.0, BestZeroHitGain(nil))
	assert.Equal(t, -1.5, BestZeroHitGain([]types.TransferScenario{
		scenario(1, 0, -2, types.StrategyOptimize),
		scenario(1, 0, -1.5, types.StrategyFixForced),
		scenario(2, 1, 9, types.StrategyOptimize),
	}))
}

func TestPairTransfers(t *testing.T) {
	out := []types.Player{
		mkPlayer(3, types.PositionDEF, 1, "4.5", 1),
		mkPlayer(13, types.PositionFWD, 1, "8.0", 1),
		mkPlayer(4, types.PositionDEF, 1, "6.0", 1),
	}
	in := []types.Player{
		mkPlayer(110, types.PositionFWD, 9, "7.5", 1),
		mkPlayer(104, types.PositionDEF, 9, "4.5", 1),
		mkPlayer(105, types.PositionDEF, 2, "6.0", 1),
	}

	pairs := pairTransfers(out, in)

	require.Len(t, pairs, 3)
	assert.Equal(t, [2]int{4, 105}, [2]int{pairs[0].Out.ID, pairs[0].In.ID})
	assert.Equal(t, [2]int{3, 104}, [2]int{pairs[1].Out.ID, pairs[1].In.ID})
	assert.Equal(t, [2]int{13, 110}, [2]int{pairs[2].Out.ID, pairs[2].In.ID})
}

func TestPriorityAndDescription(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		strategy types.Strategy
		adj      float64
		want     types.Priority
	}{
		{types.StrategyFixForced, -3, types.PriorityUrgent},
		{types.StrategyFixPlusUpgrade, 0.6, types.PriorityHigh},
		{types.StrategyOptimize, 4.2, types.PriorityHigh},
		{types.StrategyOptimize, 2.0, types.PriorityMedium},
		{types.StrategyOptimize, 0.9, types.PriorityLow},
	}
	for _, tt := range tests {
		sc := scenario(1, 0, tt.adj, tt.strategy)
		assert.Equal(t, tt.want, policy.priorityFor(sc), "%s %.1f", tt.strategy, tt.adj)
	}

	squad := types.IndexByID(testSquad())
	pool := types.IndexByID(testPool())
	sc := policy.newScenario(types.StrategyFixPlusUpgrade, 2, 1,
		[]types.Player{squad[12], squad[15]}, []types.Player{pool[108], pool[110]})

	desc := describeScenario(sc, 1)
	assert.Contains(t, desc, "Replace 1 forced exit plus 1 upgrade")
	assert.Contains(t, desc, "P12 → P108 (MID)")
	assert.Contains(t, desc, "P15 → P110 (FWD)")
	assert.Contains(t, desc, "after -4 hit penalty")
}
