package milp

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terms(vars []int, coeffs ...float64) []Term {
	out := make([]Term, len(vars))
	for i, v := range vars {
		out[i] = Term{Var: v, Coeff: coeffs[i]}
	}
	return out
}

func TestSolve_Knapsack(t *testing.T) {
	m := NewModel()
	a, b, c := m.AddBinary("a"), m.AddBinary("b"), m.AddBinary("c")
	vars := []int{a, b, c}
	m.AddConstraint("weight", terms(vars, 3, 4, 2), LessEqual, 6)
	m.SetObjective(terms(vars, 10, 13, 7), 0, true)

	sol := Solve(context.Background(), m, Options{})
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 20, sol.Objective, 1e-9)
	assert.Equal(t, []float64{0, 1, 1}, sol.Values)
}

func TestSolve_BranchesOnFractionalRelaxation(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b"), m.AddBinary("c")}
	m.AddConstraint("r1", terms(vars, 2, 3, 1), LessEqual, 5)
	m.AddConstraint("r2", terms(vars, 4, 1, 2), LessEqual, 11)
	m.AddConstraint("r3", terms(vars, 3, 4, 2), LessEqual, 8)
	m.SetObjective(terms(vars, 5, 4, 3), 0, true)

	sol := Solve(context.Background(), m, Options{})
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 9, sol.Objective, 1e-9)
	assert.Equal(t, []float64{1, 1, 0}, sol.Values)
	assert.GreaterOrEqual(t, sol.Stats.Nodes, 1)
}

func TestSolve_Minimize(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b")}
	m.AddConstraint("cover", terms(vars, 1, 1), GreaterEqual, 1)
	m.SetObjective(terms(vars, 3, 2), 1, false)

	sol := Solve(context.Background(), m, Options{})
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 3, sol.Objective, 1e-9)
	assert.Equal(t, []float64{0, 1}, sol.Values)
}

func TestSolve_Infeasible(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b"), m.AddBinary("c")}
	m.AddConstraint("too_many", terms(vars, 1, 1, 1), Equal, 2)
	m.AddConstraint("too_few", terms(vars, 1, 1, 1), LessEqual, 1)
	m.SetObjective(terms(vars, 1, 1, 1), 0, true)

	sol := Solve(context.Background(), m, Options{})
	assert.Equal(t, StatusInfeasible, sol.Status)
	assert.Nil(t, sol.Values)
}

func TestSolve_InfeasibleInPresolve(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b")}
	m.AddConstraint("impossible", terms(vars, 1, 1), Equal, 3)

	sol := Solve(context.Background(), m, Options{})
	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestSolve_DependentEqualities(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b"), m.AddBinary("c"), m.AddBinary("d")}
	m.AddConstraint("pick_two", terms(vars, 1, 1, 1, 1), Equal, 2)
	m.AddConstraint("pick_two_again", terms(vars, 1, 1, 1, 1), Equal, 2)
	m.AddConstraint("scaled", terms(vars, 2, 2, 2, 2), Equal, 4)
	m.SetObjective(terms(vars, 1, 2, 3, 4), 0, true)

	sol := Solve(context.Background(), m, Options{})
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 7, sol.Objective, 1e-9)
	assert.Equal(t, []float64{0, 0, 1, 1}, sol.Values)
}

func TestSolve_ComplementLinking(t *testing.T) {
	m := NewModel()
	keep := m.AddBinary("keep")
	sell := m.AddBinary("sell")
	buy := m.AddBinary("buy")
	owned := m.AddBinary("owned")
	m.AddConstraint("link_keep", terms([]int{keep, sell}, 1, 1), Equal, 1)
	m.AddConstraint("link_buy", terms([]int{owned, buy}, 1, -1), Equal, 0)
	m.AddConstraint("swap", terms([]int{sell, buy}, 1, -1), Equal, 0)
	m.SetObjective(terms([]int{keep, owned}, 2, 5), 0, true)

	sol := Solve(context.Background(), m, Options{})
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 5, sol.Objective, 1e-9)
	assert.Equal(t, []float64{0, 1, 1, 1}, sol.Values)
	assert.Equal(t, 1, sol.Stats.ReducedVars)
}

func TestSolve_SingletonFixes(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b")}
	m.AddConstraint("force_a", terms(vars[:1], 1), Equal, 1)
	m.AddConstraint("ban_b", terms(vars[1:], 3), LessEqual, 2)
	m.SetObjective(terms(vars, -1, 10), 0, true)

	sol := Solve(context.Background(), m, Options{})
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, []float64{1, 0}, sol.Values)
	assert.InDelta(t, -1, sol.Objective, 1e-9)
	assert.Equal(t, 0, sol.Stats.ReducedVars)
}

func TestSolve_ExpiredContext(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b")}
	m.AddConstraint("one", terms(vars, 1, 1), LessEqual, 1)
	m.SetObjective(terms(vars, 1, 2), 0, true)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	sol := Solve(ctx, m, Options{})
	assert.Equal(t, StatusTimeLimit, sol.Status)
	assert.Equal(t, "time_limit", sol.Status.String())
}

func TestSolve_Deterministic(t *testing.T) {
	build := func() *Model {
		m := NewModel()
		vars := make([]int, 6)
		for i := range vars {
			vars[i] = m.AddBinary("x")
		}
		m.AddConstraint("count", terms(vars, 1, 1, 1, 1, 1, 1), Equal, 3)
		m.AddConstraint("budget", terms(vars, 4.5, 5.0, 5.5, 6.0, 6.5, 7.0), LessEqual, 17)
		m.SetObjective(terms(vars, 3, 3, 4, 4, 5, 5), 0, true)
		return m
	}
	first := Solve(context.Background(), build(), Options{})
	second := Solve(context.Background(), build(), Options{})
	require.Equal(t, StatusOptimal, first.Status)
	assert.Equal(t, first.Values, second.Values)
	assert.InDelta(t, first.Objective, second.Objective, 1e-12)
	assert.Empty(t, build().Violated(first.Values, 1e-9))
}

func TestSolve_UnsolvedNodeIsNotOptimal(t *testing.T) {
	build := func() *Model {
		m := NewModel()
		vars := []int{m.AddBinary("a"), m.AddBinary("b"), m.AddBinary("c")}
		m.AddConstraint("weight", terms(vars, 3, 5, 2), LessEqual, 6)
		m.SetObjective(terms(vars, 10, 15, 7), 0, true)
		return m
	}

	sol := Solve(context.Background(), build(), Options{})
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, []float64{1, 0, 1}, sol.Values)
	assert.Zero(t, sol.Stats.NumericFailures)

	// Two pivots per relaxation is enough for the root and the b=0 branch,
	// which yields an incumbent, but not for the b=1 branch.
	sol = Solve(context.Background(), build(), Options{IterationLimit: 2})
	assert.Equal(t, StatusNumeric, sol.Status)
	assert.Equal(t, "numeric", sol.Status.String())
	assert.Equal(t, 1, sol.Stats.NumericFailures)
	assert.Equal(t, []float64{1, 0, 1}, sol.Values)
}

func TestSolve_NumericWithoutIncumbent(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b"), m.AddBinary("c")}
	m.AddConstraint("one", terms(vars, 1, 1, 1), Equal, 1)
	m.SetObjective(terms(vars, 1, 2, 3), 0, true)

	sol := Solve(context.Background(), m, Options{IterationLimit: 1})
	assert.Equal(t, StatusNumeric, sol.Status)
	assert.Nil(t, sol.Values)
}

func TestSolve_MatchesExhaustiveSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const n = 10

	for round := 0; round < 40; round++ {
		m := NewModel()
		vars := make([]int, n)
		for i := range vars {
			vars[i] = m.AddBinary("x")
		}
		random := func(lo, hi float64) []float64 {
			out := make([]float64, n)
			for i := range out {
				out[i] = lo + math.Round(rng.Float64()*(hi-lo)*10)/10
			}
			return out
		}
		ones := make([]float64, n)
		for i := range ones {
			ones[i] = 1
		}
		price := random(4, 12)
		m.AddConstraint("count", terms(vars, ones...), Equal, float64(2+rng.Intn(3)))
		m.AddConstraint("budget", terms(vars, price...), LessEqual, 20+rng.Float64()*10)
		m.AddConstraint("team", terms(vars[:4], 1, 1, 1, 1), LessEqual, 2)
		m.AddConstraint("mix", terms(vars, random(-2, 2)...), GreaterEqual, -1)
		m.SetObjective(terms(vars, random(0, 9)...), 0, true)

		want, feasible := exhaustive(m)
		sol := Solve(context.Background(), m, Options{})
		if !feasible {
			assert.Equal(t, StatusInfeasible, sol.Status, "round %d", round)
			continue
		}
		require.Equal(t, StatusOptimal, sol.Status, "round %d", round)
		assert.InDelta(t, want, sol.Objective, 1e-6, "round %d", round)
		assert.Empty(t, m.Violated(sol.Values, 1e-7), "round %d", round)
	}
}

// exhaustive enumerates every assignment of a small model
func exhaustive(m *Model) (float64, bool) {
	n := m.NumVars()
	best, found := math.Inf(-1), false
	values := make([]float64, n)
	for mask := 0; mask < 1<<n; mask++ {
		for i := range values {
			values[i] = float64((mask >> i) & 1)
		}
		if m.Violated(values, 1e-9) != "" {
			continue
		}
		if v := m.Evaluate(values); v > best {
			best, found = v, true
		}
	}
	return best, found
}

func TestModel_Violated(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b")}
	m.AddConstraint("at_most_one", terms(vars, 1, 1), LessEqual, 1)

	assert.Empty(t, m.Violated([]float64{1, 0}, 1e-9))
	assert.Equal(t, "at_most_one", m.Violated([]float64{1, 1}, 1e-9))
	assert.Equal(t, "b", m.Violated([]float64{0, 0.5}, 1e-9))
}

func TestModel_AddConstraintPanicsOnUnknownVar(t *testing.T) {
	m := NewModel()
	m.AddBinary("a")
	assert.Panics(t, func() {
		m.AddConstraint("bad", []Term{{Var: 3, Coeff: 1}}, LessEqual, 1)
	})
}
