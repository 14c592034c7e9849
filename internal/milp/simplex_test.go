package milp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relaxationOf(t *testing.T, m *Model) *boundedLP {
	t.Helper()
	red, ok := presolve(m, 1e-9)
	require.True(t, ok)
	return newBoundedLP(red)
}

func freeColumns(n int) []int8 {
	fix := make([]int8, n)
	for i := range fix {
		fix[i] = -1
	}
	return fix
}

func TestBoundedLP_FixedColumns(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b"), m.AddBinary("c")}
	m.AddConstraint("two", terms(vars, 1, 1, 1), Equal, 2)
	m.SetObjective(terms(vars, 1, 2, 3), 0, true)
	lp := relaxationOf(t, m)
	require.Equal(t, 3, lp.n)

	res, _ := lp.solve(context.Background(), []int8{-1, -1, 0}, nil, 100)
	require.Equal(t, lpOptimal, res.status)
	assert.InDelta(t, 3, res.objective, 1e-9)
	assert.InDeltaSlice(t, []float64{1, 1, 0}, res.values, 1e-9)

	res, _ = lp.solve(context.Background(), []int8{0, 0, 0}, nil, 100)
	assert.Equal(t, lpInfeasible, res.status)
}

func TestBoundedLP_FractionalKnapsack(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b"), m.AddBinary("c")}
	m.AddConstraint("weight", terms(vars, 3, 4, 2), LessEqual, 6)
	m.SetObjective(terms(vars, 10, 13, 7), 0, true)
	lp := relaxationOf(t, m)

	res, bs := lp.solve(context.Background(), freeColumns(3), nil, 100)
	require.Equal(t, lpOptimal, res.status)
	assert.InDelta(t, 20.25, res.objective, 1e-9)
	assert.InDeltaSlice(t, []float64{1, 0.25, 1}, res.values, 1e-9)
	require.NotNil(t, bs)
	// no row per upper bound: one logical for the single constraint
	assert.Len(t, bs.head, 1)
}

func TestBoundedLP_WarmStartMatchesCold(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b"), m.AddBinary("c"), m.AddBinary("d")}
	m.AddConstraint("weight", terms(vars, 3, 5, 2, 4), LessEqual, 8)
	m.AddConstraint("pick", terms(vars, 1, 1, 1, 1), LessEqual, 3)
	m.SetObjective(terms(vars, 10, 15, 7, 11), 0, true)
	lp := relaxationOf(t, m)

	_, parent := lp.solve(context.Background(), freeColumns(4), nil, 100)
	require.NotNil(t, parent)

	for _, fix := range [][]int8{{-1, 1, -1, -1}, {-1, 0, -1, -1}, {1, -1, -1, 0}, {0, 1, 1, -1}} {
		cold, _ := lp.solve(context.Background(), fix, nil, 100)
		warm, _ := lp.solve(context.Background(), fix, parent, 100)
		require.Equal(t, cold.status, warm.status, "fix %v", fix)
		if cold.status == lpOptimal {
			assert.InDelta(t, cold.objective, warm.objective, 1e-9, "fix %v", fix)
		}
	}
}

func TestBoundedLP_StopsOnCancelledContext(t *testing.T) {
	m := NewModel()
	vars := make([]int, 40)
	coeffs := make([]float64, 40)
	values := make([]float64, 40)
	for i := range vars {
		vars[i] = m.AddBinary("x")
		coeffs[i] = 1
		values[i] = float64(i + 1)
	}
	m.AddConstraint("one", terms(vars, coeffs...), Equal, 1)
	m.SetObjective(terms(vars, values...), 0, true)
	lp := relaxationOf(t, m)

	res, _ := lp.solve(context.Background(), freeColumns(40), nil, 1000)
	require.Equal(t, lpOptimal, res.status)
	assert.InDelta(t, 40, res.objective, 1e-9)
	require.Greater(t, res.iterations, checkEvery)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, _ = lp.solve(ctx, freeColumns(40), nil, 1000)
	assert.Equal(t, lpAborted, res.status)
	assert.Equal(t, checkEvery, res.iterations)
}

func TestBoundedLP_IterationLimit(t *testing.T) {
	m := NewModel()
	vars := []int{m.AddBinary("a"), m.AddBinary("b"), m.AddBinary("c")}
	m.AddConstraint("one", terms(vars, 1, 1, 1), Equal, 1)
	m.SetObjective(terms(vars, 1, 2, 3), 0, true)
	lp := relaxationOf(t, m)

	res, bs := lp.solve(context.Background(), freeColumns(3), nil, 1)
	assert.Equal(t, lpNumeric, res.status)
	assert.Nil(t, bs)
}
