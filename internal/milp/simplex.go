package milp

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	coeffEpsilon   = 1e-12
	feasibilityTol = 1e-7
	primalTol      = 1e-9
	dualTol        = 1e-9
	pivotTol       = 1e-9

	// pivots between context checks inside one relaxation
	checkEvery = 16
)

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpNumeric
	lpAborted
)

type lpResult struct {
	status     lpStatus
	objective  float64
	values     []float64
	iterations int
}

// boundedLP is the relaxation of a reduced problem in the form
//
//	minimize cost·z  subject to  [A I]·z = b,  lower <= z <= upper
//
// z holds the n structural columns followed by one logical column per row.
// A logical's bounds carry its row's sense, and the 0/1 bounds of the
// structurals are handled by the simplex itself rather than as rows.
type boundedLP struct {
	m, n     int
	A        *mat.Dense
	b        []float64
	cost     []float64
	lower    []float64
	upper    []float64
	obj      []float64
	objConst float64
}

func newBoundedLP(red *reduced) *boundedLP {
	m, n := len(red.rows), len(red.cols)
	lp := &boundedLP{
		m:        m,
		n:        n,
		b:        make([]float64, m),
		cost:     make([]float64, n+m),
		lower:    make([]float64, n+m),
		upper:    make([]float64, n+m),
		obj:      red.obj,
		objConst: red.objConst,
	}
	for j := 0; j < n; j++ {
		lp.cost[j] = -red.obj[j]
		lp.upper[j] = 1
	}
	if m > 0 && n > 0 {
		lp.A = mat.NewDense(m, n, nil)
	}
	for i, r := range red.rows {
		if lp.A != nil {
			lp.A.SetRow(i, r.coeffs)
		}
		lp.b[i] = r.rhs
		s := n + i
		switch r.sense {
		case LessEqual:
			lp.upper[s] = math.Inf(1)
		case GreaterEqual:
			lp.lower[s] = math.Inf(-1)
		}
	}
	return lp
}

// defaultIterationLimit bounds the pivots of one relaxation
func (lp *boundedLP) defaultIterationLimit() int {
	if limit := 20 * (lp.m + lp.n); limit > 1000 {
		return limit
	}
	return 1000
}

// basis is a simplex state that child nodes inherit from their parent
type basis struct {
	head    []int  // head[i] is the variable basic in row i
	atUpper []bool // which bound each nonbasic variable sits at
}

// slackBasis starts with every logical basic and every structural at the
// bound its cost prefers, which is dual feasible for boxed columns.
func (lp *boundedLP) slackBasis() *basis {
	bs := &basis{head: make([]int, lp.m), atUpper: make([]bool, lp.n+lp.m)}
	for i := range bs.head {
		bs.head[i] = lp.n + i
	}
	for j := 0; j < lp.n; j++ {
		bs.atUpper[j] = lp.cost[j] < 0
	}
	return bs
}

func (bs *basis) clone() *basis {
	return &basis{
		head:    append([]int(nil), bs.head...),
		atUpper: append([]bool(nil), bs.atUpper...),
	}
}

func (lp *boundedLP) bounds(fix []int8) ([]float64, []float64) {
	lower := append([]float64(nil), lp.lower...)
	upper := append([]float64(nil), lp.upper...)
	for j, f := range fix {
		if f >= 0 {
			lower[j], upper[j] = float64(f), float64(f)
		}
	}
	return lower, upper
}

// solve runs the bounded dual simplex from warm (or the slack basis when
// warm is nil) with the structurals in fix pinned to 0 or 1. The returned
// basis is only meaningful for lpOptimal.
func (lp *boundedLP) solve(ctx context.Context, fix []int8, warm *basis, maxIter int) (lpResult, *basis) {
	lower, upper := lp.bounds(fix)
	if lp.m == 0 || lp.n == 0 {
		return lp.solveUnconstrained(lower, upper), nil
	}

	m, n := lp.m, lp.n
	bs := lp.slackBasis()
	if warm != nil {
		bs = warm.clone()
	}
	isBasic := make([]bool, n+m)
	for _, v := range bs.head {
		isBasic[v] = true
	}
	nonbasicValue := func(j int) float64 {
		if lower[j] == upper[j] || !bs.atUpper[j] {
			return lower[j]
		}
		return upper[j]
	}

	var lu mat.LU
	B := mat.NewDense(m, m, nil)
	cB := mat.NewVecDense(m, nil)
	y := mat.NewVecDense(m, nil)
	rhs := mat.NewVecDense(m, nil)
	xB := mat.NewVecDense(m, nil)
	unit := mat.NewVecDense(m, nil)
	rho := mat.NewVecDense(m, nil)
	xN := mat.NewVecDense(n, nil)
	aty := mat.NewVecDense(n, nil)
	alpha := mat.NewVecDense(n, nil)
	col := make([]float64, m)

	numeric := func(iter int) (lpResult, *basis) {
		return lpResult{status: lpNumeric, iterations: iter}, nil
	}

	for iter := 0; ; iter++ {
		if iter >= maxIter {
			return numeric(iter)
		}
		if iter > 0 && iter%checkEvery == 0 && expired(ctx) {
			return lpResult{status: lpAborted, iterations: iter}, nil
		}

		B.Zero()
		for i, v := range bs.head {
			if v < n {
				mat.Col(col, v, lp.A)
				B.SetCol(i, col)
			} else {
				B.Set(v-n, i, 1)
			}
			cB.SetVec(i, lp.cost[v])
		}
		lu.Factorize(B)

		// duals and reduced costs
		if err := lu.SolveVecTo(y, true, cB); err != nil {
			return numeric(iter)
		}
		aty.MulVec(lp.A.T(), y)
		reduced := func(j int) float64 {
			if j < n {
				return lp.cost[j] - aty.AtVec(j)
			}
			return -y.AtVec(j - n)
		}

		// a boxed column on the wrong bound is moved to the other one
		for j := 0; j < n+m; j++ {
			if isBasic[j] || lower[j] == upper[j] {
				continue
			}
			dj := reduced(j)
			switch {
			case !bs.atUpper[j] && dj < -dualTol:
				if math.IsInf(upper[j], 1) {
					return numeric(iter)
				}
				bs.atUpper[j] = true
			case bs.atUpper[j] && dj > dualTol:
				if math.IsInf(lower[j], -1) {
					return numeric(iter)
				}
				bs.atUpper[j] = false
			}
		}

		// primal values of the basic variables
		for j := 0; j < n; j++ {
			if isBasic[j] {
				xN.SetVec(j, 0)
			} else {
				xN.SetVec(j, nonbasicValue(j))
			}
		}
		rhs.MulVec(lp.A, xN)
		for i := 0; i < m; i++ {
			v := lp.b[i] - rhs.AtVec(i)
			if s := n + i; !isBasic[s] {
				v -= nonbasicValue(s)
			}
			rhs.SetVec(i, v)
		}
		if err := lu.SolveVecTo(xB, false, rhs); err != nil {
			return numeric(iter)
		}

		leave, worst, toUpper := -1, primalTol, false
		for i, v := range bs.head {
			x := xB.AtVec(i)
			if gap := lower[v] - x; gap > worst {
				leave, worst, toUpper = i, gap, false
			}
			if gap := x - upper[v]; gap > worst {
				leave, worst, toUpper = i, gap, true
			}
		}
		if leave < 0 {
			values := make([]float64, n)
			for j := 0; j < n; j++ {
				if !isBasic[j] {
					values[j] = nonbasicValue(j)
				}
			}
			for i, v := range bs.head {
				if v < n {
					values[v] = clamp01(xB.AtVec(i))
				}
			}
			return lpResult{
				status:     lpOptimal,
				objective:  lp.objConst + floats.Dot(lp.obj, values),
				values:     values,
				iterations: iter,
			}, bs
		}

		// row leave of the basis inverse, then the dual ratio test
		unit.Zero()
		unit.SetVec(leave, 1)
		if err := lu.SolveVecTo(rho, true, unit); err != nil {
			return numeric(iter)
		}
		alpha.MulVec(lp.A.T(), rho)

		enter, bestRatio, bestPivot := -1, math.Inf(1), 0.0
		for j := 0; j < n+m; j++ {
			if isBasic[j] || lower[j] == upper[j] {
				continue
			}
			var a float64
			if j < n {
				a = alpha.AtVec(j)
			} else {
				a = rho.AtVec(j - n)
			}
			var moves bool
			if toUpper {
				moves = (!bs.atUpper[j] && a > pivotTol) || (bs.atUpper[j] && a < -pivotTol)
			} else {
				moves = (!bs.atUpper[j] && a < -pivotTol) || (bs.atUpper[j] && a > pivotTol)
			}
			if !moves {
				continue
			}
			ratio := math.Abs(reduced(j)) / math.Abs(a)
			if ratio < bestRatio-coeffEpsilon || (ratio <= bestRatio+coeffEpsilon && math.Abs(a) > bestPivot) {
				enter, bestRatio, bestPivot = j, math.Min(ratio, bestRatio), math.Abs(a)
			}
		}
		if enter < 0 {
			return lpResult{status: lpInfeasible, iterations: iter}, nil
		}

		leaving := bs.head[leave]
		bs.atUpper[leaving] = toUpper
		isBasic[leaving] = false
		bs.head[leave] = enter
		isBasic[enter] = true
	}
}

// solveUnconstrained handles relaxations without rows, and the degenerate
// case where presolve left rows but no free columns.
func (lp *boundedLP) solveUnconstrained(lower, upper []float64) lpResult {
	values := make([]float64, lp.n)
	for j := range values {
		switch {
		case lower[j] == upper[j]:
			values[j] = lower[j]
		case lp.obj[j] > 0:
			values[j] = upper[j]
		default:
			values[j] = lower[j]
		}
	}
	if lp.n == 0 {
		for i := 0; i < lp.m; i++ {
			s := lp.n + i
			if lp.b[i] < lower[s]-primalTol || lp.b[i] > upper[s]+primalTol {
				return lpResult{status: lpInfeasible}
			}
		}
	}
	return lpResult{status: lpOptimal, objective: lp.objConst + floats.Dot(lp.obj, values), values: values}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
