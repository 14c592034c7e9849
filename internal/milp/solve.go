package milp

import (
	"container/heap"
	"context"
	"math"
	"time"
)

// Status is the outcome of a solve
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusTimeLimit
	StatusNodeLimit
	// StatusNumeric means some relaxation could not be solved reliably, so
	// part of the tree was never explored and nothing is proven.
	StatusNumeric
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusTimeLimit:
		return "time_limit"
	case StatusNodeLimit:
		return "node_limit"
	case StatusNumeric:
		return "numeric"
	}
	return "unknown"
}

// Options tunes the branch and bound search
type Options struct {
	// NodeLimit caps the number of explored nodes. Zero uses DefaultNodeLimit.
	NodeLimit int
	// IntegralityTol is how far from 0 or 1 a relaxed value may be and still
	// count as integral. Zero uses 1e-6.
	IntegralityTol float64
	// IterationLimit caps the simplex pivots of one relaxation. Zero scales
	// the limit with the problem size.
	IterationLimit int
}

const DefaultNodeLimit = 20000

// Stats describes the work done by one solve
type Stats struct {
	Nodes           int           `json:"nodes"`
	Iterations      int           `json:"iterations"`
	NumericFailures int           `json:"numeric_failures"`
	ReducedVars     int           `json:"reduced_vars"`
	ReducedRows     int           `json:"reduced_rows"`
	Duration        time.Duration `json:"duration"`
}

// Solution is the result of Solve. Values holds the best assignment found,
// which is only guaranteed optimal when Status is StatusOptimal.
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	Stats     Stats
}

// node is an open subproblem. Children inherit the parent's optimal basis
// and its relaxation value as an upper bound.
type node struct {
	fix   []int8
	warm  *basis
	bound float64
	seq   int
}

// openNodes pops the node with the best bound, newest first on ties so the
// search keeps diving below the node it just solved
type openNodes []node

func (q openNodes) Len() int { return len(q) }
func (q openNodes) Less(i, j int) bool {
	if q[i].bound != q[j].bound {
		return q[i].bound > q[j].bound
	}
	return q[i].seq > q[j].seq
}
func (q openNodes) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *openNodes) Push(x any)   { *q = append(*q, x.(node)) }
func (q *openNodes) Pop() any {
	old := *q
	nd := old[len(old)-1]
	*q = old[:len(old)-1]
	return nd
}

// Solve runs best-bound branch and bound on m. The context deadline bounds
// the whole solve, including the simplex pivots of a single node, and an
// expired context yields StatusTimeLimit.
func Solve(ctx context.Context, m *Model, opts Options) Solution {
	start := time.Now()
	if opts.NodeLimit <= 0 {
		opts.NodeLimit = DefaultNodeLimit
	}
	if opts.IntegralityTol <= 0 {
		opts.IntegralityTol = 1e-6
	}

	sol := Solution{Status: StatusInfeasible}

	red, ok := presolve(m, 1e-9)
	if !ok {
		return finish(m, sol, nil, start)
	}
	sol.Stats.ReducedVars = len(red.cols)
	sol.Stats.ReducedRows = len(red.rows)

	relaxation := newBoundedLP(red)
	if opts.IterationLimit <= 0 {
		opts.IterationLimit = relaxation.defaultIterationLimit()
	}

	root := make([]int8, len(red.cols))
	for i := range root {
		root[i] = -1
	}
	open := &openNodes{{fix: root, bound: math.Inf(1)}}
	seq := 1
	incumbent := math.Inf(-1)
	var best []float64

	for open.Len() > 0 {
		nd := heap.Pop(open).(node)
		if nd.bound <= incumbent+1e-9 {
			// every open node is bounded by this one
			break
		}
		if expired(ctx) {
			sol.Status = StatusTimeLimit
			return finish(m, sol, best, start)
		}
		if sol.Stats.Nodes >= opts.NodeLimit {
			sol.Status = StatusNodeLimit
			return finish(m, sol, best, start)
		}
		sol.Stats.Nodes++

		res, warm := relaxation.solve(ctx, nd.fix, nd.warm, opts.IterationLimit)
		sol.Stats.Iterations += res.iterations
		switch res.status {
		case lpAborted:
			sol.Status = StatusTimeLimit
			return finish(m, sol, best, start)
		case lpNumeric:
			sol.Stats.NumericFailures++
			continue
		case lpInfeasible:
			continue
		}
		if res.objective <= incumbent+1e-9 {
			continue
		}

		branch := mostFractional(res.values, nd.fix, opts.IntegralityTol)
		if branch < 0 {
			values := red.expand(roundAll(res.values))
			if m.Violated(values, feasibilityTol) != "" {
				sol.Stats.NumericFailures++
				continue
			}
			incumbent = res.objective
			best = values
			continue
		}

		down := node{fix: append([]int8(nil), nd.fix...), warm: warm, bound: res.objective}
		up := node{fix: append([]int8(nil), nd.fix...), warm: warm, bound: res.objective}
		down.fix[branch], up.fix[branch] = 0, 1
		// The side the relaxation leans towards is tried first.
		first, second := up, down
		if res.values[branch] < 0.5 {
			first, second = down, up
		}
		first.seq, second.seq = seq+1, seq
		seq += 2
		heap.Push(open, first)
		heap.Push(open, second)
	}

	switch {
	case sol.Stats.NumericFailures > 0:
		sol.Status = StatusNumeric
	case best != nil:
		sol.Status = StatusOptimal
	}
	return finish(m, sol, best, start)
}

// expired reports a cancelled context or a deadline already in the past
func expired(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}

func finish(m *Model, sol Solution, best []float64, start time.Time) Solution {
	if best != nil {
		sol.Values = best
		sol.Objective = m.Evaluate(best)
	}
	sol.Stats.Duration = time.Since(start)
	return sol
}

// mostFractional picks the free column furthest from integrality, lowest
// index on ties, or -1 when the assignment is integral.
func mostFractional(values []float64, fix []int8, tol float64) int {
	branch, worst := -1, tol
	for j, v := range values {
		if fix[j] >= 0 {
			continue
		}
		if f := math.Min(v, 1-v); f > worst {
			branch, worst = j, f
		}
	}
	return branch
}

func roundAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Round(v)
	}
	return out
}
