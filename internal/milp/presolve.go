package milp

import (
	"math"
	"sort"
)

// affine expresses an original variable through a reduced column:
// x = konst + coeff*y[col], or x = konst when col is -1.
type affine struct {
	col   int
	coeff float64
	konst float64
}

type denseRow struct {
	name   string
	coeffs []float64
	sense  Sense
	rhs    float64
}

// reduced is the presolved problem, always in maximize sense
type reduced struct {
	cols     []int
	obj      []float64
	objConst float64
	rows     []denseRow
	exprs    []affine
}

// expand maps a reduced assignment back to the original variables
func (r *reduced) expand(y []float64) []float64 {
	x := make([]float64, len(r.exprs))
	for i, e := range r.exprs {
		if e.col < 0 {
			x[i] = e.konst
			continue
		}
		x[i] = e.konst + e.coeff*y[e.col]
	}
	return x
}

// link records x_i = konst + coeff*x_ref. A root links to itself and a
// fixed variable has ref -1.
type link struct {
	ref   int
	coeff float64
	konst float64
}

type presolver struct {
	links []link
	tol   float64
}

func (p *presolver) resolve(i int) link {
	l := p.links[i]
	if l.ref == i || l.ref == -1 {
		return l
	}
	r := p.resolve(l.ref)
	out := link{ref: r.ref, coeff: l.coeff * r.coeff, konst: l.konst + l.coeff*r.konst}
	if r.ref == -1 {
		out.coeff = 0
	}
	p.links[i] = out
	return out
}

func (p *presolver) fix(root int, v float64) {
	p.links[root] = link{ref: -1, konst: v}
}

// linearize rewrites a constraint over the current roots, sorted by index
func (p *presolver) linearize(c Constraint) ([]int, []float64, float64) {
	rhs := c.RHS
	byRoot := make(map[int]float64)
	for _, t := range c.Terms {
		r := p.resolve(t.Var)
		rhs -= t.Coeff * r.konst
		if r.ref >= 0 {
			byRoot[r.ref] += t.Coeff * r.coeff
		}
	}
	roots := make([]int, 0, len(byRoot))
	for root, a := range byRoot {
		if math.Abs(a) > coeffEpsilon {
			roots = append(roots, root)
		}
	}
	sort.Ints(roots)
	coeffs := make([]float64, len(roots))
	for i, root := range roots {
		coeffs[i] = byRoot[root]
	}
	return roots, coeffs, rhs
}

func (p *presolver) binary(v float64) (float64, bool) {
	switch {
	case math.Abs(v) <= p.tol:
		return 0, true
	case math.Abs(v-1) <= p.tol:
		return 1, true
	}
	return 0, false
}

// aggregate handles a1*y1 + a2*y2 = rhs over two binary roots
func (p *presolver) aggregate(roots []int, coeffs []float64, rhs float64) bool {
	y1, y2 := roots[0], roots[1]
	a1, a2 := coeffs[0], coeffs[1]
	f0, ok0 := p.binary((rhs) / a1)
	f1, ok1 := p.binary((rhs - a2) / a1)

	switch {
	case ok0 && ok1:
		switch {
		case f0 == 0 && f1 == 1:
			p.links[y1] = link{ref: y2, coeff: 1}
		case f0 == 1 && f1 == 0:
			p.links[y1] = link{ref: y2, coeff: -1, konst: 1}
		default:
			p.fix(y1, f0)
		}
	case ok0:
		p.fix(y2, 0)
		p.fix(y1, f0)
	case ok1:
		p.fix(y2, 1)
		p.fix(y1, f1)
	default:
		return false
	}
	return true
}

// presolve fixes variables forced by singleton rows, aggregates variables
// tied by two-variable equalities, and drops rows that became empty. It
// returns false when a contradiction is found.
func presolve(m *Model, tol float64) (*reduced, bool) {
	n := m.NumVars()
	p := &presolver{links: make([]link, n), tol: tol}
	for i := range p.links {
		p.links[i] = link{ref: i, coeff: 1}
	}

	active := make([]bool, len(m.constraints))
	for i := range active {
		active[i] = true
	}

	for changed := true; changed; {
		changed = false
		for ri, c := range m.constraints {
			if !active[ri] {
				continue
			}
			roots, coeffs, rhs := p.linearize(c)
			switch {
			case len(roots) == 0:
				if !satisfied(0, c.Sense, rhs, tol) {
					return nil, false
				}
			case len(roots) == 1:
				ok0 := satisfied(0, c.Sense, rhs, tol)
				ok1 := satisfied(coeffs[0], c.Sense, rhs, tol)
				switch {
				case !ok0 && !ok1:
					return nil, false
				case !ok1:
					p.fix(roots[0], 0)
				case !ok0:
					p.fix(roots[0], 1)
				}
			case len(roots) == 2 && c.Sense == Equal:
				if !p.aggregate(roots, coeffs, rhs) {
					return nil, false
				}
			default:
				continue
			}
			active[ri] = false
			changed = true
		}
	}

	red := &reduced{exprs: make([]affine, n)}
	colOf := make(map[int]int)
	for i := 0; i < n; i++ {
		if r := p.resolve(i); r.ref == i {
			colOf[i] = len(red.cols)
			red.cols = append(red.cols, i)
		}
	}
	for i := 0; i < n; i++ {
		r := p.resolve(i)
		if r.ref < 0 {
			red.exprs[i] = affine{col: -1, konst: r.konst}
			continue
		}
		red.exprs[i] = affine{col: colOf[r.ref], coeff: r.coeff, konst: r.konst}
	}

	sign := 1.0
	if !m.maximize {
		sign = -1
	}
	red.obj = make([]float64, len(red.cols))
	red.objConst = sign * m.objConst
	for i, c := range m.objective {
		c *= sign
		e := red.exprs[i]
		red.objConst += c * e.konst
		if e.col >= 0 {
			red.obj[e.col] += c * e.coeff
		}
	}

	for ri, c := range m.constraints {
		if !active[ri] {
			continue
		}
		row := denseRow{name: c.Name, coeffs: make([]float64, len(red.cols)), sense: c.Sense, rhs: c.RHS}
		for _, t := range c.Terms {
			e := red.exprs[t.Var]
			row.rhs -= t.Coeff * e.konst
			if e.col >= 0 {
				row.coeffs[e.col] += t.Coeff * e.coeff
			}
		}
		red.rows = append(red.rows, row)
	}

	return red, true
}
