// Package milp solves binary integer programs by branch and bound over the
// LP relaxation. Each node runs a bounded dual simplex on gonum matrices,
// warm started from its parent's basis.
package milp

import (
	"fmt"
	"math"
)

// Sense is the relation of a linear constraint
type Sense int

const (
	LessEqual Sense = iota
	Equal
	GreaterEqual
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case Equal:
		return "="
	case GreaterEqual:
		return ">="
	}
	return fmt.Sprintf("Sense(%d)", int(s))
}

// Term is one coefficient of a linear expression
type Term struct {
	Var   int
	Coeff float64
}

// Constraint is a named linear constraint over binary variables
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a binary integer program. All variables take values in {0, 1}.
type Model struct {
	names       []string
	objective   []float64
	objConst    float64
	maximize    bool
	constraints []Constraint
}

// NewModel creates an empty model
func NewModel() *Model {
	return &Model{}
}

// AddBinary adds a binary variable and returns its index
func (m *Model) AddBinary(name string) int {
	m.names = append(m.names, name)
	m.objective = append(m.objective, 0)
	return len(m.names) - 1
}

// NumVars returns the number of variables
func (m *Model) NumVars() int {
	return len(m.names)
}

// Name returns the name of variable v
func (m *Model) Name(v int) string {
	return m.names[v]
}

// AddConstraint appends a constraint. Terms may repeat a variable; the
// coefficients are summed.
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	for _, t := range terms {
		m.checkVar(t.Var)
	}
	cp := make([]Term, len(terms))
	copy(cp, terms)
	m.constraints = append(m.constraints, Constraint{Name: name, Terms: cp, Sense: sense, RHS: rhs})
}

// Constraints returns the constraints in insertion order
func (m *Model) Constraints() []Constraint {
	return m.constraints
}

// SetObjective replaces the objective with Σ terms + constant
func (m *Model) SetObjective(terms []Term, constant float64, maximize bool) {
	for i := range m.objective {
		m.objective[i] = 0
	}
	for _, t := range terms {
		m.checkVar(t.Var)
		m.objective[t.Var] += t.Coeff
	}
	m.objConst = constant
	m.maximize = maximize
}

// Maximize reports the objective direction
func (m *Model) Maximize() bool {
	return m.maximize
}

// Evaluate returns the objective value of an assignment
func (m *Model) Evaluate(values []float64) float64 {
	total := m.objConst
	for i, c := range m.objective {
		total += c * values[i]
	}
	return total
}

// Violated returns the name of the first constraint the assignment breaks,
// or "" when every constraint holds within tol.
func (m *Model) Violated(values []float64, tol float64) string {
	for i, v := range values {
		if math.Abs(v) > tol && math.Abs(v-1) > tol {
			return m.names[i]
		}
	}
	for _, c := range m.constraints {
		lhs := 0.0
		for _, t := range c.Terms {
			lhs += t.Coeff * values[t.Var]
		}
		if !satisfied(lhs, c.Sense, c.RHS, tol) {
			return c.Name
		}
	}
	return ""
}

func (m *Model) checkVar(v int) {
	if v < 0 || v >= len(m.names) {
		panic(fmt.Sprintf("milp: variable index %d out of range [0,%d)", v, len(m.names)))
	}
}

func satisfied(lhs float64, sense Sense, rhs, tol float64) bool {
	switch sense {
	case LessEqual:
		return lhs <= rhs+tol
	case GreaterEqual:
		return lhs >= rhs-tol
	default:
		return math.Abs(lhs-rhs) <= tol
	}
}
