package forest

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Sense is the optimization direction of a model or the relation of a constraint row.
type Sense string

// Objective senses.
const (
	Maximize Sense = "max"
	Minimize Sense = "min"
)

// Constraint relations.
const (
	LessEqual    Sense = "<="
	GreaterEqual Sense = ">="
	Equal        Sense = "="
)

// Status is the outcome of the last Optimize call.
type Status string

// Solve statuses.
const (
	StatusLoaded     Status = "loaded"
	StatusOptimal    Status = "optimal"
	StatusUnbounded  Status = "unbounded"
	StatusInfeasible Status = "infeasible"
)

const feasibilityTolerance = 1e-9

var (
	// ErrUnknownVariable is returned when a constraint term names a variable the model does not have.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrDuplicateName is returned when a variable or constraint name is used twice.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrUnknownAttribute is returned for variable attributes other than obj, lb and ub.
	ErrUnknownAttribute = errors.New("unknown variable attribute")
)

// Variable is one column of the model.
type Variable struct {
	Name string
	Obj  float64
	LB   float64
	UB   float64
}

// Term is one coefficient of a constraint row.
type Term struct {
	Var   string
	Coeff float64
}

// Constraint is one row of the model.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a small linear program of bounded variables and named constraint rows.
//
// Optimize only exploits the variable bounds: every variable is pushed to the bound its objective
// coefficient favors and the rows are checked afterwards. That is enough to make transformations
// observable and replays comparable. It is not a general LP solver.
type Model struct {
	sense       Sense
	variables   []Variable
	constraints []Constraint
	solution    map[string]float64
	objVal      float64
	status      Status
}

// NewModel creates an empty model with the given objective sense.
func NewModel(sense Sense) *Model {
	if sense != Minimize {
		sense = Maximize
	}

	return &Model{sense: sense, status: StatusLoaded}
}

// AddVariable appends a column.
func (m *Model) AddVariable(v Variable) error {
	if m.variableIndex(v.Name) >= 0 {
		return fmt.Errorf("%w: variable %s", ErrDuplicateName, v.Name)
	}

	m.variables = append(m.variables, v)

	return nil
}

// AddConstraint appends a row. Every term must reference an existing variable.
func (m *Model) AddConstraint(c Constraint) error {
	if m.constraintIndex(c.Name) >= 0 {
		return fmt.Errorf("%w: constraint %s", ErrDuplicateName, c.Name)
	}

	for _, term := range c.Terms {
		if m.variableIndex(term.Var) < 0 {
			return fmt.Errorf("%w: %s in constraint %s", ErrUnknownVariable, term.Var, c.Name)
		}
	}

	c.Terms = append([]Term(nil), c.Terms...)
	m.constraints = append(m.constraints, c)

	return nil
}

// Sense returns the objective sense.
func (m *Model) Sense() Sense {
	return m.sense
}

// Variables returns a copy of the columns in model order.
func (m *Model) Variables() []Variable {
	return append([]Variable(nil), m.variables...)
}

// Constraints returns a deep copy of the rows in model order.
func (m *Model) Constraints() []Constraint {
	out := make([]Constraint, len(m.constraints))
	for i, c := range m.constraints {
		c.Terms = append([]Term(nil), c.Terms...)
		out[i] = c
	}

	return out
}

// Variable returns the column called name.
func (m *Model) Variable(name string) (Variable, bool) {
	i := m.variableIndex(name)
	if i < 0 {
		return Variable{}, false
	}

	return m.variables[i], true
}

// VariablesOf returns the columns of a family ("harv" for "harv[1,2]"). An empty family matches all.
func (m *Model) VariablesOf(family string) []Variable {
	var out []Variable
	for _, v := range m.variables {
		if family == "" || Family(v.Name) == family {
			out = append(out, v)
		}
	}

	return out
}

// ConstraintsOf returns the rows of a family. An empty family matches all.
func (m *Model) ConstraintsOf(family string) []Constraint {
	var out []Constraint
	for _, c := range m.Constraints() {
		if family == "" || Family(c.Name) == family {
			out = append(out, c)
		}
	}

	return out
}

// RemoveVariable drops a column and its coefficients in every row.
func (m *Model) RemoveVariable(name string) bool {
	i := m.variableIndex(name)
	if i < 0 {
		return false
	}

	m.variables = append(m.variables[:i], m.variables[i+1:]...)

	for ci := range m.constraints {
		terms := m.constraints[ci].Terms[:0]
		for _, term := range m.constraints[ci].Terms {
			if term.Var != name {
				terms = append(terms, term)
			}
		}
		m.constraints[ci].Terms = terms
	}

	m.invalidate()

	return true
}

// RemoveConstraint drops a row.
func (m *Model) RemoveConstraint(name string) bool {
	i := m.constraintIndex(name)
	if i < 0 {
		return false
	}

	m.constraints = append(m.constraints[:i], m.constraints[i+1:]...)
	m.invalidate()

	return true
}

// SetVariableAttr sets obj, lb or ub (case-insensitive) on one column.
func (m *Model) SetVariableAttr(name, attr string, value float64) error {
	i := m.variableIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}

	switch strings.ToLower(attr) {
	case "obj":
		m.variables[i].Obj = value
	case "lb":
		m.variables[i].LB = value
	case "ub":
		m.variables[i].UB = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, attr)
	}

	m.invalidate()

	return nil
}

// Optimize solves the model and returns the resulting status.
func (m *Model) Optimize() Status {
	solution := make(map[string]float64, len(m.variables))
	objVal := 0.0

	for _, v := range m.variables {
		direction := v.Obj
		if m.sense == Minimize {
			direction = -direction
		}

		var x float64
		switch {
		case direction > 0:
			x = v.UB
		case direction < 0:
			x = v.LB
		case !math.IsInf(v.LB, 0):
			x = v.LB
		case !math.IsInf(v.UB, 0):
			x = v.UB
		}

		if math.IsInf(x, 0) {
			m.solution, m.objVal, m.status = nil, 0, StatusUnbounded
			return m.status
		}

		solution[v.Name] = x
		objVal += v.Obj * x
	}

	for _, c := range m.constraints {
		if !satisfied(c, solution) {
			m.solution, m.objVal, m.status = nil, 0, StatusInfeasible
			return m.status
		}
	}

	m.solution, m.objVal, m.status = solution, objVal, StatusOptimal

	return m.status
}

// Status returns the outcome of the last Optimize, or StatusLoaded if the model changed since.
func (m *Model) Status() Status {
	return m.status
}

// ObjVal returns the objective value of the last optimal solve.
func (m *Model) ObjVal() float64 {
	return m.objVal
}

// Value returns the solution value of a variable after an optimal solve.
func (m *Model) Value(name string) (float64, bool) {
	x, ok := m.solution[name]
	return x, ok
}

func (m *Model) invalidate() {
	m.solution, m.objVal, m.status = nil, 0, StatusLoaded
}

func (m *Model) variableIndex(name string) int {
	for i, v := range m.variables {
		if v.Name == name {
			return i
		}
	}

	return -1
}

func (m *Model) constraintIndex(name string) int {
	for i, c := range m.constraints {
		if c.Name == name {
			return i
		}
	}

	return -1
}

func satisfied(c Constraint, solution map[string]float64) bool {
	lhs := 0.0
	for _, term := range c.Terms {
		lhs += term.Coeff * solution[term.Var]
	}

	switch c.Sense {
	case LessEqual:
		return lhs <= c.RHS+feasibilityTolerance
	case GreaterEqual:
		return lhs >= c.RHS-feasibilityTolerance
	default:
		return math.Abs(lhs-c.RHS) <= feasibilityTolerance
	}
}

// Family returns the part of an indexed name before the index list: "harv" for "harv[1,2]".
func Family(name string) string {
	if i := strings.IndexByte(name, '['); i >= 0 {
		return name[:i]
	}

	return name
}

// LastIndex returns the last entry of an indexed name's index list: "2" for "harv[1,2]".
// Names without an index list have none.
func LastIndex(name string) (string, bool) {
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return "", false
	}

	indices := strings.Split(name[open+1:len(name)-1], ",")

	return strings.TrimSpace(indices[len(indices)-1]), true
}
