package optimizer

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

var (
	// ErrInfeasible means no binary assignment satisfies the constraints.
	ErrInfeasible = errors.New("integer program is infeasible")
	// ErrNodeLimit means branch and bound gave up before proving optimality.
	ErrNodeLimit = errors.New("branch and bound node limit reached")
)

// Group constrains how many of its members may be chosen.
type Group struct {
	Members []int
	Min     int
	Max     int
}

// Problem is a binary selection program: choose exactly Total items
// maximizing the summed score, subject to per-group cardinality bounds.
type Problem struct {
	Scores []float64
	Total  int
	Groups []Group
}

// IntegerProgram solves a binary selection Problem.
type IntegerProgram interface {
	Solve(p Problem) ([]bool, error)
}

type fixState int8

const (
	free fixState = iota
	fixedOne
	fixedZero
)

// BranchAndBound solves the LP relaxation with the simplex method and
// branches on fractional variables.
type BranchAndBound struct {
	Tolerance float64
	MaxNodes  int
}

func NewBranchAndBound() *BranchAndBound {
	return &BranchAndBound{Tolerance: 1e-9, MaxNodes: 10000}
}

type searchState struct {
	nodes int
	best  float64
	bestX []bool
}

func (bb *BranchAndBound) Solve(p Problem) (chosen []bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			chosen, err = nil, fmt.Errorf("simplex panicked: %v", r)
		}
	}()

	st := &searchState{best: math.Inf(-1)}
	fixed := make([]fixState, len(p.Scores))
	if err := bb.branch(p, fixed, st); err != nil {
		return nil, err
	}
	if st.bestX == nil {
		return nil, ErrInfeasible
	}
	return st.bestX, nil
}

func (bb *BranchAndBound) branch(p Problem, fixed []fixState, st *searchState) error {
	st.nodes++
	if bb.MaxNodes > 0 && st.nodes > bb.MaxNodes {
		return ErrNodeLimit
	}

	value, x, err := bb.relax(p, fixed)
	if errors.Is(err, ErrInfeasible) {
		return nil
	}
	if err != nil {
		return err
	}
	if value <= st.best+1e-9 {
		return nil
	}

	const integral = 1e-6
	pick, worst := -1, integral
	for i, v := range x {
		if fixed[i] != free {
			continue
		}
		if d := math.Min(v, 1-v); d > worst {
			pick, worst = i, d
		}
	}
	if pick < 0 {
		st.best = value
		st.bestX = make([]bool, len(x))
		for i, v := range x {
			st.bestX[i] = v > 0.5
		}
		return nil
	}

	for _, state := range []fixState{fixedOne, fixedZero} {
		fixed[pick] = state
		if err := bb.branch(p, fixed, st); err != nil {
			fixed[pick] = free
			return err
		}
	}
	fixed[pick] = free
	return nil
}

// relax solves the LP relaxation of p with some variables fixed. The program
// is put in standard form: every x_i gets an upper-bound slack, and each
// ranged group gets a slack and a surplus column.
func (bb *BranchAndBound) relax(p Problem, fixed []fixState) (float64, []float64, error) {
	n := len(p.Scores)
	index := make([]int, n)
	var vars []int
	offset := 0.0
	ones := 0
	for i := 0; i < n; i++ {
		index[i] = -1
		switch fixed[i] {
		case fixedOne:
			offset += p.Scores[i]
			ones++
		case free:
			index[i] = len(vars)
			vars = append(vars, i)
		}
	}

	total := p.Total - ones
	if total < 0 || total > len(vars) {
		return 0, nil, ErrInfeasible
	}

	type bound struct {
		members  []int
		min, max int
	}
	var bounds []bound
	covered := make([]bool, len(vars))
	allEqual := true
	equalSum := 0
	for _, g := range p.Groups {
		chosen := 0
		var members []int
		for _, i := range g.Members {
			switch fixed[i] {
			case fixedOne:
				chosen++
			case free:
				members = append(members, index[i])
			}
		}
		lo, hi := g.Min-chosen, g.Max-chosen
		if lo < 0 {
			lo = 0
		}
		if hi < 0 || len(members) < lo {
			return 0, nil, ErrInfeasible
		}
		if len(members) == 0 {
			continue
		}
		if hi > len(members) {
			hi = len(members)
		}
		for _, m := range members {
			covered[m] = true
		}
		if lo != hi {
			allEqual = false
		}
		equalSum += lo
		bounds = append(bounds, bound{members: members, min: lo, max: hi})
	}

	m := len(vars)
	out := make([]float64, n)
	for i := range out {
		if fixed[i] == fixedOne {
			out[i] = 1
		}
	}
	if m == 0 {
		if total != 0 {
			return 0, nil, ErrInfeasible
		}
		return offset, out, nil
	}

	// With every free variable pinned by equality groups the total row is a
	// combination of the group rows and would make the system singular.
	allCovered := true
	for _, c := range covered {
		allCovered = allCovered && c
	}
	keepTotal := !(allCovered && allEqual)
	if !keepTotal && equalSum != total {
		return 0, nil, ErrInfeasible
	}

	cols := 2 * m
	rows := m
	if keepTotal {
		rows++
	}
	for _, b := range bounds {
		if b.min == b.max {
			rows++
		} else {
			rows += 2
			cols += 2
		}
	}

	A := mat.NewDense(rows, cols, nil)
	rhs := make([]float64, rows)
	c := make([]float64, cols)
	for j, i := range vars {
		c[j] = -p.Scores[i]
		A.Set(j, j, 1)
		A.Set(j, m+j, 1)
		rhs[j] = 1
	}
	row := m
	if keepTotal {
		for j := 0; j < m; j++ {
			A.Set(row, j, 1)
		}
		rhs[row] = float64(total)
		row++
	}
	col := 2 * m
	for _, b := range bounds {
		for _, j := range b.members {
			A.Set(row, j, 1)
		}
		if b.min == b.max {
			rhs[row] = float64(b.min)
			row++
			continue
		}
		// sum + s = max, s + t = max - min, so min <= sum <= max.
		A.Set(row, col, 1)
		rhs[row] = float64(b.max)
		A.Set(row+1, col, 1)
		A.Set(row+1, col+1, 1)
		rhs[row+1] = float64(b.max - b.min)
		row += 2
		col += 2
	}

	optF, x, err := lp.Simplex(c, A, rhs, bb.Tolerance, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return 0, nil, ErrInfeasible
		}
		return 0, nil, fmt.Errorf("simplex failed: %w", err)
	}
	for j, i := range vars {
		out[i] = x[j]
	}
	return offset - optF, out, nil
}
