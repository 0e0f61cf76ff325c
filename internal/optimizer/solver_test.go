package optimizer

import (
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/lineup-predictor/internal/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func scored(id uint, role models.Role, score float64) models.ScoredEntity {
	return models.ScoredEntity{Entity: models.Entity{ID: id, Role: role}, Score: score}
}

func newSolver() *Solver {
	return NewSolver(DefaultConstraints(), DefaultFallbackSplit(), quietLogger())
}

func total(lineup []models.ScoredEntity) float64 {
	var sum float64
	for _, e := range lineup {
		sum += e.Score
	}
	return sum
}

type failingProgram struct{}

func (failingProgram) Solve(Problem) ([]bool, error) {
	return nil, errors.New("solver unavailable")
}

type emptyProgram struct{}

func (emptyProgram) Solve(p Problem) ([]bool, error) {
	return make([]bool, len(p.Scores)), nil
}

func TestSolve_OnlyFeasibleCombination(t *testing.T) {
	roles := []models.Role{
		models.RoleGoalkeeper,
		models.RoleDefender, models.RoleDefender, models.RoleDefender, models.RoleDefender, models.RoleDefender,
		models.RoleMidfielder, models.RoleMidfielder, models.RoleMidfielder,
		models.RoleForward, models.RoleForward,
	}
	scores := []float64{10, 8, 7, 6, 5, 9, 4, 3, 6, 2, 1}
	var pool []models.ScoredEntity
	for i := range roles {
		pool = append(pool, scored(uint(i+1), roles[i], scores[i]))
	}

	res := newSolver().Solve(pool)
	require.Len(t, res.Lineup, 11)
	assert.False(t, res.Fallback)
	assert.InDelta(t, 61.0, total(res.Lineup), 1e-9)
	assert.Equal(t, "5-3-2", res.Formation)
	assert.NoError(t, DefaultConstraints().ValidateLineup(res.Lineup))
}

func TestSolve_PicksBestFormation(t *testing.T) {
	pool := []models.ScoredEntity{
		scored(1, models.RoleGoalkeeper, 6), scored(2, models.RoleGoalkeeper, 9),
	}
	// Strong midfield, weak defence: expect 3-5-2.
	for i := 0; i < 6; i++ {
		pool = append(pool, scored(uint(10+i), models.RoleDefender, float64(2+i%2)))
		pool = append(pool, scored(uint(20+i), models.RoleMidfielder, float64(8+i)))
	}
	pool = append(pool,
		scored(30, models.RoleForward, 7), scored(31, models.RoleForward, 6), scored(32, models.RoleForward, 1),
	)

	res := newSolver().Solve(pool)
	require.Len(t, res.Lineup, 11)
	assert.Equal(t, "3-5-2", res.Formation)
	assert.Equal(t, uint(2), res.Lineup[0].Entity.ID, "best keeper first")
	assert.NoError(t, DefaultConstraints().ValidateLineup(res.Lineup))
}

func TestSolve_DisplayOrder(t *testing.T) {
	pool := randomPool(rand.New(rand.NewSource(3)), 40)
	res := newSolver().Solve(pool)
	require.Len(t, res.Lineup, 11)

	for i := 1; i < len(res.Lineup); i++ {
		prev, cur := res.Lineup[i-1], res.Lineup[i]
		if prev.Entity.Role == cur.Entity.Role {
			assert.GreaterOrEqual(t, prev.Score, cur.Score)
		} else {
			assert.Less(t, prev.Entity.Role.Rank(), cur.Entity.Role.Rank())
		}
	}
}

func randomPool(rng *rand.Rand, size int) []models.ScoredEntity {
	var pool []models.ScoredEntity
	id := uint(1)
	// Guarantee the minimums, then fill randomly.
	for _, r := range []models.Role{models.RoleGoalkeeper, models.RoleDefender, models.RoleDefender, models.RoleDefender,
		models.RoleMidfielder, models.RoleMidfielder, models.RoleForward} {
		pool = append(pool, scored(id, r, rng.Float64()*12))
		id++
	}
	for len(pool) < size {
		pool = append(pool, scored(id, models.Roles[rng.Intn(len(models.Roles))], rng.Float64()*12))
		id++
	}
	return pool
}

// bruteForceBest enumerates every outfield split and takes the best per role.
func bruteForceBest(pool []models.ScoredEntity) float64 {
	byRole := organizeByRole(pool, quietLogger())
	sumTop := func(role models.Role, n int) (float64, bool) {
		list := byRole[role]
		if len(list) < n {
			return 0, false
		}
		var s float64
		for _, e := range list[:n] {
			s += e.Score
		}
		return s, true
	}

	best := -1.0
	gk, ok := sumTop(models.RoleGoalkeeper, 1)
	if !ok {
		return best
	}
	for d := 3; d <= 5; d++ {
		for m := 2; m <= 5; m++ {
			f := 10 - d - m
			if f < 1 || f > 3 {
				continue
			}
			ds, ok1 := sumTop(models.RoleDefender, d)
			ms, ok2 := sumTop(models.RoleMidfielder, m)
			fs, ok3 := sumTop(models.RoleForward, f)
			if ok1 && ok2 && ok3 && gk+ds+ms+fs > best {
				best = gk + ds + ms + fs
			}
		}
	}
	return best
}

func TestSolve_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	solver := newSolver()

	for trial := 0; trial < 50; trial++ {
		pool := randomPool(rng, 11+rng.Intn(40))
		expected := bruteForceBest(pool)

		res := solver.Solve(pool)
		if expected < 0 {
			// No feasible split exists; the solver must not claim one.
			assert.True(t, res.Fallback || len(res.Lineup) == 0, "trial %d", trial)
			continue
		}
		require.False(t, res.Fallback, "trial %d", trial)
		require.NoError(t, DefaultConstraints().ValidateLineup(res.Lineup), "trial %d", trial)
		assert.InDelta(t, expected, total(res.Lineup), 1e-6, "trial %d", trial)
	}
}

func TestSolve_TooFewEntities(t *testing.T) {
	pool := []models.ScoredEntity{
		scored(1, models.RoleForward, 3),
		scored(2, models.RoleGoalkeeper, 5),
		scored(3, models.RoleDefender, 4),
	}
	res := newSolver().Solve(pool)
	assert.Len(t, res.Lineup, 3)
	assert.Equal(t, models.FormationUnavailable, res.Formation)
	assert.Equal(t, uint(2), res.Lineup[0].Entity.ID)
}

func TestSolve_MissingRoleMinimum(t *testing.T) {
	var pool []models.ScoredEntity
	for i := 0; i < 12; i++ {
		role := models.RoleDefender
		if i%2 == 0 {
			role = models.RoleMidfielder
		}
		pool = append(pool, scored(uint(i+1), role, float64(i)))
	}
	pool = append(pool, scored(99, models.RoleForward, 4))

	res := newSolver().Solve(pool)
	assert.Empty(t, res.Lineup, "no goalkeeper means no lineup")
	assert.Equal(t, models.FormationUnavailable, res.Formation)
}

func TestSolve_GreedyFallbackOnFailure(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	var pool []models.ScoredEntity
	id := uint(1)
	for _, role := range models.Roles {
		for i := 0; i < 6; i++ {
			pool = append(pool, scored(id, role, rng.Float64()*10))
			id++
		}
	}

	for _, program := range []IntegerProgram{failingProgram{}, emptyProgram{}} {
		res := newSolver().WithProgram(program).Solve(pool)
		require.True(t, res.Fallback)
		require.Len(t, res.Lineup, 11)
		assert.Equal(t, "4-4-2", res.Formation)
		assert.NoError(t, DefaultConstraints().ValidateLineup(res.Lineup))

		// Each role contributes its best entities.
		byRole := organizeByRole(pool, quietLogger())
		for _, e := range res.Lineup {
			rank := 0
			for i, c := range byRole[e.Entity.Role] {
				if c.Entity.ID == e.Entity.ID {
					rank = i
				}
			}
			assert.Less(t, rank, DefaultFallbackSplit()[e.Entity.Role])
		}
	}
}

func TestSolve_GreedyFallbackShortRole(t *testing.T) {
	pool := []models.ScoredEntity{scored(1, models.RoleGoalkeeper, 5)}
	id := uint(2)
	for i := 0; i < 7; i++ {
		pool = append(pool, scored(id, models.RoleDefender, 3))
		id++
	}
	for i := 0; i < 2; i++ {
		pool = append(pool, scored(id, models.RoleMidfielder, 3))
		id++
	}
	pool = append(pool, scored(id, models.RoleForward, 3))

	res := newSolver().WithProgram(failingProgram{}).Solve(pool)
	assert.True(t, res.Fallback)
	assert.Len(t, res.Lineup, 8)
	assert.Equal(t, "4-2-1", res.Formation)
}

func TestBranchAndBound_BranchesOnFractionalRelaxation(t *testing.T) {
	// Pairwise caps on an odd cycle make the relaxation fractional.
	p := Problem{
		Scores: []float64{3, 3, 3, 0},
		Total:  2,
		Groups: []Group{
			{Members: []int{0, 1}, Min: 0, Max: 1},
			{Members: []int{1, 2}, Min: 0, Max: 1},
			{Members: []int{0, 2}, Min: 0, Max: 1},
		},
	}
	chosen, err := NewBranchAndBound().Solve(p)
	require.NoError(t, err)

	count := 0
	for _, c := range chosen[:3] {
		if c {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.True(t, chosen[3])
}

func TestBranchAndBound_Infeasible(t *testing.T) {
	_, err := NewBranchAndBound().Solve(Problem{Scores: []float64{1, 2}, Total: 3})
	assert.ErrorIs(t, err, ErrInfeasible)

	_, err = NewBranchAndBound().Solve(Problem{
		Scores: []float64{1, 2, 3},
		Total:  2,
		Groups: []Group{{Members: []int{0, 1, 2}, Min: 3, Max: 3}},
	})
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestValidateLineup(t *testing.T) {
	lc := DefaultConstraints()
	lineup := []models.ScoredEntity{scored(1, models.RoleGoalkeeper, 1), scored(2, models.RoleGoalkeeper, 1)}
	for i := 0; i < 9; i++ {
		lineup = append(lineup, scored(uint(10+i), models.RoleMidfielder, 1))
	}
	err := lc.ValidateLineup(lineup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role GKP allows at most 1")

	err = lc.ValidateLineup(lineup[:5])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires 11 entities")
}
