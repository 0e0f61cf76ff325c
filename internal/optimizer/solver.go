package optimizer

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/models"
)

// Result is a selected lineup in display order.
type Result struct {
	Lineup    []models.ScoredEntity
	Formation string
	Fallback  bool
}

// Solver selects the highest-scoring lineup that satisfies the constraints.
type Solver struct {
	constraints *LineupConstraints
	fallback    map[models.Role]int
	program     IntegerProgram
	logger      *logrus.Logger
}

func NewSolver(constraints *LineupConstraints, fallback map[models.Role]int, logger *logrus.Logger) *Solver {
	return &Solver{
		constraints: constraints,
		fallback:    fallback,
		program:     NewBranchAndBound(),
		logger:      logger,
	}
}

// WithProgram swaps the integer program implementation.
func (s *Solver) WithProgram(p IntegerProgram) *Solver {
	s.program = p
	return s
}

func (s *Solver) Constraints() *LineupConstraints {
	return s.constraints
}

// Solve picks the lineup. A pool smaller than the lineup is returned as is
// with no formation; unmet role minimums yield an empty lineup; a failing
// integer program falls back to a greedy split.
func (s *Solver) Solve(scored []models.ScoredEntity) Result {
	lc := s.constraints
	if len(scored) < lc.LineupSize {
		s.logger.WithFields(logrus.Fields{
			"available": len(scored),
			"required":  lc.LineupSize,
		}).Warn("Not enough entities to fill a lineup")
		lineup := append([]models.ScoredEntity(nil), scored...)
		sortForDisplay(lineup)
		return Result{Lineup: lineup, Formation: models.FormationUnavailable}
	}

	byRole := organizeByRole(scored, s.logger)
	for _, rc := range lc.Roles {
		if have := len(byRole[rc.Role]); have < rc.MinRequired {
			s.logger.WithFields(logrus.Fields{
				"role":      rc.Role,
				"available": have,
				"required":  rc.MinRequired,
			}).Error("Not enough entities for role minimum")
			return Result{Formation: models.FormationUnavailable}
		}
	}

	// Only the best few of each role can ever be chosen, since the
	// constraints count entities per role and nothing else.
	var pool []models.ScoredEntity
	problem := Problem{Total: lc.LineupSize}
	for _, rc := range lc.Roles {
		candidates := byRole[rc.Role]
		keep := rc.MaxAllowed
		if keep > lc.LineupSize {
			keep = lc.LineupSize
		}
		if len(candidates) > keep {
			candidates = candidates[:keep]
		}
		group := Group{Min: rc.MinRequired, Max: rc.MaxAllowed}
		for _, c := range candidates {
			group.Members = append(group.Members, len(pool))
			problem.Scores = append(problem.Scores, c.Score)
			pool = append(pool, c)
		}
		problem.Groups = append(problem.Groups, group)
	}

	chosen, err := s.program.Solve(problem)
	if err != nil {
		s.logger.WithError(err).Warn("Integer program failed, using greedy fallback")
		return s.greedy(byRole)
	}

	var lineup []models.ScoredEntity
	for i, ok := range chosen {
		if ok {
			lineup = append(lineup, pool[i])
		}
	}
	if err := lc.ValidateLineup(lineup); err != nil {
		s.logger.WithError(err).Warn("Integer program returned an invalid lineup, using greedy fallback")
		return s.greedy(byRole)
	}

	sortForDisplay(lineup)
	return Result{Lineup: lineup, Formation: lc.Formation(lineup)}
}

// greedy takes the top entities per role according to the fallback split.
func (s *Solver) greedy(byRole map[models.Role][]models.ScoredEntity) Result {
	var lineup []models.ScoredEntity
	for _, rc := range s.constraints.Roles {
		candidates := byRole[rc.Role]
		n := s.fallback[rc.Role]
		if n > len(candidates) {
			n = len(candidates)
		}
		lineup = append(lineup, candidates[:n]...)
	}
	sortForDisplay(lineup)
	s.logger.WithField("selected", len(lineup)).Info("Greedy fallback selection complete")
	return Result{Lineup: lineup, Formation: s.constraints.Formation(lineup), Fallback: true}
}

// organizeByRole groups entities by role, best score first.
func organizeByRole(scored []models.ScoredEntity, logger *logrus.Logger) map[models.Role][]models.ScoredEntity {
	byRole := make(map[models.Role][]models.ScoredEntity)
	unknown := 0
	for _, e := range scored {
		if !e.Entity.Role.Valid() {
			unknown++
			continue
		}
		byRole[e.Entity.Role] = append(byRole[e.Entity.Role], e)
	}
	for role := range byRole {
		sortByScore(byRole[role])
	}

	counts := make(map[models.Role]int, len(byRole))
	for role, list := range byRole {
		counts[role] = len(list)
	}
	logger.WithFields(logrus.Fields{
		"role_counts":  counts,
		"unknown_role": unknown,
	}).Debug("Entities organized by role")

	return byRole
}

func sortByScore(list []models.ScoredEntity) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].Entity.ID < list[j].Entity.ID
	})
}

// sortForDisplay orders by role rank, then by descending score.
func sortForDisplay(lineup []models.ScoredEntity) {
	sort.SliceStable(lineup, func(i, j int) bool {
		ri, rj := lineup[i].Entity.Role.Rank(), lineup[j].Entity.Role.Rank()
		if ri != rj {
			return ri < rj
		}
		if lineup[i].Score != lineup[j].Score {
			return lineup[i].Score > lineup[j].Score
		}
		return lineup[i].Entity.ID < lineup[j].Entity.ID
	})
}
