package optimizer

import (
	"fmt"
	"strings"

	"github.com/stitts-dev/lineup-predictor/internal/models"
	"github.com/stitts-dev/lineup-predictor/pkg/config"
)

// RoleConstraint bounds how many entities of one role a lineup holds.
type RoleConstraint struct {
	Role        models.Role
	MinRequired int
	MaxAllowed  int
}

// LineupConstraints holds the size and role rules a lineup must satisfy.
// Roles are listed in display order; the first is the single-slot role.
type LineupConstraints struct {
	LineupSize int
	Roles      []RoleConstraint
}

func DefaultConstraints() *LineupConstraints {
	return &LineupConstraints{
		LineupSize: 11,
		Roles: []RoleConstraint{
			{Role: models.RoleGoalkeeper, MinRequired: 1, MaxAllowed: 1},
			{Role: models.RoleDefender, MinRequired: 3, MaxAllowed: 5},
			{Role: models.RoleMidfielder, MinRequired: 2, MaxAllowed: 5},
			{Role: models.RoleForward, MinRequired: 1, MaxAllowed: 3},
		},
	}
}

// ConstraintsFromSettings builds constraints and the greedy fallback split
// from pipeline settings.
func ConstraintsFromSettings(s *config.PipelineSettings) (*LineupConstraints, map[models.Role]int, error) {
	lc := &LineupConstraints{LineupSize: s.LineupSize}
	for _, q := range s.RoleQuotas {
		role := models.Role(q.Role)
		if !role.Valid() {
			return nil, nil, fmt.Errorf("unknown role %q in quotas", q.Role)
		}
		lc.Roles = append(lc.Roles, RoleConstraint{Role: role, MinRequired: q.Min, MaxAllowed: q.Max})
	}
	if len(s.FallbackSplit) != len(lc.Roles) {
		return nil, nil, fmt.Errorf("fallback split has %d counts for %d roles", len(s.FallbackSplit), len(lc.Roles))
	}
	split := make(map[models.Role]int, len(lc.Roles))
	for i, rc := range lc.Roles {
		split[rc.Role] = s.FallbackSplit[i]
	}
	return lc, split, nil
}

// DefaultFallbackSplit is the 1-4-4-2 greedy selection.
func DefaultFallbackSplit() map[models.Role]int {
	return map[models.Role]int{
		models.RoleGoalkeeper: 1,
		models.RoleDefender:   4,
		models.RoleMidfielder: 4,
		models.RoleForward:    2,
	}
}

// ValidateLineup checks lineup size and role quotas.
func (lc *LineupConstraints) ValidateLineup(lineup []models.ScoredEntity) error {
	if len(lineup) != lc.LineupSize {
		return fmt.Errorf("lineup requires %d entities, got %d", lc.LineupSize, len(lineup))
	}
	return lc.validateRoles(lineup)
}

func (lc *LineupConstraints) validateRoles(lineup []models.ScoredEntity) error {
	counts := roleCounts(lineup)
	for _, rc := range lc.Roles {
		count := counts[rc.Role]
		if count < rc.MinRequired {
			return fmt.Errorf("role %s requires at least %d entities, got %d", rc.Role, rc.MinRequired, count)
		}
		if count > rc.MaxAllowed {
			return fmt.Errorf("role %s allows at most %d entities, got %d", rc.Role, rc.MaxAllowed, count)
		}
	}
	return nil
}

// Formation describes the outfield role counts, e.g. "4-4-2".
func (lc *LineupConstraints) Formation(lineup []models.ScoredEntity) string {
	if len(lineup) == 0 || len(lc.Roles) < 2 {
		return models.FormationUnavailable
	}
	counts := roleCounts(lineup)
	parts := make([]string, 0, len(lc.Roles)-1)
	for _, rc := range lc.Roles[1:] {
		parts = append(parts, fmt.Sprintf("%d", counts[rc.Role]))
	}
	return strings.Join(parts, "-")
}

func roleCounts(lineup []models.ScoredEntity) map[models.Role]int {
	counts := make(map[models.Role]int)
	for _, e := range lineup {
		counts[e.Entity.Role]++
	}
	return counts
}
