// Package storetest builds deterministic synthetic seasons for tests.
package storetest

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/stitts-dev/lineup-predictor/internal/models"
	"github.com/stitts-dev/lineup-predictor/internal/store"
)

type SeasonOptions struct {
	Periods  int
	Finished int
	Seed     int64
}

var squad = []struct {
	role  models.Role
	count int
}{
	{models.RoleGoalkeeper, 2},
	{models.RoleDefender, 5},
	{models.RoleMidfielder, 5},
	{models.RoleForward, 3},
}

// Season returns four teams of fifteen entities, a fixture list for every
// period and observations plus an optimal lineup for every finished period.
// Each entity has a fixed quality, so recent form predicts future points.
func Season(opts SeasonOptions) *store.Dataset {
	rng := rand.New(rand.NewSource(opts.Seed))
	ds := &store.Dataset{}

	for t := 1; t <= 4; t++ {
		strength := 1000 + 50*t
		ds.Teams = append(ds.Teams, models.Team{
			ID:                  uint(t),
			Name:                fmt.Sprintf("Team %d", t),
			ShortName:           fmt.Sprintf("T%d", t),
			StrengthAttackHome:  intPtr(strength + 30),
			StrengthAttackAway:  intPtr(strength - 30),
			StrengthDefenceHome: intPtr(strength + 20),
			StrengthDefenceAway: intPtr(strength - 20),
		})
	}

	quality := make(map[uint]float64)
	for t := 1; t <= 4; t++ {
		n := 0
		for _, s := range squad {
			for i := 0; i < s.count; i++ {
				n++
				id := uint(t*100 + n)
				ds.Entities = append(ds.Entities, models.Entity{
					ID:             id,
					TeamID:         uint(t),
					WebName:        fmt.Sprintf("%s-%d", s.role, id),
					Role:           s.role,
					Status:         models.StatusAvailable,
					NowCost:        intPtr(45 + n*3),
					IsPenaltyTaker: s.role == models.RoleForward && i == 0,
				})
				quality[id] = 1 + rng.Float64()*8
			}
		}
	}

	for p := 1; p <= opts.Periods; p++ {
		ds.Periods = append(ds.Periods, models.Period{
			ID:       p,
			Name:     fmt.Sprintf("Gameweek %d", p),
			Finished: p <= opts.Finished,
			IsNext:   p == opts.Finished+1,
		})
		home, away := uint(1), uint(2)
		if p%2 == 0 {
			home, away = away, home
		}
		ds.Fixtures = append(ds.Fixtures,
			models.Fixture{Period: p, HomeTeamID: home, AwayTeamID: away, HomeDifficulty: intPtr(2), AwayDifficulty: intPtr(4), Finished: p <= opts.Finished},
			models.Fixture{Period: p, HomeTeamID: home + 2, AwayTeamID: away + 2, HomeDifficulty: intPtr(3), AwayDifficulty: intPtr(3), Finished: p <= opts.Finished},
		)
	}
	for i := range ds.Fixtures {
		ds.Fixtures[i].ID = uint(i + 1)
	}

	for p := 1; p <= opts.Finished; p++ {
		var period []models.ObservationRecord
		for _, e := range ds.Entities {
			points := int(math.Max(0, math.Round(quality[e.ID]+rng.NormFloat64())))
			xg := quality[e.ID] / 20
			xa := quality[e.ID] / 30
			period = append(period, models.ObservationRecord{
				EntityID:        e.ID,
				Period:          p,
				Minutes:         90,
				Goals:           points / 5,
				Assists:         points / 7,
				Bonus:           points / 4,
				BPS:             points * 3,
				TotalPoints:     points,
				Shots:           points / 2,
				KeyPasses:       points / 3,
				ExpectedGoals:   &xg,
				ExpectedAssists: &xa,
			})
		}
		ds.Observations = append(ds.Observations, period...)
		ds.GroundTruth = append(ds.GroundTruth, OptimalLineup(p, ds.Entities, period)...)
	}
	return ds
}

// OptimalLineup picks the best 1-GKP lineup of eleven by realized points.
func OptimalLineup(period int, entities []models.Entity, obs []models.ObservationRecord) []models.GroundTruthEntry {
	points := make(map[uint]int, len(obs))
	for _, o := range obs {
		points[o.EntityID] = o.TotalPoints
	}
	byRole := make(map[models.Role][]models.Entity)
	for _, e := range entities {
		byRole[e.Role] = append(byRole[e.Role], e)
	}
	for _, list := range byRole {
		sort.SliceStable(list, func(i, j int) bool {
			if points[list[i].ID] != points[list[j].ID] {
				return points[list[i].ID] > points[list[j].ID]
			}
			return list[i].ID < list[j].ID
		})
	}
	top := func(role models.Role, n int) int {
		sum := 0
		for _, e := range byRole[role][:n] {
			sum += points[e.ID]
		}
		return sum
	}

	best, bd, bm, bf := -1, 0, 0, 0
	for d := 3; d <= 5; d++ {
		for m := 2; m <= 5; m++ {
			f := 10 - d - m
			if f < 1 || f > 3 {
				continue
			}
			if total := top(models.RoleDefender, d) + top(models.RoleMidfielder, m) + top(models.RoleForward, f); total > best {
				best, bd, bm, bf = total, d, m, f
			}
		}
	}

	var out []models.GroundTruthEntry
	add := func(role models.Role, n int) {
		for _, e := range byRole[role][:n] {
			out = append(out, models.GroundTruthEntry{
				Period:   period,
				EntityID: e.ID,
				Slot:     len(out) + 1,
				Points:   points[e.ID],
			})
		}
	}
	add(models.RoleGoalkeeper, 1)
	add(models.RoleDefender, bd)
	add(models.RoleMidfielder, bm)
	add(models.RoleForward, bf)
	return out
}

func intPtr(v int) *int { return &v }
