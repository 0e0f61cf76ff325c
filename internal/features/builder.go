package features

import (
	"errors"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/lineup-predictor/internal/models"
)

// ErrInsufficientHistory means fewer prior periods exist than the model needs.
var ErrInsufficientHistory = errors.New("insufficient history for feature engineering")

const (
	defaultDifficulty = 3
	defaultStrength   = 1000
	defaultNowCost    = 50
	defaultChance     = 100
)

// Dataset is the raw input the builder reads. Observations and fixtures may
// span any periods; the builder only looks at what a target period allows.
type Dataset struct {
	Entities     []models.Entity
	Teams        []models.Team
	Periods      []models.Period
	Observations []models.ObservationRecord
	Fixtures     []models.Fixture
}

// Row is one entity's feature vector in schema order.
type Row struct {
	Entity models.Entity
	Values []float64
}

// Snapshot holds the feature rows for one target period.
type Snapshot struct {
	Period int
	Schema *Schema
	Rows   []Row
}

func (s Snapshot) Empty() bool {
	return len(s.Rows) == 0
}

// TrainingSet is a chronologically ordered feature matrix with realized labels.
type TrainingSet struct {
	Schema  *Schema
	Rows    []Row
	Labels  []float64
	Periods []int
}

func (t *TrainingSet) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Matrix returns the raw value rows.
func (t *TrainingSet) Matrix() [][]float64 {
	return matrix(t.Rows)
}

func (s Snapshot) Matrix() [][]float64 {
	return matrix(s.Rows)
}

func matrix(rows []Row) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Values
	}
	return out
}

// History is a Dataset indexed for repeated point-in-time lookups.
type History struct {
	entities []models.Entity
	teams    map[uint]models.Team
	periods  []int
	byEntity map[uint][]models.ObservationRecord
	byPeriod map[int]map[uint]models.ObservationRecord
	fixtures map[int][]models.Fixture
}

func NewHistory(ds Dataset) *History {
	h := &History{
		entities: ds.Entities,
		teams:    make(map[uint]models.Team, len(ds.Teams)),
		byEntity: make(map[uint][]models.ObservationRecord),
		byPeriod: make(map[int]map[uint]models.ObservationRecord),
		fixtures: make(map[int][]models.Fixture),
	}
	for _, t := range ds.Teams {
		h.teams[t.ID] = t
	}
	for _, p := range ds.Periods {
		h.periods = append(h.periods, p.ID)
	}
	sort.Ints(h.periods)
	for _, o := range ds.Observations {
		h.byEntity[o.EntityID] = append(h.byEntity[o.EntityID], o)
		if h.byPeriod[o.Period] == nil {
			h.byPeriod[o.Period] = make(map[uint]models.ObservationRecord)
		}
		h.byPeriod[o.Period][o.EntityID] = o
	}
	for id := range h.byEntity {
		obs := h.byEntity[id]
		sort.Slice(obs, func(i, j int) bool { return obs[i].Period < obs[j].Period })
	}
	for _, f := range ds.Fixtures {
		h.fixtures[f.Period] = append(h.fixtures[f.Period], f)
	}
	return h
}

// PriorPeriods counts catalogued periods strictly before target.
func (h *History) PriorPeriods(target int) int {
	return sort.SearchInts(h.periods, target)
}

// before returns the entity's observations with period < target.
func (h *History) before(entityID uint, target int) []models.ObservationRecord {
	obs := h.byEntity[entityID]
	n := sort.Search(len(obs), func(i int) bool { return obs[i].Period >= target })
	return obs[:n]
}

// Realized returns an entity's total points in a period, 0 when absent.
func (h *History) Realized(entityID uint, period int) (int, bool) {
	o, ok := h.byPeriod[period][entityID]
	return o.TotalPoints, ok
}

// FixtureContext is one team's fixture for a period.
type FixtureContext struct {
	OpponentID uint
	IsHome     bool
	Difficulty int
}

func (h *History) fixtureContexts(period int) map[uint]FixtureContext {
	out := make(map[uint]FixtureContext)
	for _, f := range h.fixtures[period] {
		out[f.HomeTeamID] = FixtureContext{OpponentID: f.AwayTeamID, IsHome: true, Difficulty: intOr(f.HomeDifficulty, defaultDifficulty)}
		out[f.AwayTeamID] = FixtureContext{OpponentID: f.HomeTeamID, IsHome: false, Difficulty: intOr(f.AwayDifficulty, defaultDifficulty)}
	}
	return out
}

// Builder turns point-in-time history into feature rows.
type Builder struct {
	schema            *Schema
	minHistoryPeriods int
	startedMinutes    int
	logger            *logrus.Logger
}

func NewBuilder(windows []int, minHistoryPeriods, startedMinutes int, logger *logrus.Logger) *Builder {
	return &Builder{
		schema:            NewSchema(windows),
		minHistoryPeriods: minHistoryPeriods,
		startedMinutes:    startedMinutes,
		logger:            logger,
	}
}

func (b *Builder) Schema() *Schema {
	return b.schema
}

// Build computes features for target using only observations from earlier
// periods. It returns an empty snapshot when history is too short.
func (b *Builder) Build(target int, h *History) Snapshot {
	snap := Snapshot{Period: target, Schema: b.schema}

	prior := h.PriorPeriods(target)
	if prior < b.minHistoryPeriods {
		b.logger.WithFields(logrus.Fields{
			"period":        target,
			"prior_periods": prior,
			"min_history":   b.minHistoryPeriods,
		}).Warn("Not enough periods for feature engineering")
		return snap
	}

	fixtures := h.fixtureContexts(target)
	for _, e := range h.entities {
		obs := h.before(e.ID, target)
		if len(obs) == 0 {
			continue
		}
		snap.Rows = append(snap.Rows, Row{Entity: e, Values: b.row(e, obs, fixtures, h)})
	}
	return snap
}

// TrainingSet builds features for each period in [minPeriod, maxPeriod] and
// labels every row with the points realized in that period.
func (b *Builder) TrainingSet(minPeriod, maxPeriod int, h *History) *TrainingSet {
	ts := &TrainingSet{Schema: b.schema}
	for p := minPeriod; p <= maxPeriod; p++ {
		snap := b.Build(p, h)
		if snap.Empty() {
			continue
		}
		for _, r := range snap.Rows {
			points, _ := h.Realized(r.Entity.ID, p)
			ts.Rows = append(ts.Rows, r)
			ts.Labels = append(ts.Labels, float64(points))
			ts.Periods = append(ts.Periods, p)
		}
	}
	b.logger.WithFields(logrus.Fields{
		"min_period": minPeriod,
		"max_period": maxPeriod,
		"rows":       len(ts.Rows),
	}).Debug("Assembled training set")
	return ts
}

func (b *Builder) row(e models.Entity, obs []models.ObservationRecord, fixtures map[uint]FixtureContext, h *History) []float64 {
	s := b.schema
	v := make([]float64, s.Width())

	switch e.Role {
	case models.RoleGoalkeeper:
		v[s.Static(IsGoalkeeper)] = 1
	case models.RoleDefender:
		v[s.Static(IsDefender)] = 1
	case models.RoleMidfielder:
		v[s.Static(IsMidfielder)] = 1
	case models.RoleForward:
		v[s.Static(IsForward)] = 1
	}
	v[s.Static(IsPenaltyTaker)] = boolFloat(e.IsPenaltyTaker)
	v[s.Static(IsSetPieceTaker)] = boolFloat(e.IsCornerTaker || e.IsFreekickTaker)
	v[s.Static(NowCost)] = float64(intOr(e.NowCost, defaultNowCost))
	v[s.Static(ChanceOfPlaying)] = float64(intOr(e.ChanceOfPlaying, defaultChance))

	for slot, window := range s.Windows() {
		recent := obs
		if len(recent) > window {
			recent = recent[len(recent)-window:]
		}
		b.fillWindow(v, slot, recent)
	}

	fx, hasFixture := fixtures[e.TeamID]
	v[s.Static(IsHome)] = boolFloat(hasFixture && fx.IsHome)
	v[s.Static(FixtureDifficulty)] = defaultDifficulty
	if hasFixture {
		v[s.Static(FixtureDifficulty)] = float64(fx.Difficulty)
	}

	oppAttack, oppDefence := defaultStrength, defaultStrength
	if hasFixture {
		if opp, ok := h.teams[fx.OpponentID]; ok {
			// The opponent plays on the other side of the fixture.
			if fx.IsHome {
				oppAttack, oppDefence = intOr(opp.StrengthAttackAway, defaultStrength), intOr(opp.StrengthDefenceAway, defaultStrength)
			} else {
				oppAttack, oppDefence = intOr(opp.StrengthAttackHome, defaultStrength), intOr(opp.StrengthDefenceHome, defaultStrength)
			}
		}
	}
	v[s.Static(OpponentAttackStrength)] = float64(oppAttack)
	v[s.Static(OpponentDefenceStrength)] = float64(oppDefence)

	ownAttack, ownDefence := defaultStrength, defaultStrength
	if team, ok := h.teams[e.TeamID]; ok {
		if hasFixture && fx.IsHome {
			ownAttack, ownDefence = intOr(team.StrengthAttackHome, defaultStrength), intOr(team.StrengthDefenceHome, defaultStrength)
		} else {
			ownAttack, ownDefence = intOr(team.StrengthAttackAway, defaultStrength), intOr(team.StrengthDefenceAway, defaultStrength)
		}
	}
	v[s.Static(TeamAttackStrength)] = float64(ownAttack)
	v[s.Static(TeamDefenceStrength)] = float64(ownDefence)

	v[s.Static(GamesPlayed)] = float64(len(obs))
	return v
}

func (b *Builder) fillWindow(v []float64, slot int, recent []models.ObservationRecord) {
	s := b.schema
	n := len(recent)
	points := make([]float64, n)
	minutes := make([]float64, n)
	bps := make([]float64, n)
	var starts, goals, assists, cleanSheets, bonus, xg, xa, involvement float64
	for i, o := range recent {
		points[i] = float64(o.TotalPoints)
		minutes[i] = float64(o.Minutes)
		bps[i] = float64(o.BPS)
		if o.Minutes >= b.startedMinutes {
			starts++
		}
		goals += float64(o.Goals)
		assists += float64(o.Assists)
		cleanSheets += float64(o.CleanSheets)
		bonus += float64(o.Bonus)
		xg += floatOr(o.ExpectedGoals)
		xa += floatOr(o.ExpectedAssists)
		involvement += float64(o.Shots + o.KeyPasses)
	}

	set := func(stat WindowStat, value float64) {
		v[s.Window(stat, slot)] = value
	}
	set(PointsMean, stat.Mean(points, nil))
	set(PointsSum, floats.Sum(points))
	if n > 1 {
		set(PointsStd, stat.StdDev(points, nil))
	}
	set(MinutesMean, stat.Mean(minutes, nil))
	set(Starts, starts)
	set(GoalsSum, goals)
	set(AssistsSum, assists)
	set(GoalInvolvementSum, goals+assists)
	set(CleanSheetsSum, cleanSheets)
	set(BonusSum, bonus)
	set(BPSMean, stat.Mean(bps, nil))
	set(XGSum, xg)
	set(XASum, xa)
	set(XGISum, xg+xa)
	if xg > 0 {
		set(GoalOverperformance, goals-xg)
	}
	set(Involvement, involvement)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func intOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}

func floatOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
