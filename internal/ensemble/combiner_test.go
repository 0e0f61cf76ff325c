package ensemble

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/lineup-predictor/internal/estimator"
	"github.com/stitts-dev/lineup-predictor/internal/features"
	"github.com/stitts-dev/lineup-predictor/internal/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func intPtr(v int) *int { return &v }

func newCombiner() *Combiner {
	return NewCombiner(DefaultWeights(), nil, estimator.DefaultBoostingParams(), estimator.DefaultHeuristicParams(), quietLogger())
}

func row(s *features.Schema, e models.Entity, form float64) features.Row {
	v := make([]float64, s.Width())
	for slot := range s.Windows() {
		v[s.Window(features.PointsMean, slot)] = form
	}
	v[s.Static(features.FixtureDifficulty)] = 3
	return features.Row{Entity: e, Values: v}
}

func testSnapshot() features.Snapshot {
	s := features.NewSchema([]int{3, 5, 8})
	return features.Snapshot{
		Period: 10,
		Schema: s,
		Rows: []features.Row{
			row(s, models.Entity{ID: 1, Role: models.RoleMidfielder, Status: models.StatusAvailable}, 6),
			row(s, models.Entity{ID: 2, Role: models.RoleMidfielder, Status: models.StatusDoubtful, ChanceOfPlaying: intPtr(50)}, 4),
			row(s, models.Entity{ID: 3, Role: models.RoleForward, Status: models.StatusInjured}, 9),
			row(s, models.Entity{ID: 4, Role: models.RoleForward, Status: models.StatusAvailable, ChanceOfPlaying: intPtr(0)}, 9),
			row(s, models.Entity{ID: 5, Role: models.RoleDefender, Status: models.StatusSuspended}, 9),
			row(s, models.Entity{ID: 6, Role: models.RoleDefender}, 2),
		},
	}
}

func trainingSet(s *features.Schema) *features.TrainingSet {
	ts := &features.TrainingSet{Schema: s}
	for i := 0; i < 60; i++ {
		form := float64(i % 6)
		ts.Rows = append(ts.Rows, row(s, models.Entity{ID: uint(i)}, form))
		ts.Labels = append(ts.Labels, form+1)
		ts.Periods = append(ts.Periods, i/10+1)
	}
	return ts
}

func scores(res *Result) map[uint]float64 {
	out := map[uint]float64{}
	for _, s := range res.Scored {
		out[s.Entity.ID] = s.Score
	}
	return out
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeLearned, ModeHeuristic, ModeEnsemble} {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("lgbm")
	assert.Error(t, err)
	assert.False(t, ModeHeuristic.NeedsTraining())
	assert.True(t, ModeEnsemble.NeedsTraining())
}

func TestScoreExcludesUnavailable(t *testing.T) {
	res, err := newCombiner().Score(ModeHeuristic, testSnapshot(), nil)
	require.NoError(t, err)

	got := scores(res)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, res.Excluded)
	assert.Contains(t, got, uint(1))
	assert.Contains(t, got, uint(2), "doubtful entities stay eligible")
	assert.Contains(t, got, uint(6), "unknown status stays eligible")
	assert.InDelta(t, 6.0, got[1], 1e-9)
	assert.Nil(t, res.Metrics)
}

func TestScoreEnsembleBlendsEstimators(t *testing.T) {
	snap := testSnapshot()
	training := trainingSet(snap.Schema)
	c := newCombiner()

	res, err := c.Score(ModeEnsemble, snap, training)
	require.NoError(t, err)
	require.NotNil(t, res.Metrics)
	assert.Equal(t, 60, res.Metrics.Samples)

	learnedOnly, err := c.Score(ModeLearned, snap, training)
	require.NoError(t, err)
	heuristicOnly, err := c.Score(ModeHeuristic, snap, nil)
	require.NoError(t, err)

	l, h, e := scores(learnedOnly), scores(heuristicOnly), scores(res)
	for id, score := range e {
		assert.InDelta(t, 0.4*l[id]+0.6*h[id], score, 1e-9, "entity %d", id)
	}
}

func TestScoreLearnedWithoutTrainingData(t *testing.T) {
	_, err := newCombiner().Score(ModeLearned, testSnapshot(), &features.TrainingSet{})
	assert.ErrorIs(t, err, estimator.ErrNoTrainingData)
}

func TestScoreEmptySnapshot(t *testing.T) {
	res, err := newCombiner().Score(ModeEnsemble, features.Snapshot{Period: 3}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Scored)
}
