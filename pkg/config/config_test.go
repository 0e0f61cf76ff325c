package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, time.Hour, cfg.PredictionCacheTTL)

	settings, err := cfg.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, DefaultPipeline(), settings)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ROLLING_WINDOWS", "2, 4")
	t.Setenv("HEURISTIC_WEIGHTS", "0.7,0.3")
	t.Setenv("MODEL_VERSION", "v2.0.0")
	t.Setenv("ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())

	settings, err := cfg.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, settings.RollingWindows)
	assert.Equal(t, []float64{0.7, 0.3}, settings.HeuristicWeights)
	assert.Equal(t, "v2.0.0", settings.ModelVersion)
}

func TestPipelineSortsRollingWindows(t *testing.T) {
	t.Setenv("ROLLING_WINDOWS", "8,5,3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	settings, err := cfg.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 8}, settings.RollingWindows)
}

func TestPipelineRejectsMisorderedQuotas(t *testing.T) {
	t.Setenv("ROLE_QUOTAS", "DEF:3:5,GKP:1:1,MID:2:5,FWD:1:3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	_, err = cfg.Pipeline()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be GKP")
}

func TestPipelineValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *PipelineSettings)
		errMsg string
	}{
		{
			name:   "fallback split must fill the lineup",
			mutate: func(s *PipelineSettings) { s.FallbackSplit = []int{1, 4, 4, 1} },
			errMsg: "fallback split sums to 10",
		},
		{
			name:   "quotas must be able to fill the lineup",
			mutate: func(s *PipelineSettings) { s.LineupSize = 20 },
			errMsg: "cannot fill a lineup of 20",
		},
		{
			name:   "too many heuristic weights",
			mutate: func(s *PipelineSettings) { s.HeuristicWeights = []float64{0.25, 0.25, 0.25, 0.25} },
			errMsg: "heuristic weights",
		},
		{
			name:   "unknown mode",
			mutate: func(s *PipelineSettings) { s.DefaultMode = "lgbm" },
			errMsg: "unknown default ensemble mode",
		},
		{
			name:   "non-positive window",
			mutate: func(s *PipelineSettings) { s.RollingWindows = []int{3, 0, 8} },
			errMsg: "must be positive",
		},
		{
			name:   "duplicate window",
			mutate: func(s *PipelineSettings) { s.RollingWindows = []int{3, 3, 8} },
			errMsg: "strictly ascending",
		},
		{
			name: "quotas out of order",
			mutate: func(s *PipelineSettings) {
				s.RoleQuotas[0], s.RoleQuotas[1] = s.RoleQuotas[1], s.RoleQuotas[0]
			},
			errMsg: "role quota 0 must be GKP, got DEF",
		},
		{
			name:   "duplicate role",
			mutate: func(s *PipelineSettings) { s.RoleQuotas[3] = RoleQuota{Role: "MID", Min: 1, Max: 3} },
			errMsg: "role quota 3 must be FWD, got MID",
		},
		{
			name:   "goalkeeper quota must be exactly one",
			mutate: func(s *PipelineSettings) { s.RoleQuotas[0].Max = 2 },
			errMsg: "GKP quota must be 1:1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultPipeline()
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseQuotas(t *testing.T) {
	quotas, err := parseQuotas("gkp:1:1, DEF:3:5")
	require.NoError(t, err)
	assert.Equal(t, []RoleQuota{{Role: "GKP", Min: 1, Max: 1}, {Role: "DEF", Min: 3, Max: 5}}, quotas)

	_, err = parseQuotas("GKP:1")
	assert.Error(t, err)
}
