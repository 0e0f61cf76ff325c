package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/lineup-predictor/internal/estimator"
	"github.com/stitts-dev/lineup-predictor/internal/store/storetest"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	ds := storetest.Season(storetest.SeasonOptions{Periods: 11, Finished: 9, Seed: 21})
	raw, err := json.Marshal(ds)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "season.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	sqlitePath, datasetPath, jsonOutput = "", "", false
	predictMode, backtestMode, backtestForce = "", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPredict_Dataset(t *testing.T) {
	path := writeDataset(t)

	out, err := execute(t, "predict", "--dataset", path, "--period", "10", "--mode", "heuristic")
	require.NoError(t, err)
	assert.Contains(t, out, "Period 10  v1.0.0-heuristic")
	assert.Contains(t, out, "SLOT")
	assert.Contains(t, out, "GKP")
}

func TestPredict_InsufficientHistory(t *testing.T) {
	path := writeDataset(t)

	_, err := execute(t, "predict", "--dataset", path, "--period", "2", "--mode", "heuristic")
	assert.Error(t, err)
}

func TestImportAndBacktest_SQLite(t *testing.T) {
	path := writeDataset(t)
	db := filepath.Join(t.TempDir(), "lineup.db")

	out, err := execute(t, "import", "--file", path, "--sqlite", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 60 entities")

	out, err = execute(t, "backtest", "--sqlite", db, "--mode", "heuristic", "--start", "6", "--end", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "PERIOD")
	assert.Contains(t, out, "Periods: 2")
}

func TestCompare_JSON(t *testing.T) {
	path := writeDataset(t)

	out, err := execute(t, "compare", "--dataset", path, "--period", "9", "--json")
	require.NoError(t, err)
	var cmp estimator.Comparison
	require.NoError(t, json.Unmarshal([]byte(out), &cmp))
	assert.Equal(t, 11, cmp.TopN)
}

func TestMigrate_RejectsDataset(t *testing.T) {
	path := writeDataset(t)

	_, err := execute(t, "migrate", "--dataset", path)
	assert.Error(t, err)
}
