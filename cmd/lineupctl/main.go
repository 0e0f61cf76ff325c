package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stitts-dev/lineup-predictor/internal/backtest"
	"github.com/stitts-dev/lineup-predictor/internal/ensemble"
	"github.com/stitts-dev/lineup-predictor/internal/predictor"
	"github.com/stitts-dev/lineup-predictor/internal/store"
	"github.com/stitts-dev/lineup-predictor/pkg/config"
	"github.com/stitts-dev/lineup-predictor/pkg/database"
	"github.com/stitts-dev/lineup-predictor/pkg/logger"
)

var (
	sqlitePath  string
	datasetPath string
	logLevel    string
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "lineupctl",
	Short: "Team-of-the-week lineup predictor",
	Long: `lineupctl predicts the highest-scoring lineup for a period, replays
past periods against their realized optimal lineups and compares the learned
and heuristic estimators.

Storage is Postgres (DATABASE_URL) by default. Use --sqlite for a local file
or --dataset to run entirely in memory on a JSON dataset.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "Path to a local SQLite database instead of DATABASE_URL")
	rootCmd.PersistentFlags().StringVar(&datasetPath, "dataset", "", "Run in memory on a JSON dataset file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtime is the wired pipeline for one command invocation.
type runtime struct {
	cfg      *config.Config
	settings *config.PipelineSettings
	store    store.Store
	db       *database.DB
	svc      *predictor.Service
	logger   *logrus.Logger
}

func (r *runtime) Close() {
	if r.db != nil {
		_ = r.db.Close()
	}
}

func (r *runtime) harness() *backtest.Harness {
	return backtest.NewHarness(r.svc, r.logger)
}

// mode parses a --mode flag, falling back to the configured default.
func (r *runtime) mode(raw string) (ensemble.Mode, error) {
	if raw == "" {
		raw = r.settings.DefaultMode
	}
	return ensemble.ParseMode(raw)
}

func openRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.InitLogger(logLevel, cfg.IsDevelopment())
	log.SetOutput(cmd.ErrOrStderr())

	settings, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, settings: settings, logger: log}
	if err := rt.openStore(ctx); err != nil {
		return nil, err
	}

	rt.svc, err = predictor.NewService(rt.store, settings, log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *runtime) openStore(ctx context.Context) error {
	if datasetPath != "" {
		ds, err := store.LoadDatasetFile(datasetPath)
		if err != nil {
			return err
		}
		mem := store.NewMemoryStore()
		if err := mem.Load(ctx, ds); err != nil {
			return err
		}
		r.store = mem
		return nil
	}

	var err error
	switch {
	case sqlitePath != "":
		r.db, err = database.NewSQLiteConnection(sqlitePath, false)
	case strings.HasPrefix(r.cfg.DatabaseURL, "sqlite://"):
		r.db, err = database.NewSQLiteConnection(strings.TrimPrefix(r.cfg.DatabaseURL, "sqlite://"), false)
	default:
		r.db, err = database.NewConnection(r.cfg.DatabaseURL, false)
	}
	if err != nil {
		return err
	}
	if err := store.Migrate(r.db.DB); err != nil {
		r.Close()
		return err
	}
	r.store = store.NewGormStore(r.db.DB)
	return nil
}
