package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/config"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/db"
	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/research"
)

// store is the slice of *db.Client the commands use.
type store interface {
	research.Store
	PurgeExpired(ctx context.Context, days int, now time.Time) (map[string]int64, error)
	ListPlans(ctx context.Context, jobID uuid.UUID, limit int) ([]db.Plan, error)
	Close() error
}

type app struct {
	configPath string
	verbose    bool

	loadConfig func(path string) (*config.Config, error)
	openStore  func(cfg *config.Config, logger *zap.Logger) (store, error)
	now        func() time.Time
}

func newApp() *app {
	return &app{
		loadConfig: config.Load,
		openStore: func(cfg *config.Config, logger *zap.Logger) (store, error) {
			return db.NewClient(db.Config{
				DSN:             cfg.Postgres.DSN(),
				MaxConnections:  2,
				IdleConnections: 1,
				MaxLifetime:     time.Minute,
			}, logger)
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (a *app) logger() *zap.Logger {
	if !a.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func (a *app) config() (*config.Config, error) {
	cfg, err := a.loadConfig(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// withStore opens the database for the duration of fn.
func (a *app) withStore(fn func(cfg *config.Config, st store) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	st, err := a.openStore(cfg, a.logger())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer st.Close()
	return fn(cfg, st)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mrctl",
		Short:         "Operate the micro-research service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to microresearch.yaml (default: search ./config and /app/config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(newSweepCmd(a), newPurgeCmd(a), newPlanCmd(a), newGapCmd(a))
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
