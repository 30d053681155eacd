package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"carmen/internal/app"
	"carmen/internal/config"
	"carmen/internal/core/period"
	"carmen/pkg/logger"
)

// env carries the lazily opened application across one invocation.
type env struct {
	memory   bool
	logLevel string

	cfg *config.Config
	app *app.App

	open     func(ctx context.Context, cfg *config.Config, memory bool) (*app.App, error)
	closeApp func(*app.App)
}

func newEnv() *env {
	return &env{
		open: func(ctx context.Context, cfg *config.Config, memory bool) (*app.App, error) {
			return app.New(ctx, cfg, app.Options{Memory: memory})
		},
		closeApp: (*app.App).Close,
	}
}

func (e *env) application(ctx context.Context) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	a, err := e.open(ctx, cfg, e.memory)
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

func (e *env) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg
	return cfg, nil
}

func (e *env) close() {
	if e.app != nil {
		e.closeApp(e.app)
		e.app = nil
	}
}

func (e *env) parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	loc := time.UTC
	if cfg, err := e.config(); err == nil {
		loc = cfg.Location()
	}
	return period.ParseDate(value, loc)
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:          "costctl",
		Short:        "Inspect and administer inventory valuation",
		Long:         `Read and change costing settings, query unit costs and period averages, and record receipts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			log, err := logger.New(logger.Config{Level: e.logLevel})
			if err != nil {
				return err
			}
			logger.SetDefault(log)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			e.close()
		},
	}

	root.PersistentFlags().BoolVar(&e.memory, "memory", false, "use in-memory stores instead of DATABASE_URL")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newSettingsCmd(e),
		newCostCmd(e),
		newAverageCmd(e),
		newReceiptCmd(e),
		newIssueCmd(e),
		newAuditCmd(e),
		newMigrateCmd(e),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
