package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tsmximport/internal/config"
	"tsmximport/internal/multitable"
	"tsmximport/internal/source"
)

type runFlags struct {
	sheet         string
	planConflict  string
	contactPolicy string
	kind          string
	dsn           string
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Import a spreadsheet (xlsx, csv, html table; local path or s3:// URI)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "workbook sheet (default: first sheet)")
	cmd.Flags().StringVar(&f.planConflict, "plan-conflict", "", "existing plan price: refresh or keep")
	cmd.Flags().StringVar(&f.contactPolicy, "contact-policy", "", "contact writes: bulk or per_row")
	cmd.Flags().StringVar(&f.kind, "kind", "", "database kind: postgres, sqlite or sqlserver")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "database DSN (overrides DB_* variables)")
	return cmd
}

// loadConfig reads the environment and applies flag overrides.
func (a *app) loadConfig(f runFlags) (*config.Config, error) {
	cfg, err := a.deps.LoadConfig()
	if err != nil {
		return nil, err
	}
	if f.sheet != "" {
		cfg.Import.Sheet = f.sheet
	}
	if f.planConflict != "" {
		cfg.Import.PlanConflict = f.planConflict
	}
	if f.contactPolicy != "" {
		cfg.Import.ContactPolicy = f.contactPolicy
	}
	if f.kind != "" {
		cfg.DB.Kind = f.kind
	}
	if f.dsn != "" {
		cfg.DB.DSN = f.dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) runImport(cmd *cobra.Command, path string, f runFlags) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig(f)
	if err != nil {
		return withCode(2, err)
	}

	runID := a.deps.NewRunID()
	log, logPath, closeLog, err := newRunLogger(cfg, a.stderr, a.deps.Now(), runID)
	if err != nil {
		return withCode(2, err)
	}
	defer closeLog()

	closeMetrics, err := initMetrics(ctx, a.deps, cfg, runID)
	if err != nil {
		return withCode(2, err)
	}
	defer func() {
		if err := closeMetrics(); err != nil {
			log.WithError(err).Warn("metrics flush failed")
		}
	}()

	log.WithFields(map[string]any{
		"path":     path,
		"db_kind":  cfg.DB.Kind,
		"log_file": logPath,
	}).Info("import started")

	runner := a.deps.NewRunner(log)
	rep, err := runner.Run(ctx, multitable.RunConfig{
		Store: cfg.DB.Storage(),
		Path:  path,
		Source: source.Options{
			Sheet: cfg.Import.Sheet,
			S3: source.S3Options{
				Region:    cfg.S3.Region,
				Endpoint:  cfg.S3.Endpoint,
				PathStyle: cfg.S3.PathStyle,
			},
		},
		Options: multitable.Options{
			PlanConflict:     multitable.PlanConflict(cfg.Import.PlanConflict),
			ContactPolicy:    multitable.ContactPolicy(cfg.Import.ContactPolicy),
			StatusFallbackID: cfg.Import.StatusFallbackID,
		},
	})
	if err != nil {
		log.WithError(err).Error("import aborted")
		return withCode(1, err)
	}

	if err := printReport(a.stdout, rep); err != nil {
		return withCode(1, err)
	}
	if rep.Failed() {
		for _, t := range rep.Tables {
			if t.Err != nil {
				log.WithError(t.Err).WithField("table", t.Table).Error("table failed")
			}
		}
		return withCode(1, fmt.Errorf("import finished with failed tables"))
	}
	log.WithField("rows", rep.Rows).Info("import finished")
	return nil
}
