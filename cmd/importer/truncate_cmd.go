package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tsmximport/internal/mapping"
)

func newTruncateCmd(a *app) *cobra.Command {
	var (
		f   runFlags
		yes bool
	)
	cmd := &cobra.Command{
		Use:   "truncate",
		Short: "Delete every row from the import tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return withCode(2, fmt.Errorf("refusing to truncate %v without --yes", mapping.Tables))
			}
			cfg, err := a.loadConfig(f)
			if err != nil {
				return withCode(2, err)
			}
			log, _, closeLog, err := newRunLogger(cfg, a.stderr, a.deps.Now(), a.deps.NewRunID())
			if err != nil {
				return withCode(2, err)
			}
			defer closeLog()

			if err := a.deps.NewRunner(log).Truncate(cmd.Context(), cfg.DB.Storage()); err != nil {
				return withCode(1, err)
			}
			fmt.Fprintf(a.stdout, "truncated %d tables\n", len(mapping.Tables))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	cmd.Flags().StringVar(&f.kind, "kind", "", "database kind: postgres, sqlite or sqlserver")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "database DSN (overrides DB_* variables)")
	return cmd
}
