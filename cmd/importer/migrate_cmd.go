package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the import tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(f)
			if err != nil {
				return withCode(2, err)
			}
			applied, err := a.deps.Migrate(cmd.Context(), cfg.DB.Storage())
			if err != nil {
				return withCode(1, err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(a.stdout, "schema up to date")
				return nil
			}
			for _, r := range applied {
				fmt.Fprintf(a.stdout, "applied %d %s\n", r.Version, r.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.kind, "kind", "", "database kind: postgres, sqlite or sqlserver")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "database DSN (overrides DB_* variables)")
	return cmd
}
