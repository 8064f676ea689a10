package main

import "github.com/spf13/cobra"

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "importer",
		Short:         "Import customer/contract spreadsheets into the billing database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRunCmd(a), newInspectCmd(a), newTruncateCmd(a), newMigrateCmd(a))
	return cmd
}
